package article

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/hitoshi/healscope/internal/model"
	"github.com/hitoshi/healscope/internal/repository"
	"github.com/hitoshi/healscope/internal/security"
)

const (
	// maxSlugBaseRunes はslugのタイトル部分の最大文字数。
	maxSlugBaseRunes = 60
	// slugHashLen はslug末尾に付与するハッシュの桁数。
	slugHashLen = 8
)

// IngestService は取り込み元から取得した記事をslug単位でUPSERTする。
// 同じリンクの記事は同じslugになるため、再取得時は上書き更新になる。
type IngestService struct {
	repo      repository.ArticleRepository
	sanitizer security.Sanitizer
}

// NewIngestService はIngestServiceの新しいインスタンスを生成する。
func NewIngestService(repo repository.ArticleRepository, sanitizer security.Sanitizer) *IngestService {
	return &IngestService{repo: repo, sanitizer: sanitizer}
}

// UpsertArticles はフィードの記事を取り込み元の設定（カテゴリ・公開・注目）で保存する。
// タイトルとリンクの両方がない記事はスキップする。
// 戻り値は挿入数、更新数、エラー。
func (s *IngestService) UpsertArticles(
	ctx context.Context,
	source *model.ArticleSource,
	items []model.ParsedArticle,
) (inserted int, updated int, err error) {
	now := time.Now()

	for _, parsed := range items {
		if parsed.Title == "" && parsed.Link == "" {
			continue
		}

		a := s.buildArticle(source, parsed, now)

		isNew, upsertErr := s.repo.UpsertBySlug(ctx, a)
		if upsertErr != nil {
			slog.Error("記事のUPSERTでエラー",
				"source_id", source.ID,
				"slug", a.Slug,
				"error", upsertErr,
			)
			return inserted, updated, fmt.Errorf("記事のUPSERTに失敗: %w", upsertErr)
		}
		if isNew {
			inserted++
		} else {
			updated++
		}
	}

	slog.Info("記事UPSERT完了",
		"source_id", source.ID,
		"inserted", inserted,
		"updated", updated,
	)
	return inserted, updated, nil
}

// buildArticle はフィードの記事から保存用の記事を組み立てる。
// 本文はサニタイズし、抜粋とカバー画像はサニタイズ後の本文から抽出する。
// 公開日時がない場合は取り込み日時を使う。
func (s *IngestService) buildArticle(source *model.ArticleSource, parsed model.ParsedArticle, now time.Time) *model.Article {
	content := s.sanitizer.Sanitize(parsed.Content)
	if content == "" {
		content = s.sanitizer.Sanitize(parsed.Summary)
	}

	excerpt := ExtractExcerpt(s.sanitizer.Sanitize(parsed.Summary))
	if excerpt == "" {
		excerpt = ExtractExcerpt(content)
	}

	image := parsed.ImageURL
	if !strings.HasPrefix(image, "https://") {
		image = ExtractCoverImage(content)
	}

	title := strings.TrimSpace(parsed.Title)
	if title == "" {
		title = parsed.Link
	}

	publishedAt := now
	if parsed.PublishedAt != nil {
		publishedAt = *parsed.PublishedAt
	}

	key := parsed.Link
	if key == "" {
		key = parsed.GuidOrID
	}

	return &model.Article{
		ID:          uuid.New().String(),
		Title:       title,
		Slug:        Slugify(title, key),
		Excerpt:     excerpt,
		Content:     content,
		Category:    source.Category,
		Author:      parsed.Author,
		ImageURL:    image,
		SourceURL:   parsed.Link,
		Published:   source.AutoPublish,
		Featured:    source.Featured,
		PublishedAt: publishedAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Slugify はタイトルとリンクからslugを生成する。
// タイトルは小文字化し、英数字（Unicodeの文字・数字を含む）以外をハイフンにまとめる。
// 末尾にリンクのSHA-256先頭8桁を付与し、同名タイトルの衝突を避ける。
func Slugify(title, key string) string {
	var b strings.Builder
	runes := 0
	pendingHyphen := false

	for _, r := range strings.ToLower(title) {
		if runes >= maxSlugBaseRunes {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
				runes++
			}
			b.WriteRune(r)
			runes++
			pendingHyphen = false
			continue
		}
		pendingHyphen = true
	}

	sum := sha256.Sum256([]byte(key))
	hash := hex.EncodeToString(sum[:])[:slugHashLen]

	if b.Len() == 0 {
		return hash
	}
	return b.String() + "-" + hash
}
