package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/healscope/internal/metrics"
	"github.com/hitoshi/healscope/internal/model"
	"github.com/hitoshi/healscope/internal/repository"
)

// defaultIntervalMinutes は取り込み元に間隔が設定されていない場合のフェッチ間隔。
const defaultIntervalMinutes = 60

const userAgent = "HealScope/1.0 (+article ingestion)"

// ArticleUpserter は記事のUPSERT処理のインターフェース。
// article.IngestServiceが実装する。
type ArticleUpserter interface {
	UpsertArticles(ctx context.Context, source *model.ArticleSource, items []model.ParsedArticle) (int, int, error)
}

// URLValidator はSSRF検証のインターフェース。
type URLValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// Fetcher は取り込み元1件のHTTPフェッチとパースを行う。
// 条件付きGET、SSRF検証、gofeedによるパース、記事の保存を実行する。
type Fetcher struct {
	sourceRepo  repository.ArticleSourceRepository
	upserter    ArticleUpserter
	guard       URLValidator
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
	timeout     time.Duration
	maxBodySize int64
	now         func() time.Time
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
// collectorがnilの場合はメトリクスを記録しない。
func NewFetcher(
	sourceRepo repository.ArticleSourceRepository,
	upserter ArticleUpserter,
	guard URLValidator,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	timeout time.Duration,
	maxBodySize int64,
) *Fetcher {
	if collector == nil {
		collector = nopCollector{}
	}
	return &Fetcher{
		sourceRepo:  sourceRepo,
		upserter:    upserter,
		guard:       guard,
		metrics:     collector,
		logger:      logger,
		timeout:     timeout,
		maxBodySize: maxBodySize,
		now:         time.Now,
	}
}

// Fetch は取り込み元をフェッチし、結果に応じてフェッチ状態を更新する。
func (f *Fetcher) Fetch(ctx context.Context, src *model.ArticleSource) error {
	start := f.now()

	if err := f.guard.ValidateURL(src.FeedURL); err != nil {
		f.logger.Error("SSRF検証に失敗しました",
			slog.String("source_id", src.ID),
			slog.String("feed_url", src.FeedURL),
			slog.String("error", err.Error()),
		)
		f.metrics.RecordFetchFailure(src.ID, "ssrf")
		ApplyStop(src, fmt.Sprintf("SSRF検証失敗: %s", err.Error()), f.now())
		f.saveState(ctx, src)
		return fmt.Errorf("SSRF検証に失敗: %w", err)
	}

	client := f.guard.NewSafeClient(f.timeout, f.maxBodySize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.FeedURL, nil)
	if err != nil {
		return fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")
	if src.ETag != "" {
		req.Header.Set("If-None-Match", src.ETag)
	}
	if src.LastModified != "" {
		req.Header.Set("If-Modified-Since", src.LastModified)
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		f.logger.Error("HTTPリクエストに失敗しました",
			slog.String("source_id", src.ID),
			slog.String("feed_url", src.FeedURL),
			slog.String("error", err.Error()),
		)
		f.metrics.RecordFetchFailure(src.ID, "network")
		ApplyBackoff(src, fmt.Sprintf("HTTPリクエスト失敗: %s", err.Error()), f.now())
		f.saveState(ctx, src)
		return fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	f.metrics.RecordHTTPStatus(resp.StatusCode)
	f.metrics.RecordFetchLatency(f.now().Sub(start))

	switch ClassifyHTTPStatus(resp.StatusCode) {
	case FetchResultNotModified:
		f.logger.Info("取り込み元は未変更です（304）",
			slog.String("source_id", src.ID),
			slog.String("feed_url", src.FeedURL),
		)
		f.metrics.RecordFetchSuccess(src.ID)
		ApplySuccess(src, f.now())
		return f.sourceRepo.UpdateFetchState(ctx, src)

	case FetchResultStop:
		reason := fmt.Sprintf("HTTPステータス %d により取り込みを停止しました", resp.StatusCode)
		f.logger.Warn("取り込みを停止します",
			slog.String("source_id", src.ID),
			slog.String("feed_url", src.FeedURL),
			slog.Int("http_status", resp.StatusCode),
		)
		f.metrics.RecordFetchFailure(src.ID, "stopped")
		ApplyStop(src, reason, f.now())
		return f.sourceRepo.UpdateFetchState(ctx, src)

	case FetchResultBackoff:
		f.logger.Warn("取り込みにバックオフを適用します",
			slog.String("source_id", src.ID),
			slog.String("feed_url", src.FeedURL),
			slog.Int("http_status", resp.StatusCode),
			slog.Int("consecutive_errors", src.ConsecutiveErrors+1),
		)
		f.metrics.RecordFetchFailure(src.ID, "backoff")
		ApplyBackoff(src, fmt.Sprintf("HTTPステータス %d によりバックオフを適用しました", resp.StatusCode), f.now())
		return f.sourceRepo.UpdateFetchState(ctx, src)

	case FetchResultOK:
	default:
		f.logger.Warn("予期しないHTTPステータスコード",
			slog.String("source_id", src.ID),
			slog.Int("http_status", resp.StatusCode),
		)
		f.metrics.RecordFetchFailure(src.ID, "unexpected_status")
		ApplyBackoff(src, fmt.Sprintf("予期しないHTTPステータス: %d", resp.StatusCode), f.now())
		return f.sourceRepo.UpdateFetchState(ctx, src)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		f.logger.Error("レスポンスボディの読み取りに失敗しました",
			slog.String("source_id", src.ID),
			slog.String("error", err.Error()),
		)
		f.metrics.RecordFetchFailure(src.ID, "read")
		ApplyBackoff(src, fmt.Sprintf("レスポンス読み取り失敗: %s", err.Error()), f.now())
		return f.sourceRepo.UpdateFetchState(ctx, src)
	}

	if etag := resp.Header.Get("ETag"); etag != "" {
		src.ETag = etag
	}
	if lastMod := resp.Header.Get("Last-Modified"); lastMod != "" {
		src.LastModified = lastMod
	}

	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil && IsHTML(resp.Header.Get("Content-Type")) {
		if feedURL, ok := DiscoverFeedURL(body, src.FeedURL); ok && feedURL != src.FeedURL && f.guard.ValidateURL(feedURL) == nil {
			f.logger.Info("HTMLページからフィードURLを検出しました",
				slog.String("source_id", src.ID),
				slog.String("page_url", src.FeedURL),
				slog.String("feed_url", feedURL),
			)
			ApplyRedirect(src, feedURL, f.now())
			return f.sourceRepo.UpdateFetchState(ctx, src)
		}
	}
	if err != nil {
		f.logger.Error("フィードのパースに失敗しました",
			slog.String("source_id", src.ID),
			slog.String("feed_url", src.FeedURL),
			slog.String("error", err.Error()),
		)
		f.metrics.RecordParseFailure(src.ID)
		ApplyParseFailure(src, err.Error(), f.now())
		f.saveState(ctx, src)
		return nil
	}

	items := ConvertItems(parsed.Items)
	inserted, updated, err := f.upserter.UpsertArticles(ctx, src, items)
	if err != nil {
		f.logger.Error("記事のUPSERTに失敗しました",
			slog.String("source_id", src.ID),
			slog.String("error", err.Error()),
		)
		f.metrics.RecordFetchFailure(src.ID, "upsert")
		ApplyBackoff(src, fmt.Sprintf("記事UPSERT失敗: %s", err.Error()), f.now())
		f.saveState(ctx, src)
		return nil
	}
	f.metrics.RecordArticlesUpserted(inserted, updated)
	f.metrics.RecordFetchSuccess(src.ID)

	ApplySuccess(src, f.now())
	if err := f.sourceRepo.UpdateFetchState(ctx, src); err != nil {
		f.logger.Error("取り込み元の状態更新に失敗しました",
			slog.String("source_id", src.ID),
			slog.String("error", err.Error()),
		)
		return err
	}

	f.logger.Info("取り込みが完了しました",
		slog.String("source_id", src.ID),
		slog.String("feed_url", src.FeedURL),
		slog.Int("http_status", resp.StatusCode),
		slog.Int("articles_inserted", inserted),
		slog.Int("articles_updated", updated),
		slog.Int("articles_total", len(items)),
		slog.Float64("duration_ms", float64(f.now().Sub(start).Milliseconds())),
	)
	return nil
}

// saveState は失敗経路でフェッチ状態を保存する。保存エラーはログのみ。
func (f *Fetcher) saveState(ctx context.Context, src *model.ArticleSource) {
	if err := f.sourceRepo.UpdateFetchState(ctx, src); err != nil {
		f.logger.Error("取り込み元の状態更新に失敗しました",
			slog.String("source_id", src.ID),
			slog.String("error", err.Error()),
		)
	}
}

// ConvertItems はgofeedの記事をmodel.ParsedArticleに変換する。
func ConvertItems(items []*gofeed.Item) []model.ParsedArticle {
	out := make([]model.ParsedArticle, 0, len(items))

	for _, item := range items {
		if item == nil {
			continue
		}

		parsed := model.ParsedArticle{
			GuidOrID: item.GUID,
			Title:    item.Title,
			Link:     item.Link,
			Content:  item.Content,
			Summary:  item.Description,
		}

		if item.Author != nil {
			parsed.Author = item.Author.Name
		}
		if parsed.Author == "" && len(item.Authors) > 0 && item.Authors[0] != nil {
			parsed.Author = item.Authors[0].Name
		}

		if item.Image != nil {
			parsed.ImageURL = item.Image.URL
		}
		if parsed.ImageURL == "" {
			for _, enc := range item.Enclosures {
				if enc != nil && strings.HasPrefix(enc.Type, "image/") {
					parsed.ImageURL = enc.URL
					break
				}
			}
		}

		if item.PublishedParsed != nil {
			t := *item.PublishedParsed
			parsed.PublishedAt = &t
		} else if item.UpdatedParsed != nil {
			t := *item.UpdatedParsed
			parsed.PublishedAt = &t
		}

		// リンクがなくGUIDがURLの場合はGUIDをリンクとして使う
		if parsed.Link == "" &&
			(strings.HasPrefix(parsed.GuidOrID, "http://") || strings.HasPrefix(parsed.GuidOrID, "https://")) {
			parsed.Link = parsed.GuidOrID
		}

		out = append(out, parsed)
	}

	return out
}

type nopCollector struct{}

func (nopCollector) RecordFetchSuccess(string) {}
func (nopCollector) RecordFetchFailure(string, string) {}
func (nopCollector) RecordParseFailure(string) {}
func (nopCollector) RecordHTTPStatus(int) {}
func (nopCollector) RecordFetchLatency(time.Duration) {}
func (nopCollector) RecordArticlesUpserted(int, int) {}
