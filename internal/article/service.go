// Package article は健康記事の閲覧・カウンター操作と、取り込み記事のUPSERT処理を提供する。
package article

import (
	"context"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/healscope/internal/model"
	"github.com/hitoshi/healscope/internal/repository"
)

const (
	// DefaultPage はpage未指定時のページ番号。
	DefaultPage = 1
	// DefaultLimit はlimit未指定時の1ページあたりの件数。
	DefaultLimit = 12
	// MaxLimit はlimitの上限。
	MaxLimit = 100
	// MaxPage はpageの上限。MaxLimit件でも読み飛ばし件数がintに収まる。
	MaxPage = math.MaxInt / MaxLimit
	// FeaturedLimit は注目記事の最大件数。
	FeaturedLimit = 3
)

// LikeAction はいいね操作でカウントを加算するアクション名。これ以外は減算として扱う。
const LikeAction = "like"

// ArticleService は記事の閲覧とカウンター操作のサービス。
type ArticleService struct {
	repo repository.ArticleRepository
}

// NewArticleService はArticleServiceの新しいインスタンスを生成する。
func NewArticleService(repo repository.ArticleRepository) *ArticleService {
	return &ArticleService{repo: repo}
}

// ListResult は記事一覧の1ページ分とページネーション情報。
type ListResult struct {
	Items      []*model.Article
	Pagination model.Pagination
}

// ParseQuery はクエリパラメータを記事検索条件に変換する。
// 不正な値はエラーにせず既定値にフォールバックする:
//   - page/limit: 数値でない、または1未満の場合は既定値。limitはMaxLimit、pageはMaxPageで頭打ち
//   - date: YYYY-MM-DDとして解釈できない場合は無視
//   - sort: 未知の値は新着順
func ParseQuery(params url.Values, loc *time.Location) model.ArticleQuery {
	q := model.ArticleQuery{
		Search:   strings.TrimSpace(params.Get("search")),
		Category: strings.TrimSpace(params.Get("category")),
		Sort:     parseSort(params.Get("sort")),
		Page:     positiveInt(params.Get("page"), DefaultPage),
		Limit:    positiveInt(params.Get("limit"), DefaultLimit),
	}

	if q.Category == model.CategoryAll {
		q.Category = ""
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if q.Page > MaxPage {
		q.Page = MaxPage
	}
	if loc == nil {
		loc = time.Local
	}
	if raw := params.Get("date"); raw != "" {
		if d, err := time.ParseInLocation("2006-01-02", raw, loc); err == nil {
			q.Date = &d
		}
	}
	return q
}

func parseSort(raw string) model.ArticleSort {
	switch s := model.ArticleSort(raw); s {
	case model.ArticleSortNewest, model.ArticleSortOldest, model.ArticleSortPopular, model.ArticleSortLiked:
		return s
	}
	return model.ArticleSortNewest
}

func positiveInt(raw string, def int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}

// List は検索条件に一致する公開記事を1ページ分返す。
func (s *ArticleService) List(ctx context.Context, q model.ArticleQuery) (*ListResult, error) {
	items, total, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, err
	}
	return &ListResult{
		Items:      items,
		Pagination: model.NewPagination(q.Page, q.Limit, total),
	}, nil
}

// GetBySlug は公開記事を本文付きで返す。非公開または存在しない場合はNotFound。
func (s *ArticleService) GetBySlug(ctx context.Context, slug string) (*model.Article, error) {
	a, err := s.repo.FindPublishedBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, model.NewArticleNotFoundError(slug)
	}
	return a, nil
}

// Featured は注目記事を新着順にFeaturedLimit件まで返す。
func (s *ArticleService) Featured(ctx context.Context) ([]*model.Article, error) {
	return s.repo.ListFeatured(ctx, FeaturedLimit)
}

// Categories は先頭に"All"を加えたカテゴリ一覧を返す。
func (s *ArticleService) Categories(ctx context.Context) ([]string, error) {
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	return append([]string{model.CategoryAll}, categories...), nil
}

// ByCategory は指定カテゴリの公開記事を新着順に返す。
func (s *ArticleService) ByCategory(ctx context.Context, category string) ([]*model.Article, error) {
	return s.repo.ListByCategory(ctx, category)
}

// RecordView は閲覧数を1加算し、加算後の値を返す。
// UUIDとして解釈できないIDは存在しない記事として扱う。
func (s *ArticleService) RecordView(ctx context.Context, id string) (int64, error) {
	if _, err := uuid.Parse(id); err != nil {
		return 0, model.NewArticleNotFoundError(id)
	}

	views, found, err := s.repo.IncrementViews(ctx, id)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, model.NewArticleNotFoundError(id)
	}
	return views, nil
}

// Like はactionが"like"なら1加算、それ以外は1減算し、更新後のいいね数を返す。
// 下限は設けない。
func (s *ArticleService) Like(ctx context.Context, id, action string) (int64, error) {
	if _, err := uuid.Parse(id); err != nil {
		return 0, model.NewArticleNotFoundError(id)
	}

	delta := -1
	if action == LikeAction {
		delta = 1
	}

	likes, found, err := s.repo.AdjustLikes(ctx, id, delta)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, model.NewArticleNotFoundError(id)
	}
	return likes, nil
}
