package handler

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/healscope/internal/article"
	"github.com/hitoshi/healscope/internal/model"
)

// ArticleServiceInterface は記事ハンドラーが必要とするサービスインターフェース。
type ArticleServiceInterface interface {
	List(ctx context.Context, q model.ArticleQuery) (*article.ListResult, error)
	GetBySlug(ctx context.Context, slug string) (*model.Article, error)
	Featured(ctx context.Context) ([]*model.Article, error)
	Categories(ctx context.Context) ([]string, error)
	ByCategory(ctx context.Context, category string) ([]*model.Article, error)
	RecordView(ctx context.Context, id string) (int64, error)
	Like(ctx context.Context, id, action string) (int64, error)
}

// ArticleHandler は公開記事のHTTPハンドラー。
type ArticleHandler struct {
	service ArticleServiceInterface
	// loc はdateクエリを解釈するタイムゾーン。
	loc *time.Location
}

// NewArticleHandler はArticleHandlerを生成する。locがnilの場合はサーバーのローカル時刻を使う。
func NewArticleHandler(service ArticleServiceInterface, loc *time.Location) *ArticleHandler {
	if loc == nil {
		loc = time.Local
	}
	return &ArticleHandler{service: service, loc: loc}
}

// --- レスポンス型 ---

// articleResponse は記事のレスポンス。contentは詳細取得時のみ含む。
type articleResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Slug        string    `json:"slug"`
	Excerpt     string    `json:"excerpt"`
	Content     string    `json:"content,omitempty"`
	Category    string    `json:"category"`
	Author      string    `json:"author"`
	ImageURL    string    `json:"imageUrl"`
	SourceURL   string    `json:"sourceUrl,omitempty"`
	Featured    bool      `json:"featured"`
	Views       int64     `json:"views"`
	Likes       int64     `json:"likes"`
	PublishedAt time.Time `json:"publishedAt"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// paginationResponse はページネーションのレスポンス。
type paginationResponse struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// likeRequest はいいね操作リクエストのボディ。
type likeRequest struct {
	Action string `json:"action"`
}

func toArticleResponse(a *model.Article) articleResponse {
	return articleResponse{
		ID:          a.ID,
		Title:       a.Title,
		Slug:        a.Slug,
		Excerpt:     a.Excerpt,
		Content:     a.Content,
		Category:    a.Category,
		Author:      a.Author,
		ImageURL:    a.ImageURL,
		SourceURL:   a.SourceURL,
		Featured:    a.Featured,
		Views:       a.Views,
		Likes:       a.Likes,
		PublishedAt: a.PublishedAt,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func toArticleResponses(items []*model.Article) []articleResponse {
	results := make([]articleResponse, len(items))
	for i, a := range items {
		results[i] = toArticleResponse(a)
	}
	return results
}

// ListArticles は検索条件に一致する公開記事を1ページ分返す。
// GET /api/articles?search=&category=&date=&sort=&page=&limit=
func (h *ArticleHandler) ListArticles(w http.ResponseWriter, r *http.Request) {
	q := article.ParseQuery(r.URL.Query(), h.loc)

	result, err := h.service.List(r.Context(), q)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, envelope{
		"articles": toArticleResponses(result.Items),
		"pagination": paginationResponse{
			Page:  result.Pagination.Page,
			Limit: result.Pagination.Limit,
			Total: result.Pagination.Total,
			Pages: result.Pagination.Pages,
		},
	})
}

// GetArticle はslugで公開記事を本文付きで返す。
// GET /api/articles/{slug}
func (h *ArticleHandler) GetArticle(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"article": toArticleResponse(a)})
}

// FeaturedArticles は注目記事を返す。
// GET /api/articles/featured
func (h *ArticleHandler) FeaturedArticles(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Featured(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"articles": toArticleResponses(items)})
}

// ListCategories はカテゴリ一覧を返す。
// GET /api/articles/categories
func (h *ArticleHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.Categories(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"categories": categories})
}

// ArticlesByCategory は指定カテゴリの公開記事を返す。
// GET /api/articles/category/{category}
func (h *ArticleHandler) ArticlesByCategory(w http.ResponseWriter, r *http.Request) {
	category, err := url.PathUnescape(chi.URLParam(r, "category"))
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("Invalid category"))
		return
	}

	items, err := h.service.ByCategory(r.Context(), category)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"articles": toArticleResponses(items)})
}

// RecordView は閲覧数を1加算する。
// POST /api/articles/{id}/view
func (h *ArticleHandler) RecordView(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.RecordView(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"views": views})
}

// LikeArticle はactionに応じていいね数を増減する。ボディが空の場合は減算として扱う。
// POST /api/articles/{id}/like
func (h *ArticleHandler) LikeArticle(w http.ResponseWriter, r *http.Request) {
	var req likeRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}

	likes, err := h.service.Like(r.Context(), chi.URLParam(r, "id"), req.Action)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"likes": likes})
}
