package article

import (
	"context"

	"github.com/hitoshi/healscope/internal/model"
)

// --- テスト用モック ---

// mockArticleRepo はテスト用のArticleRepositoryモック。
// 関数フィールドが未設定のメソッドはゼロ値を返す。
type mockArticleRepo struct {
	listFn           func(ctx context.Context, q model.ArticleQuery) ([]*model.Article, int, error)
	findBySlugFn     func(ctx context.Context, slug string) (*model.Article, error)
	listFeaturedFn   func(ctx context.Context, limit int) ([]*model.Article, error)
	listByCategoryFn func(ctx context.Context, category string) ([]*model.Article, error)
	listCategoriesFn func(ctx context.Context) ([]string, error)
	incrementViewsFn func(ctx context.Context, id string) (int64, bool, error)
	adjustLikesFn    func(ctx context.Context, id string, delta int) (int64, bool, error)

	upserted map[string]*model.Article // slug -> article
}

func (m *mockArticleRepo) List(ctx context.Context, q model.ArticleQuery) ([]*model.Article, int, error) {
	if m.listFn != nil {
		return m.listFn(ctx, q)
	}
	return nil, 0, nil
}

func (m *mockArticleRepo) FindPublishedBySlug(ctx context.Context, slug string) (*model.Article, error) {
	if m.findBySlugFn != nil {
		return m.findBySlugFn(ctx, slug)
	}
	return nil, nil
}

func (m *mockArticleRepo) ListFeatured(ctx context.Context, limit int) ([]*model.Article, error) {
	if m.listFeaturedFn != nil {
		return m.listFeaturedFn(ctx, limit)
	}
	return nil, nil
}

func (m *mockArticleRepo) ListByCategory(ctx context.Context, category string) ([]*model.Article, error) {
	if m.listByCategoryFn != nil {
		return m.listByCategoryFn(ctx, category)
	}
	return nil, nil
}

func (m *mockArticleRepo) ListCategories(ctx context.Context) ([]string, error) {
	if m.listCategoriesFn != nil {
		return m.listCategoriesFn(ctx)
	}
	return nil, nil
}

func (m *mockArticleRepo) IncrementViews(ctx context.Context, id string) (int64, bool, error) {
	if m.incrementViewsFn != nil {
		return m.incrementViewsFn(ctx, id)
	}
	return 0, false, nil
}

func (m *mockArticleRepo) AdjustLikes(ctx context.Context, id string, delta int) (int64, bool, error) {
	if m.adjustLikesFn != nil {
		return m.adjustLikesFn(ctx, id, delta)
	}
	return 0, false, nil
}

func (m *mockArticleRepo) UpsertBySlug(_ context.Context, a *model.Article) (bool, error) {
	if m.upserted == nil {
		m.upserted = make(map[string]*model.Article)
	}
	_, exists := m.upserted[a.Slug]
	m.upserted[a.Slug] = a
	return !exists, nil
}
