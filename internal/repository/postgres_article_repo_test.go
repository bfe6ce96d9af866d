package repository

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/healscope/internal/model"
)

// PostgresArticleRepoはArticleRepositoryインターフェースを満たすことを検証
func TestPostgresArticleRepo_ImplementsInterface(t *testing.T) {
	var _ ArticleRepository = (*PostgresArticleRepo)(nil)
}

// PostgresArticleSourceRepoはArticleSourceRepositoryインターフェースを満たすことを検証
func TestPostgresArticleSourceRepo_ImplementsInterface(t *testing.T) {
	var _ ArticleSourceRepository = (*PostgresArticleSourceRepo)(nil)
}

func seedArticle(t *testing.T, repo *PostgresArticleRepo, slug, category string, published bool, at time.Time) *model.Article {
	t.Helper()
	a := &model.Article{
		ID:          uuid.NewString(),
		Title:       "Article " + slug,
		Slug:        slug,
		Excerpt:     "excerpt of " + slug,
		Content:     "<p>body</p>",
		Category:    category,
		Published:   published,
		PublishedAt: at,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
	if _, err := repo.UpsertBySlug(context.Background(), a); err != nil {
		t.Fatalf("UpsertBySlug() error = %v", err)
	}
	return a
}

// 統合テスト: 非公開記事が一覧・カテゴリ・slug参照のいずれにも現れないこと
func TestPostgresArticleRepo_ExcludesUnpublished(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresArticleRepo(db)
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	seedArticle(t, repo, "visible", "Nutrition", true, now)
	seedArticle(t, repo, "draft", "Secret", false, now)

	articles, total, err := repo.List(ctx, model.ArticleQuery{Page: 1, Limit: 12})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 1 || len(articles) != 1 || articles[0].Slug != "visible" {
		t.Errorf("List() = %d articles (total %d), want only the published one", len(articles), total)
	}
	if articles[0].Content != "" {
		t.Error("summary should not include content")
	}

	draft, err := repo.FindPublishedBySlug(ctx, "draft")
	if err != nil {
		t.Fatalf("FindPublishedBySlug() error = %v", err)
	}
	if draft != nil {
		t.Error("unpublished article should not be found by slug")
	}

	categories, err := repo.ListCategories(ctx)
	if err != nil {
		t.Fatalf("ListCategories() error = %v", err)
	}
	if len(categories) != 1 || categories[0] != "Nutrition" {
		t.Errorf("ListCategories() = %v, want [Nutrition]", categories)
	}
}

// 統合テスト: ページングと総件数
func TestPostgresArticleRepo_List_Pagination(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresArticleRepo(db)
	base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)

	for i := 0; i < 5; i++ {
		seedArticle(t, repo, uuid.NewString(), "Fitness", true, base.Add(time.Duration(i)*time.Minute))
	}

	page, total, err := repo.List(context.Background(), model.ArticleQuery{Page: 3, Limit: 2})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(page) != 1 {
		t.Errorf("len(page) = %d, want 1", len(page))
	}
}

// 統合テスト: カテゴリ・古い順・2ページ目で3件目と4件目が昇順で返ること
func TestPostgresArticleRepo_List_CategoryOldestSecondPage(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresArticleRepo(db)
	ctx := context.Background()
	base := time.Now().Add(-24 * time.Hour).Truncate(time.Millisecond)

	var eyes []*model.Article
	for i := 0; i < 5; i++ {
		eyes = append(eyes, seedArticle(t, repo, "eye-"+uuid.NewString(), "Eye Health", true, base.Add(time.Duration(i)*time.Hour)))
	}
	// 他カテゴリと非公開の記事は件数に含まれない
	seedArticle(t, repo, "skin-"+uuid.NewString(), "Skin Care", true, base.Add(30*time.Minute))
	seedArticle(t, repo, "sleep-"+uuid.NewString(), "Sleep", true, base.Add(90*time.Minute))
	seedArticle(t, repo, "draft-"+uuid.NewString(), "Eye Health", false, base.Add(150*time.Minute))

	q := model.ArticleQuery{Category: "Eye Health", Sort: model.ArticleSortOldest, Page: 2, Limit: 2}
	items, total, err := repo.List(ctx, q)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	wantPagination := model.Pagination{Page: 2, Limit: 2, Total: 5, Pages: 3}
	if got := model.NewPagination(q.Page, q.Limit, total); got != wantPagination {
		t.Errorf("pagination = %+v, want %+v", got, wantPagination)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}
	if items[0].ID != eyes[2].ID || items[1].ID != eyes[3].ID {
		t.Errorf("items = [%s %s], want [%s %s]", items[0].Slug, items[1].Slug, eyes[2].Slug, eyes[3].Slug)
	}
	if !items[0].PublishedAt.Before(items[1].PublishedAt) {
		t.Errorf("items should be ascending by published_at: %v, %v", items[0].PublishedAt, items[1].PublishedAt)
	}
	for _, a := range items {
		if a.Content != "" {
			t.Errorf("list item %s should not carry content", a.Slug)
		}
	}
}

// 統合テスト: likedではいいね数が単調非増加で並ぶこと
func TestPostgresArticleRepo_List_LikedOrder(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresArticleRepo(db)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)

	for i, likes := range []int{3, 0, 7, 7, -1, 2} {
		a := seedArticle(t, repo, uuid.NewString(), "Wellness", true, base.Add(time.Duration(i)*time.Minute))
		if likes == 0 {
			continue
		}
		if _, found, err := repo.AdjustLikes(ctx, a.ID, likes); err != nil || !found {
			t.Fatalf("AdjustLikes() found=%v err=%v", found, err)
		}
	}

	items, total, err := repo.List(ctx, model.ArticleQuery{Sort: model.ArticleSortLiked, Page: 1, Limit: 10})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 6 || len(items) != 6 {
		t.Fatalf("total=%d len=%d, want 6", total, len(items))
	}
	for i := 1; i < len(items); i++ {
		if items[i].Likes > items[i-1].Likes {
			t.Errorf("likes not non-increasing at %d: %d > %d", i, items[i].Likes, items[i-1].Likes)
		}
	}
	if items[0].Likes != 7 || items[len(items)-1].Likes != -1 {
		t.Errorf("first=%d last=%d, want 7 and -1", items[0].Likes, items[len(items)-1].Likes)
	}
}

// 統合テスト: category=Allはカテゴリ未指定と同じ結果になること
func TestPostgresArticleRepo_List_CategoryAllMatchesNoFilter(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresArticleRepo(db)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)

	for i, category := range []string{"Eye Health", "Skin Care", "Sleep", "Eye Health"} {
		seedArticle(t, repo, uuid.NewString(), category, true, base.Add(time.Duration(i)*time.Minute))
	}

	ids := func(category string) ([]string, int) {
		t.Helper()
		items, total, err := repo.List(ctx, model.ArticleQuery{Category: category, Page: 1, Limit: 10})
		if err != nil {
			t.Fatalf("List(%q) error = %v", category, err)
		}
		out := make([]string, 0, len(items))
		for _, a := range items {
			out = append(out, a.ID)
		}
		return out, total
	}

	all, allTotal := ids(model.CategoryAll)
	none, noneTotal := ids("")
	if allTotal != 4 || noneTotal != 4 {
		t.Errorf("totals = (%d, %d), want (4, 4)", allTotal, noneTotal)
	}
	if strings.Join(all, ",") != strings.Join(none, ",") {
		t.Errorf("All = %v, no category = %v", all, none)
	}
}

// 統合テスト: 同時の閲覧数加算が失われないこと
func TestPostgresArticleRepo_IncrementViews_Concurrent(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresArticleRepo(db)
	a := seedArticle(t, repo, "popular", "Fitness", true, time.Now())

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := repo.IncrementViews(context.Background(), a.ID); err != nil {
				t.Errorf("IncrementViews() error = %v", err)
			}
		}()
	}
	wg.Wait()

	views, found, err := repo.IncrementViews(context.Background(), a.ID)
	if err != nil || !found {
		t.Fatalf("IncrementViews() = %d, %v, %v", views, found, err)
	}
	if views != n+1 {
		t.Errorf("views = %d, want %d", views, n+1)
	}
}

// 統合テスト: いいね数は0未満にもなり得ること、存在しない記事はfound=false
func TestPostgresArticleRepo_AdjustLikes(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresArticleRepo(db)
	ctx := context.Background()
	a := seedArticle(t, repo, "liked", "Fitness", true, time.Now())

	likes, found, err := repo.AdjustLikes(ctx, a.ID, -1)
	if err != nil || !found {
		t.Fatalf("AdjustLikes() = %d, %v, %v", likes, found, err)
	}
	if likes != -1 {
		t.Errorf("likes = %d, want -1", likes)
	}

	_, found, err = repo.AdjustLikes(ctx, uuid.NewString(), 1)
	if err != nil {
		t.Fatalf("AdjustLikes() error = %v", err)
	}
	if found {
		t.Error("found should be false for missing article")
	}
}

// 統合テスト: 再取り込み時に閲覧数・いいね数・公開フラグが維持されること
func TestPostgresArticleRepo_UpsertBySlug_PreservesCounters(t *testing.T) {
	db := openTestDB(t)
	repo := NewPostgresArticleRepo(db)
	ctx := context.Background()
	a := seedArticle(t, repo, "kept", "Fitness", true, time.Now())

	if _, _, err := repo.IncrementViews(ctx, a.ID); err != nil {
		t.Fatalf("IncrementViews() error = %v", err)
	}

	again := *a
	again.ID = uuid.NewString()
	again.Title = "Updated title"
	again.Published = false
	inserted, err := repo.UpsertBySlug(ctx, &again)
	if err != nil {
		t.Fatalf("UpsertBySlug() error = %v", err)
	}
	if inserted {
		t.Error("second upsert should update, not insert")
	}

	got, err := repo.FindPublishedBySlug(ctx, "kept")
	if err != nil || got == nil {
		t.Fatalf("FindPublishedBySlug() = %v, %v", got, err)
	}
	if got.Title != "Updated title" {
		t.Errorf("Title = %q, want updated", got.Title)
	}
	if got.Views != 1 {
		t.Errorf("Views = %d, want 1", got.Views)
	}
	if got.ID != a.ID {
		t.Errorf("ID changed to %s", got.ID)
	}
}
