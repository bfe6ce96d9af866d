package repository

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/hitoshi/healscope/internal/model"
)

// PostgresArticleRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresArticleRepo struct {
	db *sql.DB
}

// NewPostgresArticleRepo はPostgresArticleRepoを生成する。
func NewPostgresArticleRepo(db *sql.DB) *PostgresArticleRepo {
	return &PostgresArticleRepo{db: db}
}

// List は検索条件に一致する公開記事の1ページ分と総件数を返す。
func (r *PostgresArticleRepo) List(ctx context.Context, q model.ArticleQuery) ([]*model.Article, int, error) {
	var total int
	countSQL, countArgs, err := BuildArticleCountQuery(q).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("記事件数クエリの生成に失敗しました: %w", err)
	}
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("記事件数の取得に失敗しました: %w", err)
	}

	articles, err := r.querySummaries(ctx, BuildArticleListQuery(q))
	if err != nil {
		return nil, 0, err
	}
	return articles, total, nil
}

// FindPublishedBySlug はslugで公開記事を本文付きで取得する。見つからない場合はnilを返す。
func (r *PostgresArticleRepo) FindPublishedBySlug(ctx context.Context, slug string) (*model.Article, error) {
	a := &model.Article{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, slug, excerpt, content, category, author, image_url, source_url,
		        published, featured, views, likes, published_at, created_at, updated_at
		 FROM articles WHERE slug = $1 AND published = true`,
		slug,
	).Scan(
		&a.ID, &a.Title, &a.Slug, &a.Excerpt, &a.Content, &a.Category, &a.Author,
		&a.ImageURL, &a.SourceURL, &a.Published, &a.Featured, &a.Views, &a.Likes,
		&a.PublishedAt, &a.CreatedAt, &a.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	return a, nil
}

// ListFeatured は注目記事を新着順にlimit件まで返す。
func (r *PostgresArticleRepo) ListFeatured(ctx context.Context, limit int) ([]*model.Article, error) {
	return r.querySummaries(ctx, BuildFeaturedQuery(limit))
}

// ListByCategory は指定カテゴリの公開記事を新着順に返す。
func (r *PostgresArticleRepo) ListByCategory(ctx context.Context, category string) ([]*model.Article, error) {
	return r.querySummaries(ctx, BuildCategoryQuery(category))
}

// ListCategories は公開記事のカテゴリを重複なしで昇順に返す。
func (r *PostgresArticleRepo) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT category FROM articles
		 WHERE published = true AND category <> ''
		 ORDER BY category ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("カテゴリ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("カテゴリの読み取りに失敗しました: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("カテゴリ一覧の走査に失敗しました: %w", err)
	}
	return categories, nil
}

// IncrementViews は閲覧数を1加算し、加算後の値を返す。
// 単一のUPDATE文で加算するため、同時リクエストでも加算が失われない。
func (r *PostgresArticleRepo) IncrementViews(ctx context.Context, id string) (int64, bool, error) {
	var views int64
	err := r.db.QueryRowContext(ctx,
		`UPDATE articles SET views = views + 1 WHERE id = $1 RETURNING views`,
		id,
	).Scan(&views)

	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("閲覧数の更新に失敗しました: %w", err)
	}
	return views, true, nil
}

// AdjustLikes はいいね数をdelta加算し、加算後の値を返す。
func (r *PostgresArticleRepo) AdjustLikes(ctx context.Context, id string, delta int) (int64, bool, error) {
	var likes int64
	err := r.db.QueryRowContext(ctx,
		`UPDATE articles SET likes = likes + $2 WHERE id = $1 RETURNING likes`,
		id, delta,
	).Scan(&likes)

	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("いいね数の更新に失敗しました: %w", err)
	}
	return likes, true, nil
}

// UpsertBySlug はslugをキーに記事を挿入または更新する。
// 既存記事の閲覧数・いいね数・公開フラグ・注目フラグは上書きしない。
func (r *PostgresArticleRepo) UpsertBySlug(ctx context.Context, a *model.Article) (bool, error) {
	var inserted bool
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO articles (id, title, slug, excerpt, content, category, author,
		                       image_url, source_url, published, featured,
		                       published_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (slug) DO UPDATE SET
		    title = EXCLUDED.title,
		    excerpt = EXCLUDED.excerpt,
		    content = EXCLUDED.content,
		    category = EXCLUDED.category,
		    author = EXCLUDED.author,
		    image_url = EXCLUDED.image_url,
		    source_url = EXCLUDED.source_url,
		    updated_at = EXCLUDED.updated_at
		 RETURNING (xmax = 0)`,
		a.ID, a.Title, a.Slug, a.Excerpt, a.Content, a.Category, a.Author,
		a.ImageURL, a.SourceURL, a.Published, a.Featured,
		a.PublishedAt, a.CreatedAt, a.UpdatedAt,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("記事のupsertに失敗しました: %w", err)
	}
	return inserted, nil
}

// querySummaries はサマリーカラムを返すクエリを実行して記事一覧を読み取る。
func (r *PostgresArticleRepo) querySummaries(ctx context.Context, b sq.SelectBuilder) ([]*model.Article, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("記事一覧クエリの生成に失敗しました: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	articles := []*model.Article{}
	for rows.Next() {
		a := &model.Article{}
		if err := rows.Scan(
			&a.ID, &a.Title, &a.Slug, &a.Excerpt, &a.Category, &a.Author,
			&a.ImageURL, &a.SourceURL, &a.Published, &a.Featured, &a.Views, &a.Likes,
			&a.PublishedAt, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("記事行の読み取りに失敗しました: %w", err)
		}
		articles = append(articles, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("記事一覧の走査に失敗しました: %w", err)
	}
	return articles, nil
}

// compile-time interface check
var _ ArticleRepository = (*PostgresArticleRepo)(nil)
