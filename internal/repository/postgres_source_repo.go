package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/healscope/internal/model"
)

// PostgresArticleSourceRepo はPostgreSQLを使用した記事取り込み元リポジトリ。
type PostgresArticleSourceRepo struct {
	db *sql.DB
}

// NewPostgresArticleSourceRepo はPostgresArticleSourceRepoを生成する。
func NewPostgresArticleSourceRepo(db *sql.DB) *PostgresArticleSourceRepo {
	return &PostgresArticleSourceRepo{db: db}
}

// UpsertByFeedURL はフィードURLをキーに取り込み元を登録する。
// 既存の取り込み元はETag・エラー回数などのフェッチ状態を維持する。
func (r *PostgresArticleSourceRepo) UpsertByFeedURL(ctx context.Context, s *model.ArticleSource) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO article_sources (id, feed_url, title, category, auto_publish, featured,
		                              fetch_status, fetch_interval_minutes, next_fetch_at,
		                              created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (feed_url) DO UPDATE SET
		    title = EXCLUDED.title,
		    category = EXCLUDED.category,
		    auto_publish = EXCLUDED.auto_publish,
		    featured = EXCLUDED.featured,
		    fetch_interval_minutes = EXCLUDED.fetch_interval_minutes,
		    updated_at = EXCLUDED.updated_at`,
		s.ID, s.FeedURL, s.Title, s.Category, s.AutoPublish, s.Featured,
		s.FetchStatus, s.FetchIntervalMinutes, s.NextFetchAt,
		s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("取り込み元の登録に失敗しました: %w", err)
	}
	return nil
}

// ListDueForFetch はフェッチ対象の取り込み元を取得する。
// next_fetch_at <= now() かつ fetch_status = 'active' の取り込み元を
// FOR UPDATE SKIP LOCKEDで排他的に取得する。
func (r *PostgresArticleSourceRepo) ListDueForFetch(ctx context.Context) ([]*model.ArticleSource, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, feed_url, title, category, auto_publish, featured,
		        etag, last_modified, fetch_status, consecutive_errors,
		        error_message, fetch_interval_minutes, next_fetch_at, created_at, updated_at
		 FROM article_sources
		 WHERE next_fetch_at <= now()
		   AND fetch_status = 'active'
		 ORDER BY next_fetch_at ASC
		 FOR UPDATE SKIP LOCKED`,
	)
	if err != nil {
		return nil, fmt.Errorf("フェッチ対象の取り込み元の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var sources []*model.ArticleSource
	for rows.Next() {
		s := &model.ArticleSource{}
		if err := rows.Scan(
			&s.ID, &s.FeedURL, &s.Title, &s.Category, &s.AutoPublish, &s.Featured,
			&s.ETag, &s.LastModified, &s.FetchStatus, &s.ConsecutiveErrors,
			&s.ErrorMessage, &s.FetchIntervalMinutes, &s.NextFetchAt, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("取り込み元の読み取りに失敗しました: %w", err)
		}
		sources = append(sources, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("取り込み元の走査に失敗しました: %w", err)
	}
	return sources, nil
}

// UpdateFetchState は取り込み元のフェッチ状態を更新する。
// HTMLページから検出したフィードURLへの置き換えもここで保存する。
func (r *PostgresArticleSourceRepo) UpdateFetchState(ctx context.Context, s *model.ArticleSource) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE article_sources SET
		    fetch_status = $2,
		    consecutive_errors = $3,
		    error_message = $4,
		    next_fetch_at = $5,
		    etag = $6,
		    last_modified = $7,
		    feed_url = $8,
		    updated_at = now()
		 WHERE id = $1`,
		s.ID,
		s.FetchStatus,
		s.ConsecutiveErrors,
		s.ErrorMessage,
		s.NextFetchAt,
		s.ETag,
		s.LastModified,
		s.FeedURL,
	)
	if err != nil {
		return fmt.Errorf("フェッチ状態の更新に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ArticleSourceRepository = (*PostgresArticleSourceRepo)(nil)
