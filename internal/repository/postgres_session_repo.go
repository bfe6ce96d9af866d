package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/healscope/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したログインセッションリポジトリ。
// JWTのsidクレームが指す行を保持し、ログアウトや期限切れで無効化する。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はログイン時にセッション行を登録する。
func (r *PostgresSessionRepo) Create(ctx context.Context, s *model.Session) error {
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, expires_at, created_at) VALUES ($1, $2, $3, $4)`,
		s.ID, s.UserID, s.ExpiresAt, s.CreatedAt,
	); err != nil {
		return fmt.Errorf("セッションの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は有効期限内のセッションを返す。存在しないか失効済みなら(nil, nil)。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	var s model.Session
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, expires_at, created_at FROM sessions WHERE id = $1 AND expires_at > now()`,
		id,
	).Scan(&s.ID, &s.UserID, &s.ExpiresAt, &s.CreatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("セッションの取得に失敗しました: %w", err)
	}
	return &s, nil
}

// DeleteByID はログアウト時にセッション行を削除する。存在しなくてもエラーにしない。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}
	return nil
}

var _ SessionRepository = (*PostgresSessionRepo)(nil)
