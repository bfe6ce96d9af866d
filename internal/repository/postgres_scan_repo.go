package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/healscope/internal/model"
)

// PostgresHealthScanRepo はPostgreSQLを使用した健康スキャンリポジトリ。
type PostgresHealthScanRepo struct {
	db *sql.DB
}

// NewPostgresHealthScanRepo はPostgresHealthScanRepoを生成する。
func NewPostgresHealthScanRepo(db *sql.DB) *PostgresHealthScanRepo {
	return &PostgresHealthScanRepo{db: db}
}

const scanColumns = `id, user_id, scan_type, result, confidence, notes, status, image_url, created_at`

func scanHealthScan(row interface{ Scan(...any) error }) (*model.HealthScan, error) {
	s := &model.HealthScan{}
	err := row.Scan(&s.ID, &s.UserID, &s.ScanType, &s.Result, &s.Confidence,
		&s.Notes, &s.Status, &s.ImageURL, &s.CreatedAt)
	return s, err
}

// Create はスキャン結果を作成する。
func (r *PostgresHealthScanRepo) Create(ctx context.Context, s *model.HealthScan) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO health_scans (`+scanColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.UserID, s.ScanType, s.Result, s.Confidence, s.Notes, s.Status, s.ImageURL, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("スキャン結果の作成に失敗しました: %w", err)
	}
	return nil
}

// ListByUser はユーザーのスキャン結果を新しい順に返す。
func (r *PostgresHealthScanRepo) ListByUser(ctx context.Context, userID string) ([]*model.HealthScan, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+scanColumns+` FROM health_scans
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("スキャン結果一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	scans := []*model.HealthScan{}
	for rows.Next() {
		s, err := scanHealthScan(rows)
		if err != nil {
			return nil, fmt.Errorf("スキャン結果の読み取りに失敗しました: %w", err)
		}
		scans = append(scans, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("スキャン結果一覧の走査に失敗しました: %w", err)
	}
	return scans, nil
}

// FindByIDAndUser は所有者が一致するスキャン結果を取得する。見つからない場合はnilを返す。
func (r *PostgresHealthScanRepo) FindByIDAndUser(ctx context.Context, id, userID string) (*model.HealthScan, error) {
	s, err := scanHealthScan(r.db.QueryRowContext(ctx,
		`SELECT `+scanColumns+` FROM health_scans WHERE id = $1 AND user_id = $2`,
		id, userID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("スキャン結果の取得に失敗しました: %w", err)
	}
	return s, nil
}

// DeleteByIDAndUser は所有者が一致するスキャン結果を削除する。
func (r *PostgresHealthScanRepo) DeleteByIDAndUser(ctx context.Context, id, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM health_scans WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("スキャン結果の削除に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n > 0, nil
}

// compile-time interface check
var _ HealthScanRepository = (*PostgresHealthScanRepo)(nil)
