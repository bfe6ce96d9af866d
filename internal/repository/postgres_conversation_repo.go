package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/healscope/internal/model"
)

// PostgresConversationRepo はPostgreSQLを使用したチャット履歴リポジトリ。
type PostgresConversationRepo struct {
	db *sql.DB
}

// NewPostgresConversationRepo はPostgresConversationRepoを生成する。
func NewPostgresConversationRepo(db *sql.DB) *PostgresConversationRepo {
	return &PostgresConversationRepo{db: db}
}

// Create は会話と初期ターンを同一トランザクションで作成する。
func (r *PostgresConversationRepo) Create(ctx context.Context, conv *model.Conversation) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, title, preview, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		conv.ID, conv.UserID, conv.Title, conv.Preview, conv.CreatedAt, conv.UpdatedAt,
	); err != nil {
		return fmt.Errorf("会話の作成に失敗しました: %w", err)
	}

	for i := range conv.Turns {
		conv.Turns[i].Seq = i + 1
	}
	if err := insertTurns(ctx, tx, conv.ID, conv.Turns); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// AppendTurns は会話にターンを追記し、previewとupdated_atを更新する。
// 会話行をFOR UPDATEでロックし、同時追記でもseqが重複しないようにする。
func (r *PostgresConversationRepo) AppendTurns(ctx context.Context, userID, convID string, turns []model.Turn, preview string, at time.Time) (*model.Conversation, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	var locked string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM conversations WHERE id = $1 AND user_id = $2 FOR UPDATE`,
		convID, userID,
	).Scan(&locked)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("会話のロックに失敗しました: %w", err)
	}

	var maxSeq int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM conversation_turns WHERE conversation_id = $1`,
		convID,
	).Scan(&maxSeq); err != nil {
		return nil, fmt.Errorf("ターン番号の取得に失敗しました: %w", err)
	}

	appended := make([]model.Turn, len(turns))
	copy(appended, turns)
	for i := range appended {
		appended[i].Seq = maxSeq + i + 1
	}
	if err := insertTurns(ctx, tx, convID, appended); err != nil {
		return nil, err
	}

	conv := &model.Conversation{}
	if err := tx.QueryRowContext(ctx,
		`UPDATE conversations SET preview = $2, updated_at = $3
		 WHERE id = $1
		 RETURNING id, user_id, title, preview, created_at, updated_at`,
		convID, preview, at,
	).Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.Preview, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
		return nil, fmt.Errorf("会話の更新に失敗しました: %w", err)
	}

	conv.Turns, err = listTurns(ctx, tx, convID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return conv, nil
}

// ListByUser はユーザーの会話サマリーを更新日時の降順で返す。
func (r *PostgresConversationRepo) ListByUser(ctx context.Context, userID string) ([]*model.Conversation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, title, preview, created_at, updated_at
		 FROM conversations
		 WHERE user_id = $1
		 ORDER BY updated_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("会話一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	convs := []*model.Conversation{}
	for rows.Next() {
		c := &model.Conversation{}
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.Preview, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("会話の読み取りに失敗しました: %w", err)
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("会話一覧の走査に失敗しました: %w", err)
	}
	return convs, nil
}

// FindByIDAndUser は所有者が一致する会話を全ターン付きで取得する。見つからない場合はnilを返す。
func (r *PostgresConversationRepo) FindByIDAndUser(ctx context.Context, id, userID string) (*model.Conversation, error) {
	c := &model.Conversation{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, preview, created_at, updated_at
		 FROM conversations WHERE id = $1 AND user_id = $2`,
		id, userID,
	).Scan(&c.ID, &c.UserID, &c.Title, &c.Preview, &c.CreatedAt, &c.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("会話の取得に失敗しました: %w", err)
	}

	c.Turns, err = listTurns(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteByIDAndUser は所有者が一致する会話を削除する。ターンはCASCADEで削除される。
func (r *PostgresConversationRepo) DeleteByIDAndUser(ctx context.Context, id, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("会話の削除に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n > 0, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func insertTurns(ctx context.Context, ex execer, convID string, turns []model.Turn) error {
	for _, t := range turns {
		if _, err := ex.ExecContext(ctx,
			`INSERT INTO conversation_turns (conversation_id, seq, sender, text, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			convID, t.Seq, t.Sender, t.Text, t.CreatedAt,
		); err != nil {
			return fmt.Errorf("ターンの追加に失敗しました: %w", err)
		}
	}
	return nil
}

func listTurns(ctx context.Context, q querier, convID string) ([]model.Turn, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT seq, sender, text, created_at FROM conversation_turns
		 WHERE conversation_id = $1
		 ORDER BY seq ASC`,
		convID,
	)
	if err != nil {
		return nil, fmt.Errorf("ターン一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	turns := []model.Turn{}
	for rows.Next() {
		var t model.Turn
		if err := rows.Scan(&t.Seq, &t.Sender, &t.Text, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("ターンの読み取りに失敗しました: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ターン一覧の走査に失敗しました: %w", err)
	}
	return turns, nil
}

// compile-time interface check
var _ ConversationRepository = (*PostgresConversationRepo)(nil)
