// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hitoshi/healscope/internal/model"
)

// ErrDuplicateKey は一意制約違反を表す。
// 呼び出し側でドメインエラー（例: メールアドレス重複）に変換する。
var ErrDuplicateKey = errors.New("duplicate key")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	// メールアドレスが登録済みの場合はErrDuplicateKeyを返す。
	Create(ctx context.Context, user *model.User) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
}

// ArticleRepository は記事データの永続化インターフェース。
// 一覧系のメソッドはcontentを含まないサマリーを返す。
type ArticleRepository interface {
	// List は検索条件に一致する公開記事の1ページ分と、ページネーション前の総件数を返す。
	List(ctx context.Context, q model.ArticleQuery) ([]*model.Article, int, error)

	// FindPublishedBySlug はslugで公開記事を取得する。
	// 存在しない、または非公開の場合はnilを返す。
	FindPublishedBySlug(ctx context.Context, slug string) (*model.Article, error)

	// ListFeatured は注目記事を公開日時の降順でlimit件まで返す。
	ListFeatured(ctx context.Context, limit int) ([]*model.Article, error)

	// ListByCategory は指定カテゴリの公開記事を公開日時の降順で返す。
	ListByCategory(ctx context.Context, category string) ([]*model.Article, error)

	// ListCategories は公開記事のカテゴリを重複なしで昇順に返す。
	ListCategories(ctx context.Context) ([]string, error)

	// IncrementViews は閲覧数を原子的に1加算し、加算後の値を返す。
	// 記事が存在しない場合はfound=falseを返す。
	IncrementViews(ctx context.Context, id string) (views int64, found bool, err error)

	// AdjustLikes はいいね数を原子的にdelta加算し、加算後の値を返す。
	// 0未満への減算も許容する。記事が存在しない場合はfound=falseを返す。
	AdjustLikes(ctx context.Context, id string, delta int) (likes int64, found bool, err error)

	// UpsertBySlug はslugをキーに記事を挿入または更新する。
	// 更新時は閲覧数・いいね数・公開フラグ・注目フラグを維持する。
	// 戻り値は新規挿入の場合にtrue。
	UpsertBySlug(ctx context.Context, article *model.Article) (bool, error)
}

// ArticleSourceRepository は記事取り込み元の永続化インターフェース。
type ArticleSourceRepository interface {
	// UpsertByFeedURL はフィードURLをキーに取り込み元を登録する。
	// 既存の場合はタイトル・カテゴリ・公開設定・フェッチ間隔のみ更新し、フェッチ状態は維持する。
	UpsertByFeedURL(ctx context.Context, source *model.ArticleSource) error

	// ListDueForFetch はフェッチ対象の取り込み元を取得する。
	// next_fetch_at <= now() かつ fetch_status = 'active' の取り込み元を
	// FOR UPDATE SKIP LOCKEDで排他的に取得する。
	ListDueForFetch(ctx context.Context) ([]*model.ArticleSource, error)

	// UpdateFetchState は取り込み元のフェッチ状態（検出したフィードURLを含む）を更新する。
	UpdateFetchState(ctx context.Context, source *model.ArticleSource) error
}

// HealthScanRepository は健康スキャンの永続化インターフェース。
// 参照・削除はすべて所有者で絞り込む。
type HealthScanRepository interface {
	// Create はスキャン結果を作成する。
	Create(ctx context.Context, scan *model.HealthScan) error
	// ListByUser はユーザーのスキャン結果を作成日時の降順で返す。
	ListByUser(ctx context.Context, userID string) ([]*model.HealthScan, error)
	// FindByIDAndUser は所有者が一致するスキャン結果を取得する。見つからない場合はnilを返す。
	FindByIDAndUser(ctx context.Context, id, userID string) (*model.HealthScan, error)
	// DeleteByIDAndUser は所有者が一致するスキャン結果を削除する。削除した場合にtrueを返す。
	DeleteByIDAndUser(ctx context.Context, id, userID string) (bool, error)
}

// MedicationRepository は服薬情報の永続化インターフェース。
// 参照・更新・削除はすべて所有者で絞り込む。
type MedicationRepository interface {
	// Create は服薬情報を作成する。
	Create(ctx context.Context, med *model.Medication) error
	// ListByUser はユーザーの服薬情報を作成日時の降順で返す。
	ListByUser(ctx context.Context, userID string) ([]*model.Medication, error)
	// FindByIDAndUser は所有者が一致する服薬情報を取得する。見つからない場合はnilを返す。
	FindByIDAndUser(ctx context.Context, id, userID string) (*model.Medication, error)
	// Update は所有者が一致する服薬情報を更新する。更新した場合にtrueを返す。
	Update(ctx context.Context, med *model.Medication) (bool, error)
	// DeleteByIDAndUser は所有者が一致する服薬情報を削除する。削除した場合にtrueを返す。
	DeleteByIDAndUser(ctx context.Context, id, userID string) (bool, error)
}

// ConversationRepository はチャット履歴の永続化インターフェース。
// ターンは会話ごとの連番（seq）で到着順に保持し、追記のみ行う。
type ConversationRepository interface {
	// Create は会話とその初期ターンを同一トランザクションで作成する。
	// conv.Turnsのseqは1から順に採番される。
	Create(ctx context.Context, conv *model.Conversation) error

	// AppendTurns は所有者が一致する会話にターンを同一トランザクションで追記し、
	// previewとupdated_atを更新する。titleは変更しない。
	// 会話が存在しない、または他ユーザー所有の場合はnilを返す。
	AppendTurns(ctx context.Context, userID, convID string, turns []model.Turn, preview string, at time.Time) (*model.Conversation, error)

	// ListByUser はユーザーの会話サマリーをupdated_atの降順で返す。ターンは含まない。
	ListByUser(ctx context.Context, userID string) ([]*model.Conversation, error)

	// FindByIDAndUser は所有者が一致する会話を全ターン付きで取得する。見つからない場合はnilを返す。
	FindByIDAndUser(ctx context.Context, id, userID string) (*model.Conversation, error)

	// DeleteByIDAndUser は所有者が一致する会話を削除する。削除した場合にtrueを返す。
	DeleteByIDAndUser(ctx context.Context, id, userID string) (bool, error)
}

// TxBeginner はトランザクション開始のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
