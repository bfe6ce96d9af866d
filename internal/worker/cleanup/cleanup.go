// Package cleanup は期限切れセッションの自動削除ジョブを提供する。
// ワーカー起動時に一度実行し、以降は日次で実行する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// DefaultInterval は削除ジョブの実行間隔。
const DefaultInterval = 24 * time.Hour

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanupJob は期限切れセッションの削除ジョブ。
// 削除対象がなくてもエラーにならない（冪等）。
type CleanupJob struct {
	db       Executor
	logger   *slog.Logger
	Interval time.Duration // 実行間隔（デフォルト: 24時間）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:       db,
		logger:   logger,
		Interval: DefaultInterval,
	}
}

// Run は期限切れのセッションを削除し、削除件数をログに記録する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	result, err := j.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= now()`)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

// Start は即時に一度実行し、以降Intervalごとに実行する。
// ctxがキャンセルされるまでブロックする。実行エラーはログに記録して継続する。
func (j *CleanupJob) Start(ctx context.Context) {
	_ = j.Run(ctx)

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("セッションクリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
