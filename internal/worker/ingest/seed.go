package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/healscope/internal/model"
	"github.com/hitoshi/healscope/internal/repository"
)

// SeedSources は設定ファイルの取り込み元を登録する。
// 新規の取り込み元は即時フェッチ対象になる。既存の取り込み元はフェッチ状態を保ったまま設定のみ更新される。
func SeedSources(
	ctx context.Context,
	repo repository.ArticleSourceRepository,
	sources []*model.ArticleSource,
	logger *slog.Logger,
) error {
	now := time.Now()
	for _, src := range sources {
		if src.ID == "" {
			src.ID = uuid.New().String()
		}
		if src.FetchStatus == "" {
			src.FetchStatus = model.FetchStatusActive
		}
		if src.NextFetchAt.IsZero() {
			src.NextFetchAt = now
		}
		src.CreatedAt = now
		src.UpdatedAt = now

		if err := repo.UpsertByFeedURL(ctx, src); err != nil {
			return fmt.Errorf("取り込み元の登録に失敗しました (%s): %w", src.FeedURL, err)
		}
	}
	if len(sources) > 0 {
		logger.Info("取り込み元を登録しました", slog.Int("source_count", len(sources)))
	}
	return nil
}
