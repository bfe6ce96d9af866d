// Package ingest は記事取り込み元のバックグラウンドフェッチを提供する。
// スケジューラ、フェッチャー、リトライ/バックオフ戦略、シード登録を含む。
package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/healscope/internal/model"
	"github.com/hitoshi/healscope/internal/repository"
)

// SourceFetcher は取り込み元1件のフェッチを実行するインターフェース。
type SourceFetcher interface {
	Fetch(ctx context.Context, src *model.ArticleSource) error
}

// Scheduler は取り込み元フェッチのスケジューリングと並列制御を行う。
type Scheduler struct {
	sourceRepo     repository.ArticleSourceRepository
	fetcher        SourceFetcher
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合は10を使用する。
func NewScheduler(
	sourceRepo repository.ArticleSourceRepository,
	fetcher SourceFetcher,
	logger *slog.Logger,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	return &Scheduler{
		sourceRepo:     sourceRepo,
		fetcher:        fetcher,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start はinterval間隔でフェッチサイクルを実行する。
// 起動直後に1回実行し、コンテキストがキャンセルされるまで継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("取り込みスケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	s.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("取り込みスケジューラを停止しました")
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("取り込みサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce はフェッチ対象の取り込み元を取得し、最大並列数を守りながらフェッチする。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	sources, err := s.sourceRepo.ListDueForFetch(ctx)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		s.logger.Debug("フェッチ対象の取り込み元はありません")
		return nil
	}

	s.logger.Info("取り込みサイクルを開始します",
		slog.Int("source_count", len(sources)),
	)

	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

loop:
	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break loop
		}

		wg.Add(1)
		go func(src *model.ArticleSource) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := s.fetcher.Fetch(ctx, src); err != nil {
				s.logger.Error("取り込み元のフェッチに失敗しました",
					slog.String("source_id", src.ID),
					slog.String("feed_url", src.FeedURL),
					slog.String("error", err.Error()),
				)
			}
		}(src)
	}

	wg.Wait()

	s.logger.Info("取り込みサイクルが完了しました",
		slog.Int("source_count", len(sources)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return ctx.Err()
}
