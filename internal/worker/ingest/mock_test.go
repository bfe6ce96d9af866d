package ingest

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hitoshi/healscope/internal/model"
)

// mockSourceRepo はArticleSourceRepositoryのテスト用モック。
type mockSourceRepo struct {
	mu                   sync.Mutex
	upsertByFeedURLFunc  func(ctx context.Context, src *model.ArticleSource) error
	listDueForFetchFunc  func(ctx context.Context) ([]*model.ArticleSource, error)
	updateFetchStateFunc func(ctx context.Context, src *model.ArticleSource) error
	updated              []model.ArticleSource
}

func (m *mockSourceRepo) UpsertByFeedURL(ctx context.Context, src *model.ArticleSource) error {
	if m.upsertByFeedURLFunc != nil {
		return m.upsertByFeedURLFunc(ctx, src)
	}
	return nil
}

func (m *mockSourceRepo) ListDueForFetch(ctx context.Context) ([]*model.ArticleSource, error) {
	if m.listDueForFetchFunc != nil {
		return m.listDueForFetchFunc(ctx)
	}
	return nil, nil
}

func (m *mockSourceRepo) UpdateFetchState(ctx context.Context, src *model.ArticleSource) error {
	m.mu.Lock()
	m.updated = append(m.updated, *src)
	m.mu.Unlock()
	if m.updateFetchStateFunc != nil {
		return m.updateFetchStateFunc(ctx, src)
	}
	return nil
}

// mockUpserter はArticleUpserterのテスト用モック。
type mockUpserter struct {
	insertCount int
	updateCount int
	err         error
	calledWith  []model.ParsedArticle
}

func (m *mockUpserter) UpsertArticles(_ context.Context, _ *model.ArticleSource, items []model.ParsedArticle) (int, int, error) {
	m.calledWith = items
	return m.insertCount, m.updateCount, m.err
}

// mockGuard はURLValidatorのテスト用モック。
type mockGuard struct {
	validateErr error
}

func (m *mockGuard) NewSafeClient(timeout time.Duration, _ int64) *http.Client {
	return &http.Client{Timeout: timeout}
}

func (m *mockGuard) ValidateURL(_ string) error {
	return m.validateErr
}

// mockCollector はMetricsCollectorのテスト用モック。
type mockCollector struct {
	mu            sync.Mutex
	successes     int
	failures      []string
	parseFailures int
	statuses      []int
	inserted      int
}

func (m *mockCollector) RecordFetchSuccess(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.successes++
}

func (m *mockCollector) RecordFetchFailure(_ string, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, reason)
}

func (m *mockCollector) RecordParseFailure(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parseFailures++
}

func (m *mockCollector) RecordHTTPStatus(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, code)
}

func (m *mockCollector) RecordFetchLatency(time.Duration) {}

func (m *mockCollector) RecordArticlesUpserted(inserted, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserted += inserted
}

// mockFetcher はSourceFetcherのテスト用モック。
type mockFetcher struct {
	fetchFunc func(ctx context.Context, src *model.ArticleSource) error
}

func (m *mockFetcher) Fetch(ctx context.Context, src *model.ArticleSource) error {
	if m.fetchFunc != nil {
		return m.fetchFunc(ctx, src)
	}
	return nil
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func newTestSource(url string) *model.ArticleSource {
	return &model.ArticleSource{
		ID:                   "source-1",
		FeedURL:              url,
		Category:             "Eye Health",
		AutoPublish:          true,
		FetchStatus:          model.FetchStatusActive,
		FetchIntervalMinutes: 60,
	}
}
