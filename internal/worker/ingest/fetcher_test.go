package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/healscope/internal/model"
)

const testRSS = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Eye Clinic News</title>
    <item>
      <title>Protecting your eyes from screens</title>
      <link>https://example.com/articles/screens</link>
      <guid>guid-1</guid>
      <pubDate>Mon, 01 Jan 2024 00:00:00 +0000</pubDate>
      <description>Short summary</description>
      <enclosure url="https://example.com/img/screens.jpg" type="image/jpeg" length="1000"/>
    </item>
    <item>
      <title>Blue light myths</title>
      <guid>https://example.com/articles/blue-light</guid>
      <description>Another summary</description>
    </item>
  </channel>
</rss>`

func newTestFetcher(repo *mockSourceRepo, upserter *mockUpserter, guard *mockGuard, collector *mockCollector) (*Fetcher, *bytes.Buffer) {
	var buf bytes.Buffer
	f := NewFetcher(repo, upserter, guard, collector, newTestLogger(&buf), 5*time.Second, 5*1024*1024)
	return f, &buf
}

func TestFetcher_Fetch_Success200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Header().Set("ETag", `"abc123"`)
		w.Header().Set("Last-Modified", "Wed, 01 Jan 2025 00:00:00 GMT")
		fmt.Fprint(w, testRSS)
	}))
	defer server.Close()

	repo := &mockSourceRepo{}
	upserter := &mockUpserter{insertCount: 2}
	collector := &mockCollector{}
	f, _ := newTestFetcher(repo, upserter, &mockGuard{}, collector)

	src := newTestSource(server.URL)
	src.ConsecutiveErrors = 2
	before := time.Now()

	if err := f.Fetch(context.Background(), src); err != nil {
		t.Fatalf("Fetch() がエラーを返した: %v", err)
	}

	if src.ETag != `"abc123"` {
		t.Errorf("ETag = %q, want %q", src.ETag, `"abc123"`)
	}
	if src.LastModified != "Wed, 01 Jan 2025 00:00:00 GMT" {
		t.Errorf("LastModified = %q", src.LastModified)
	}
	if len(upserter.calledWith) != 2 {
		t.Errorf("UpsertArticles に渡された記事数 = %d, want 2", len(upserter.calledWith))
	}
	if src.ConsecutiveErrors != 0 {
		t.Errorf("ConsecutiveErrors = %d, want 0", src.ConsecutiveErrors)
	}
	if src.NextFetchAt.Before(before.Add(59 * time.Minute)) {
		t.Errorf("NextFetchAt = %v, want about +60m", src.NextFetchAt)
	}
	if len(repo.updated) != 1 {
		t.Errorf("UpdateFetchState 呼び出し回数 = %d, want 1", len(repo.updated))
	}
	if collector.successes != 1 || collector.inserted != 2 {
		t.Errorf("metrics: successes=%d inserted=%d", collector.successes, collector.inserted)
	}
}

func TestFetcher_Fetch_ConditionalGET(t *testing.T) {
	var gotIfNoneMatch, gotIfModifiedSince string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIfNoneMatch = r.Header.Get("If-None-Match")
		gotIfModifiedSince = r.Header.Get("If-Modified-Since")
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	repo := &mockSourceRepo{}
	upserter := &mockUpserter{}
	f, _ := newTestFetcher(repo, upserter, &mockGuard{}, &mockCollector{})

	src := newTestSource(server.URL)
	src.ETag = `"abc123"`
	src.LastModified = "Wed, 01 Jan 2025 00:00:00 GMT"

	if err := f.Fetch(context.Background(), src); err != nil {
		t.Fatalf("Fetch() がエラーを返した: %v", err)
	}

	if gotIfNoneMatch != `"abc123"` {
		t.Errorf("If-None-Match = %q", gotIfNoneMatch)
	}
	if gotIfModifiedSince != "Wed, 01 Jan 2025 00:00:00 GMT" {
		t.Errorf("If-Modified-Since = %q", gotIfModifiedSince)
	}
	// 304の場合は記事を保存しない
	if upserter.calledWith != nil {
		t.Error("304の場合、UpsertArticlesは呼ばれないべき")
	}
	if len(repo.updated) != 1 {
		t.Error("304でもUpdateFetchStateが呼ばれるべき")
	}
}

func TestFetcher_Fetch_SSRFValidationStopsSource(t *testing.T) {
	repo := &mockSourceRepo{}
	collector := &mockCollector{}
	f, _ := newTestFetcher(repo, &mockUpserter{}, &mockGuard{validateErr: errors.New("private address")}, collector)

	src := newTestSource("http://169.254.169.254/latest")
	err := f.Fetch(context.Background(), src)
	if err == nil {
		t.Fatal("SSRF検証失敗時はエラーを返すべき")
	}
	if src.FetchStatus != model.FetchStatusStopped {
		t.Errorf("FetchStatus = %q, want stopped", src.FetchStatus)
	}
	if len(repo.updated) != 1 {
		t.Error("停止状態が保存されるべき")
	}
	if len(collector.failures) != 1 || collector.failures[0] != "ssrf" {
		t.Errorf("failures = %v", collector.failures)
	}
}

func TestFetcher_Fetch_StatusHandling(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantStatus model.FetchStatus
		wantErrors int
	}{
		{name: "404で停止", status: http.StatusNotFound, wantStatus: model.FetchStatusStopped, wantErrors: 0},
		{name: "410で停止", status: http.StatusGone, wantStatus: model.FetchStatusStopped, wantErrors: 0},
		{name: "403で停止", status: http.StatusForbidden, wantStatus: model.FetchStatusStopped, wantErrors: 0},
		{name: "429でバックオフ", status: http.StatusTooManyRequests, wantStatus: model.FetchStatusActive, wantErrors: 1},
		{name: "500でバックオフ", status: http.StatusInternalServerError, wantStatus: model.FetchStatusActive, wantErrors: 1},
		{name: "未知のステータスでバックオフ", status: http.StatusTeapot, wantStatus: model.FetchStatusActive, wantErrors: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			repo := &mockSourceRepo{}
			collector := &mockCollector{}
			f, _ := newTestFetcher(repo, &mockUpserter{}, &mockGuard{}, collector)

			src := newTestSource(server.URL)
			if err := f.Fetch(context.Background(), src); err != nil {
				t.Fatalf("Fetch() がエラーを返した: %v", err)
			}

			if src.FetchStatus != tt.wantStatus {
				t.Errorf("FetchStatus = %q, want %q", src.FetchStatus, tt.wantStatus)
			}
			if src.ConsecutiveErrors != tt.wantErrors {
				t.Errorf("ConsecutiveErrors = %d, want %d", src.ConsecutiveErrors, tt.wantErrors)
			}
			if len(collector.statuses) != 1 || collector.statuses[0] != tt.status {
				t.Errorf("recorded statuses = %v", collector.statuses)
			}
		})
	}
}

func TestFetcher_Fetch_ParseFailureIncrements(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "this is not a feed")
	}))
	defer server.Close()

	repo := &mockSourceRepo{}
	collector := &mockCollector{}
	upserter := &mockUpserter{}
	f, _ := newTestFetcher(repo, upserter, &mockGuard{}, collector)

	src := newTestSource(server.URL)
	if err := f.Fetch(context.Background(), src); err != nil {
		t.Fatalf("パース失敗はエラーを返さない: %v", err)
	}

	if src.ConsecutiveErrors != 1 {
		t.Errorf("ConsecutiveErrors = %d, want 1", src.ConsecutiveErrors)
	}
	if src.FetchStatus != model.FetchStatusActive {
		t.Errorf("FetchStatus = %q, want active", src.FetchStatus)
	}
	if collector.parseFailures != 1 {
		t.Errorf("parseFailures = %d, want 1", collector.parseFailures)
	}
	if upserter.calledWith != nil {
		t.Error("パース失敗時はUpsertArticlesを呼ばない")
	}
}

func TestFetcher_Fetch_ParseFailure10ConsecutiveStops(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>not a feed</html>")
	}))
	defer server.Close()

	f, _ := newTestFetcher(&mockSourceRepo{}, &mockUpserter{}, &mockGuard{}, &mockCollector{})

	src := newTestSource(server.URL)
	src.ConsecutiveErrors = 9
	if err := f.Fetch(context.Background(), src); err != nil {
		t.Fatalf("Fetch() がエラーを返した: %v", err)
	}

	if src.FetchStatus != model.FetchStatusStopped {
		t.Errorf("FetchStatus = %q, want stopped", src.FetchStatus)
	}
}

func TestFetcher_Fetch_UpsertFailureBacksOff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, testRSS)
	}))
	defer server.Close()

	collector := &mockCollector{}
	f, _ := newTestFetcher(&mockSourceRepo{}, &mockUpserter{err: errors.New("db down")}, &mockGuard{}, collector)

	src := newTestSource(server.URL)
	if err := f.Fetch(context.Background(), src); err != nil {
		t.Fatalf("Fetch() がエラーを返した: %v", err)
	}

	if src.ConsecutiveErrors != 1 {
		t.Errorf("ConsecutiveErrors = %d, want 1", src.ConsecutiveErrors)
	}
	if collector.successes != 0 {
		t.Errorf("UPSERT失敗時は成功を記録しない")
	}
}

func TestFetcher_Fetch_NetworkErrorBacksOff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	repo := &mockSourceRepo{}
	f, _ := newTestFetcher(repo, &mockUpserter{}, &mockGuard{}, &mockCollector{})

	src := newTestSource(url)
	if err := f.Fetch(context.Background(), src); err == nil {
		t.Fatal("接続失敗時はエラーを返すべき")
	}
	if src.ConsecutiveErrors != 1 {
		t.Errorf("ConsecutiveErrors = %d, want 1", src.ConsecutiveErrors)
	}
	if len(repo.updated) != 1 {
		t.Error("バックオフ状態が保存されるべき")
	}
}

func TestFetcher_Fetch_LogsStructuredInfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, testRSS)
	}))
	defer server.Close()

	f, buf := newTestFetcher(&mockSourceRepo{}, &mockUpserter{insertCount: 2}, &mockGuard{}, &mockCollector{})

	if err := f.Fetch(context.Background(), newTestSource(server.URL)); err != nil {
		t.Fatalf("Fetch() がエラーを返した: %v", err)
	}

	for _, key := range []string{`"source_id":"source-1"`, `"articles_inserted":2`, `"http_status":200`} {
		if !bytes.Contains(buf.Bytes(), []byte(key)) {
			t.Errorf("ログに %s が含まれるべき: %s", key, buf.String())
		}
	}
}

func TestNewFetcher_NilCollector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	var buf bytes.Buffer
	f := NewFetcher(&mockSourceRepo{}, &mockUpserter{}, &mockGuard{}, nil, newTestLogger(&buf), time.Second, 1024)
	if err := f.Fetch(context.Background(), newTestSource(server.URL)); err != nil {
		t.Fatalf("Fetch() がエラーを返した: %v", err)
	}
}

func TestConvertItems(t *testing.T) {
	feed, err := gofeed.NewParser().ParseString(testRSS)
	if err != nil {
		t.Fatalf("ParseString: %v", err)
	}

	items := ConvertItems(append(feed.Items, nil))
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}

	first := items[0]
	if first.Link != "https://example.com/articles/screens" || first.GuidOrID != "guid-1" {
		t.Errorf("first = %+v", first)
	}
	if first.ImageURL != "https://example.com/img/screens.jpg" {
		t.Errorf("ImageURL = %q, want enclosure URL", first.ImageURL)
	}
	if first.PublishedAt == nil || first.PublishedAt.Year() != 2024 {
		t.Errorf("PublishedAt = %v", first.PublishedAt)
	}

	// リンクがない場合はURL形式のGUIDをリンクにする
	second := items[1]
	if second.Link != "https://example.com/articles/blue-light" {
		t.Errorf("Link = %q, want GUID URL", second.Link)
	}
	if second.PublishedAt != nil {
		t.Errorf("PublishedAt = %v, want nil", second.PublishedAt)
	}
}

func TestFetcher_Fetch_HTMLPageDiscoversFeed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("ETag", `"page-etag"`)
		fmt.Fprint(w, `<html><head><link rel="alternate" type="application/rss+xml" href="/rss.xml"></head><body>Eye care</body></html>`)
	}))
	defer server.Close()

	repo := &mockSourceRepo{}
	collector := &mockCollector{}
	f, _ := newTestFetcher(repo, &mockUpserter{}, &mockGuard{}, collector)

	src := newTestSource(server.URL + "/eyes")
	if err := f.Fetch(context.Background(), src); err != nil {
		t.Fatalf("Fetch() がエラーを返した: %v", err)
	}

	if src.FeedURL != server.URL+"/rss.xml" {
		t.Errorf("FeedURL = %q, want discovered feed", src.FeedURL)
	}
	// 検出はパース失敗として数えない
	if src.ConsecutiveErrors != 0 || collector.parseFailures != 0 {
		t.Errorf("ConsecutiveErrors=%d parseFailures=%d, want 0", src.ConsecutiveErrors, collector.parseFailures)
	}
	if src.ETag != "" {
		t.Errorf("ETag = %q, want cleared", src.ETag)
	}
	if len(repo.updated) != 1 || repo.updated[0].FeedURL != server.URL+"/rss.xml" {
		t.Errorf("discovered URL should be saved: %+v", repo.updated)
	}
}

func TestFetcher_Fetch_HTMLWithoutFeedCountsAsParseFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>no feed</title></head></html>`)
	}))
	defer server.Close()

	f, _ := newTestFetcher(&mockSourceRepo{}, &mockUpserter{}, &mockGuard{}, &mockCollector{})

	src := newTestSource(server.URL)
	if err := f.Fetch(context.Background(), src); err != nil {
		t.Fatalf("Fetch() がエラーを返した: %v", err)
	}
	if src.ConsecutiveErrors != 1 {
		t.Errorf("ConsecutiveErrors = %d, want 1", src.ConsecutiveErrors)
	}
	if src.FeedURL != server.URL {
		t.Errorf("FeedURL should not change: %q", src.FeedURL)
	}
}
