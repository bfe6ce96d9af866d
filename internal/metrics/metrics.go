// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector は記事取り込みのメトリクス収集インターフェース。
// ワーカーから利用する。
type MetricsCollector interface {
	RecordFetchSuccess(sourceID string)
	RecordFetchFailure(sourceID string, reason string)
	RecordParseFailure(sourceID string)
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
	RecordArticlesUpserted(inserted, updated int)
}

// Collector はPrometheusメトリクスを収集する実装。
// 記事取り込み、APIリクエスト、外部AI呼び出しのメトリクスを持つ。
type Collector struct {
	fetchSuccess     prometheus.Counter
	fetchFail        *prometheus.CounterVec
	parseFail        prometheus.Counter
	httpStatus       *prometheus.CounterVec
	fetchLatency     prometheus.Histogram
	articlesUpserted *prometheus.CounterVec

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	aiDuration *prometheus.HistogramVec
	aiFailures *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetchSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "healscope_fetch_success_total",
			Help: "記事ソースのフェッチ成功の合計数",
		}),
		fetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healscope_fetch_fail_total",
			Help: "記事ソースのフェッチ失敗の合計数",
		}, []string{"reason"}),
		parseFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "healscope_parse_fail_total",
			Help: "フィードパース失敗の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healscope_fetch_http_status_total",
			Help: "記事ソースのHTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "healscope_fetch_latency_seconds",
			Help:    "記事ソースのフェッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		articlesUpserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healscope_articles_upserted_total",
			Help: "取り込みで挿入・更新された記事の合計数",
		}, []string{"op"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healscope_http_requests_total",
			Help: "APIリクエストの合計数",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "healscope_http_request_duration_seconds",
			Help:    "APIリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		aiDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "healscope_ai_request_duration_seconds",
			Help:    "外部AI APIの呼び出し時間（秒）",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 45},
		}, []string{"provider", "operation"}),
		aiFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "healscope_ai_request_failures_total",
			Help: "外部AI APIの呼び出し失敗の合計数",
		}, []string{"provider", "operation"}),
	}

	reg.MustRegister(
		c.fetchSuccess,
		c.fetchFail,
		c.parseFail,
		c.httpStatus,
		c.fetchLatency,
		c.articlesUpserted,
		c.requests,
		c.requestDuration,
		c.aiDuration,
		c.aiFailures,
	)

	return c
}

// RecordFetchSuccess はフェッチ成功を記録する。
func (c *Collector) RecordFetchSuccess(sourceID string) {
	c.fetchSuccess.Inc()
}

// RecordFetchFailure はフェッチ失敗を理由別に記録する。
func (c *Collector) RecordFetchFailure(sourceID string, reason string) {
	c.fetchFail.WithLabelValues(reason).Inc()
}

// RecordParseFailure はパース失敗を記録する。
func (c *Collector) RecordParseFailure(sourceID string) {
	c.parseFail.Inc()
}

// RecordHTTPStatus は記事ソースのHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFetchLatency はフェッチのレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordArticlesUpserted は挿入・更新された記事数を記録する。
func (c *Collector) RecordArticlesUpserted(inserted, updated int) {
	c.articlesUpserted.WithLabelValues("insert").Add(float64(inserted))
	c.articlesUpserted.WithLabelValues("update").Add(float64(updated))
}

// ObserveHTTPRequest はAPIリクエストを記録する。
// routeにはchiのルートパターンを渡し、ラベルの種類数を抑える。
func (c *Collector) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	c.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveAIRequest は外部AI APIの呼び出しを記録する。
func (c *Collector) ObserveAIRequest(provider, operation string, duration time.Duration, failed bool) {
	c.aiDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
	if failed {
		c.aiFailures.WithLabelValues(provider, operation).Inc()
	}
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
