package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// HTTPRecorder はAPIリクエストのメトリクスを記録するインターフェース。
type HTTPRecorder interface {
	ObserveHTTPRequest(method, route string, status int, duration time.Duration)
}

// NewMetricsMiddleware はリクエスト数と処理時間を記録するミドルウェアを返す。
// ラベルには実パスではなくchiのルートパターンを用いる。未定義ルートは"unmatched"とする。
func NewMetricsMiddleware(recorder HTTPRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rec, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			recorder.ObserveHTTPRequest(r.Method, route, rec.statusCode, time.Since(start))
		})
	}
}
