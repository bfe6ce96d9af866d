package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// healthCheckTimeout はDB疎通確認のタイムアウト。
const healthCheckTimeout = 2 * time.Second

// HealthChecker はDB疎通確認のインターフェース。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// HealthHandler は死活監視のHTTPハンドラー。
type HealthHandler struct {
	checker HealthChecker
}

// NewHealthHandler はHealthHandlerを生成する。checkerがnilの場合はDB確認を省略する。
func NewHealthHandler(checker HealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// Liveness はプロセスとDBの疎通状態を返す。
// GET /health
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]string{"status": "ok"}

	if h.checker != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := h.checker.PingContext(ctx); err != nil {
			slog.Warn("health check: database unreachable", slog.String("error", err.Error()))
			status = http.StatusServiceUnavailable
			body["status"] = "unavailable"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// APIHealth はAPIサーバーの稼働を返す。
// GET /api/health
func (h *HealthHandler) APIHealth(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, envelope{"message": "Server is running"})
}
