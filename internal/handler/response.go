package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/healscope/internal/middleware"
	"github.com/hitoshi/healscope/internal/model"
)

// maxJSONBodyBytes はJSONリクエストボディの上限サイズ。
const maxJSONBodyBytes = 1 << 20

// envelope は成功レスポンスのペイロード。successフィールドはwriteSuccessが付与する。
type envelope map[string]any

// writeSuccess は {"success": true, ...payload} 形式でレスポンスを書き込む。
func writeSuccess(w http.ResponseWriter, status int, payload envelope) {
	body := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	body["success"] = true

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("failed to write response", slog.String("error", err.Error()))
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, status int, apiErr *model.APIError) {
	middleware.WriteErrorResponse(w, status, apiErr)
}

// handleServiceError はサービス層のエラーを適切なHTTPレスポンスに変換する。
// APIError以外のエラーは詳細をログに記録し、500として返す。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, middleware.StatusCodeFor(apiErr), apiErr)
		return
	}

	slog.Error("unexpected service error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// decodeJSON はリクエストボディをvにデコードする。
// 失敗した場合はINVALID_REQUESTを書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return false
	}
	return true
}

// requireUserID はコンテキストから認証済みユーザーIDを取り出す。
// 取得できない場合は401を書き込み、okにfalseを返す。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", false
	}
	return userID, true
}
