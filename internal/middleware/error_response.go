package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/healscope/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Code     string `json:"code"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponseBody{
		Success:  false,
		Message:  apiErr.Message,
		Code:     apiErr.Code,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	}); err != nil {
		slog.Warn("failed to write error response", slog.String("error", err.Error()))
	}
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}

// StatusCodeFor はAPIエラーコードに対応するHTTPステータスコードを返す。
func StatusCodeFor(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeArticleNotFound,
		model.ErrCodeConversationNotFound,
		model.ErrCodeScanNotFound,
		model.ErrCodeMedicationNotFound,
		model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeValidation, model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized, model.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case model.ErrCodeCSRFFailed:
		return http.StatusForbidden
	case model.ErrCodeEmailTaken:
		return http.StatusConflict
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
