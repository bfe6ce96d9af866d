// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, article, chat, scan, medication, upstream, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeArticleNotFound      = "ARTICLE_NOT_FOUND"
	ErrCodeConversationNotFound = "CONVERSATION_NOT_FOUND"
	ErrCodeScanNotFound         = "SCAN_NOT_FOUND"
	ErrCodeMedicationNotFound   = "MEDICATION_NOT_FOUND"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeValidation           = "VALIDATION_FAILED"
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	ErrCodeEmailTaken           = "EMAIL_TAKEN"
	ErrCodeUpstreamFailed       = "UPSTREAM_FAILED"
	ErrCodeNotConfigured        = "NOT_CONFIGURED"
	ErrCodeCSRFFailed           = "CSRF_FAILED"
	ErrCodeRateLimited          = "RATE_LIMITED"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// NewArticleNotFoundError は記事未検出エラーを生成する。
// 非公開記事も同じエラーで扱い、存在を漏らさない。
func NewArticleNotFoundError(key string) *APIError {
	return &APIError{
		Code:     ErrCodeArticleNotFound,
		Message:  fmt.Sprintf("Article not found: %s", key),
		Category: "article",
		Action:   "Check the article link and try again.",
	}
}

// NewConversationNotFoundError は会話未検出エラーを生成する。
// 他ユーザー所有の会話も同じエラーで扱う。
func NewConversationNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeConversationNotFound,
		Message:  fmt.Sprintf("Chat not found: %s", id),
		Category: "chat",
		Action:   "Start a new chat or pick one from your history.",
	}
}

// NewScanNotFoundError は健康スキャン未検出エラーを生成する。
func NewScanNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeScanNotFound,
		Message:  fmt.Sprintf("Scan not found: %s", id),
		Category: "scan",
		Action:   "Check the scan ID in your scan history.",
	}
}

// NewMedicationNotFoundError は服薬情報未検出エラーを生成する。
func NewMedicationNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeMedicationNotFound,
		Message:  fmt.Sprintf("Medication not found: %s", id),
		Category: "medication",
		Action:   "Reload your medication list.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found.",
		Category: "auth",
		Action:   "Please log in again.",
	}
}

// NewValidationError は入力検証エラーを生成する。
// ストレージへのアクセス前に返す。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  reason,
		Category: "validation",
		Action:   "Fix the highlighted input and submit again.",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "Failed to parse request body.",
		Category: "validation",
		Action:   "Send a valid JSON request body.",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication required.",
		Category: "auth",
		Action:   "Please log in.",
	}
}

// NewInvalidCredentialsError はメールアドレスまたはパスワード不一致エラーを生成する。
// どちらが誤っているかは区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid email or password.",
		Category: "auth",
		Action:   "Check your email and password.",
	}
}

// NewEmailTakenError は登録済みメールアドレスによる登録エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "An account with this email already exists.",
		Category: "auth",
		Action:   "Log in instead, or register with another email.",
	}
}

// NewUpstreamFailedError は外部AIサービスの失敗エラーを生成する。
func NewUpstreamFailedError(service string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamFailed,
		Message:  fmt.Sprintf("%s request failed.", service),
		Category: "upstream",
		Action:   "Please wait a moment and try again.",
	}
}

// NewNotConfiguredError は外部サービスのAPIキー未設定エラーを生成する。
func NewNotConfiguredError(service string) *APIError {
	return &APIError{
		Code:     ErrCodeNotConfigured,
		Message:  fmt.Sprintf("%s API key not configured", service),
		Category: "system",
		Action:   "Contact the administrator.",
	}
}

// NewCSRFFailedError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFFailed,
		Message:  "CSRF token validation failed.",
		Category: "auth",
		Action:   "Reload the page and try again.",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Please wait and retry after the specified time.",
	}
}

// NewInternalError は内部エラーを生成する。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Server error",
		Category: "system",
		Action:   "Please wait a moment and try again.",
	}
}
