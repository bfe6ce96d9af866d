// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/healscope/internal/auth"
	"github.com/hitoshi/healscope/internal/model"
)

// SessionCookieName はセッショントークン（JWT）を保持するCookieの名前。
const SessionCookieName = "token"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	userIDContextKey    = contextKey("user_id")
	sessionIDContextKey = contextKey("session_id")
)

// Authenticator はセッショントークンを検証して有効なセッションを返すインターフェース。
// トークン不正・セッション失効はauth.ErrInvalidTokenで表す。
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.Session, error)
}

// NewSessionMiddleware はHTTP Only Cookieからセッショントークンを読み取り、
// 有効性を検証するミドルウェアを返す。
// 認証済みユーザーIDとセッションIDをリクエストコンテキストに注入する。
// 未認証リクエストには401を返し、後続のハンドラーは実行しない。
func NewSessionMiddleware(authenticator Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			session, err := authenticator.Authenticate(r.Context(), cookie.Value)
			if err != nil {
				if !errors.Is(err, auth.ErrInvalidToken) {
					slog.Error("failed to authenticate session",
						slog.String("error", err.Error()),
					)
				}
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			ctx := ContextWithSession(r.Context(), session.UserID, session.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// SessionIDFromContext はリクエストコンテキストからセッションIDを取得する。
func SessionIDFromContext(ctx context.Context) (string, error) {
	sessionID, ok := ctx.Value(sessionIDContextKey).(string)
	if !ok || sessionID == "" {
		return "", fmt.Errorf("session ID not found in context")
	}
	return sessionID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	if info := requestInfoFromContext(ctx); info != nil {
		info.userID = userID
	}
	return context.WithValue(ctx, userIDContextKey, userID)
}

// ContextWithSession はコンテキストにユーザーIDとセッションIDを注入する。
func ContextWithSession(ctx context.Context, userID, sessionID string) context.Context {
	ctx = ContextWithUserID(ctx, userID)
	return context.WithValue(ctx, sessionIDContextKey, sessionID)
}
