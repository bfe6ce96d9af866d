// Package genai は外部の生成AI API（Gemini, OpenAI）のクライアントを提供する。
// チャット応答、画像解析、音声認識、音声合成の薄いラッパー。
package genai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrNotConfigured はAPIキーが設定されていない場合のエラー。
var ErrNotConfigured = errors.New("api key not configured")

// DefaultTimeout は外部AI APIへのリクエストのタイムアウト。
const DefaultTimeout = 45 * time.Second

// maxErrorBody はエラーレスポンスとしてログに残すボディの最大バイト数。
const maxErrorBody = 1024

// Recorder は外部AI APIの呼び出し結果を記録するインターフェース。
// metrics.Collectorが実装する。
type Recorder interface {
	ObserveAIRequest(provider, operation string, duration time.Duration, failed bool)
}

type nopRecorder struct{}

func (nopRecorder) ObserveAIRequest(string, string, time.Duration, bool) {}

// StatusError は外部APIがエラーステータスを返したことを表す。
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// client は各プロバイダクライアントの共通部分。
type client struct {
	provider   string
	httpClient *http.Client
	logger     *slog.Logger
	recorder   Recorder
}

func newClient(provider string, httpClient *http.Client, logger *slog.Logger) client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return client{
		provider:   provider,
		httpClient: httpClient,
		logger:     logger,
		recorder:   nopRecorder{},
	}
}

// do はリクエストを送信し、2xx以外のステータスをStatusErrorに変換する。
// 成功時のレスポンスボディは呼び出し側が閉じる。
func (c *client) do(ctx context.Context, operation string, req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		c.recorder.ObserveAIRequest(c.provider, operation, time.Since(start), true)
		c.logger.Error("AI API request failed",
			slog.String("provider", c.provider),
			slog.String("operation", operation),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%s %s request: %w", c.provider, operation, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.recorder.ObserveAIRequest(c.provider, operation, time.Since(start), true)
		c.logger.Error("AI API returned error status",
			slog.String("provider", c.provider),
			slog.String("operation", operation),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, &StatusError{
			Provider:   c.provider,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	c.recorder.ObserveAIRequest(c.provider, operation, time.Since(start), false)
	return resp, nil
}
