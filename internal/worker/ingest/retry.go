package ingest

import (
	"fmt"
	"time"

	"github.com/hitoshi/healscope/internal/model"
)

// FetchResult はHTTPステータスコードに基づくフェッチ結果の分類。
type FetchResult int

const (
	// FetchResultOK はフェッチ成功（200）。
	FetchResultOK FetchResult = iota
	// FetchResultNotModified はコンテンツ未変更（304）。
	FetchResultNotModified
	// FetchResultStop は取り込み停止が必要なステータス（404/410/401/403）。
	FetchResultStop
	// FetchResultBackoff はバックオフが必要なステータス（429/5xx）。
	FetchResultBackoff
	// FetchResultUnknown は未知のステータスコード。
	FetchResultUnknown
)

const (
	initialBackoff = 30 * time.Minute
	maxBackoff     = 12 * time.Hour
	// parseFailureThreshold はパース失敗による取り込み停止の閾値。
	parseFailureThreshold = 10
)

// ClassifyHTTPStatus はHTTPステータスコードをフェッチ結果に分類する。
func ClassifyHTTPStatus(statusCode int) FetchResult {
	switch {
	case statusCode == 200:
		return FetchResultOK
	case statusCode == 304:
		return FetchResultNotModified
	case statusCode == 404 || statusCode == 410:
		return FetchResultStop
	case statusCode == 401 || statusCode == 403:
		return FetchResultStop
	case statusCode == 429:
		return FetchResultBackoff
	case statusCode >= 500:
		return FetchResultBackoff
	default:
		return FetchResultUnknown
	}
}

// CalculateBackoff は連続エラー回数から次回までの遅延を計算する。
// 初回30分、2倍ずつ増加、最大12時間。
func CalculateBackoff(consecutiveErrors int) time.Duration {
	delay := initialBackoff
	for i := 0; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// ApplyStop は取り込み元のフェッチを停止する。
func ApplyStop(src *model.ArticleSource, reason string, now time.Time) {
	src.FetchStatus = model.FetchStatusStopped
	src.ErrorMessage = reason
	src.UpdatedAt = now
}

// ApplyBackoff は連続エラー回数を増やし、指数バックオフでnext_fetch_atを設定する。
func ApplyBackoff(src *model.ArticleSource, reason string, now time.Time) {
	src.ConsecutiveErrors++
	src.ErrorMessage = reason
	src.NextFetchAt = now.Add(CalculateBackoff(src.ConsecutiveErrors - 1))
	src.UpdatedAt = now
}

// ApplySuccess はフェッチ成功時に状態をリセットし、取り込み元の間隔で次回を予約する。
func ApplySuccess(src *model.ArticleSource, now time.Time) {
	interval := src.FetchIntervalMinutes
	if interval <= 0 {
		interval = defaultIntervalMinutes
	}
	src.ConsecutiveErrors = 0
	src.ErrorMessage = ""
	src.NextFetchAt = now.Add(time.Duration(interval) * time.Minute)
	src.UpdatedAt = now
}

// ApplyParseFailure はパース失敗を数え、閾値に達したら取り込みを停止する。
// 停止しない場合は通常の間隔で再試行する。
func ApplyParseFailure(src *model.ArticleSource, reason string, now time.Time) {
	src.ConsecutiveErrors++
	src.ErrorMessage = fmt.Sprintf("パース失敗 (%d回連続): %s", src.ConsecutiveErrors, reason)
	src.UpdatedAt = now

	if src.ConsecutiveErrors >= parseFailureThreshold {
		src.FetchStatus = model.FetchStatusStopped
		src.ErrorMessage = fmt.Sprintf("パース失敗が%d回連続したため取り込みを停止しました: %s", src.ConsecutiveErrors, reason)
		return
	}

	interval := src.FetchIntervalMinutes
	if interval <= 0 {
		interval = defaultIntervalMinutes
	}
	src.NextFetchAt = now.Add(time.Duration(interval) * time.Minute)
}

// ApplyRedirect は取り込み元のURLを検出したフィードURLに置き換え、次のサイクルで取り直す。
// 条件付きGETの情報は旧URLのものなので破棄する。
func ApplyRedirect(src *model.ArticleSource, feedURL string, now time.Time) {
	src.FeedURL = feedURL
	src.ETag = ""
	src.LastModified = ""
	src.ErrorMessage = ""
	src.NextFetchAt = now
	src.UpdatedAt = now
}
