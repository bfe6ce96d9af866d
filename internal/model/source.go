// Package model はドメインモデルを定義する。
package model

import "time"

// ArticleSource は記事の取り込み元となるRSS/Atomフィードを表す。
// ワーカーが定期的にフェッチし、取得した記事をarticlesへUPSERTする。
type ArticleSource struct {
	ID                   string
	FeedURL              string
	Title                string
	Category             string // 取り込んだ記事に付与するカテゴリ
	AutoPublish          bool   // trueの場合、取り込んだ記事を即時公開する
	Featured             bool   // trueの場合、取り込んだ記事を注目記事にする
	ETag                 string
	LastModified         string
	FetchStatus          FetchStatus
	ConsecutiveErrors    int
	ErrorMessage         string
	FetchIntervalMinutes int
	NextFetchAt          time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// FetchStatus は取り込み元のフェッチ状態を表す。
type FetchStatus string

const (
	// FetchStatusActive はアクティブなフェッチ状態。
	FetchStatusActive FetchStatus = "active"
	// FetchStatusStopped は停止されたフェッチ状態。
	FetchStatusStopped FetchStatus = "stopped"
)
