package model

import "time"

// Sender は会話ターンの発言者を表す。
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Turn は会話内の1発言を表す。
// Seqは会話内で1から始まる到着順の連番。
type Turn struct {
	Seq       int
	Sender    Sender
	Text      string
	CreatedAt time.Time
}

// Conversation はユーザーが所有するチャット履歴を表す。
// Title は最初のユーザー発言から、Preview は最新のアシスタント発言から導出される。
type Conversation struct {
	ID        string
	UserID    string
	Title     string
	Preview   string
	Turns     []Turn // 一覧取得では空
	CreatedAt time.Time
	UpdatedAt time.Time
}
