// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
type User struct {
	ID           string
	Email        string // 小文字に正規化済み
	Name         string
	PasswordHash string // bcryptハッシュ。APIレスポンスには含めない
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session はユーザーのログインセッションを表す。
// セッショントークン（JWT）のsidクレームがIDを指す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
