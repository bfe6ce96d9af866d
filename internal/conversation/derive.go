// Package conversation はヘルスアシスタントとのチャット履歴の記録と取得を提供する。
package conversation

import "unicode/utf8"

const (
	// TitleMaxRunes は会話タイトルに使うユーザー発言の最大文字数。
	TitleMaxRunes = 30
	// PreviewMaxRunes はプレビューに使うアシスタント応答の最大文字数。
	PreviewMaxRunes = 50
	// EllipsisMarker はタイトルとプレビューの末尾に常に付与する省略記号。
	EllipsisMarker = "..."
)

// Title は最初のユーザー発言から会話タイトルを生成する。
// 先頭TitleMaxRunes文字にEllipsisMarkerを付与する。短い場合も付与する。
func Title(userText string) string {
	return truncateRunes(userText, TitleMaxRunes) + EllipsisMarker
}

// Preview は最新のアシスタント応答から一覧表示用のプレビューを生成する。
// 先頭PreviewMaxRunes文字にEllipsisMarkerを付与する。短い場合も付与する。
func Preview(assistantText string) string {
	return truncateRunes(assistantText, PreviewMaxRunes) + EllipsisMarker
}

// truncateRunes はsの先頭n文字（rune単位）を返す。
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
