package security

import (
	"html"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer はHTMLまたはテキストを安全な形に変換するインターフェース。
// 同一入力に対して常に同一出力を返す（冪等）。
type Sanitizer interface {
	Sanitize(raw string) string
}

// articleSanitizer は取り込み記事の本文用サニタイザ。
type articleSanitizer struct {
	policy *bluemonday.Policy
}

// NewArticleSanitizer は記事本文用のサニタイザを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, h2〜h4, ul, ol, li, blockquote, pre, code, strong, em, figure, figcaption, a, img
//   - script, iframe, style および全てのon*イベント属性は除去
//   - imgのsrc属性とaのhref属性はhttpsスキームのみ
//   - aタグには target="_blank" と rel="noopener noreferrer" を付与
func NewArticleSanitizer() Sanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "h2", "h3", "h4",
		"ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "figure", "figcaption",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return u.Host != ""
	})

	return &articleSanitizer{policy: p}
}

// Sanitize はHTMLを許可リストに従ってサニタイズする。
func (s *articleSanitizer) Sanitize(raw string) string {
	return s.policy.Sanitize(raw)
}

// textSanitizer はユーザー入力の自由記述用サニタイザ。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はユーザー入力テキスト用のサニタイザを生成する。
// すべてのタグを除去し、前後の空白を取り除いたプレーンテキストを返す。
// スキャンのメモ、服薬メモ、チャット本文に使用する。
func NewTextSanitizer() Sanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去したプレーンテキストを返す。
// StrictPolicyがエスケープした文字実体参照は元の文字に戻す。
func (s *textSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}
