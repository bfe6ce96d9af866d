package article

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// MaxExcerptRunes は抜粋の最大文字数。
const MaxExcerptRunes = 200

// ExtractExcerpt はHTMLからテキストを取り出し、空白を詰めた抜粋を返す。
// MaxExcerptRunesを超える場合は切り詰めて"..."を付与する。
func ExtractExcerpt(fragment string) string {
	doc, ok := parseFragment(fragment)
	if !ok {
		return ""
	}

	text := strings.Join(strings.Fields(doc.Text()), " ")
	if utf8.RuneCountInString(text) <= MaxExcerptRunes {
		return text
	}
	return string([]rune(text)[:MaxExcerptRunes]) + "..."
}

// ExtractCoverImage はHTML中で最初のhttps画像のURLを返す。見つからない場合は空文字列。
func ExtractCoverImage(fragment string) string {
	doc, ok := parseFragment(fragment)
	if !ok {
		return ""
	}

	var cover string
	doc.Find("img[src]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		src, _ := sel.Attr("src")
		if strings.HasPrefix(src, "https://") {
			cover = src
			return false
		}
		return true
	})
	return cover
}

// parseFragment はHTML断片をパースしてgoqueryのドキュメントにする。
func parseFragment(fragment string) (*goquery.Document, bool) {
	if strings.TrimSpace(fragment) == "" {
		return nil, false
	}
	node, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return nil, false
	}
	return goquery.NewDocumentFromNode(node), true
}
