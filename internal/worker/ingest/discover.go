package ingest

import (
	"bytes"
	"mime"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// feedLinkTypes はHTMLのlink要素で取り込み可能とみなすtype属性。
// 値はAtomを優先するための順位。
var feedLinkTypes = map[string]int{
	"application/atom+xml": 10,
	"application/rss+xml":  0,
}

// IsHTML はContent-TypeがHTMLかどうかを判定する。
func IsHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	return strings.EqualFold(mediaType, "text/html") || strings.EqualFold(mediaType, "application/xhtml+xml")
}

// DiscoverFeedURL はHTMLページの<link rel="alternate">からフィードURLを探す。
// 相対URLはpageURLを基準に解決する。同一ホスト、Atom、文書内の順の優先で1件を返す。
func DiscoverFeedURL(body []byte, pageURL string) (string, bool) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", false
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", false
	}

	best := ""
	bestScore := -1
	doc.Find(`link[rel][href][type]`).Each(func(_ int, sel *goquery.Selection) {
		if !hasRel(sel.AttrOr("rel", ""), "alternate") {
			return
		}
		typeScore, ok := feedLinkTypes[strings.ToLower(strings.TrimSpace(sel.AttrOr("type", "")))]
		if !ok {
			return
		}

		ref, err := url.Parse(strings.TrimSpace(sel.AttrOr("href", "")))
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}

		score := typeScore
		if strings.EqualFold(resolved.Hostname(), base.Hostname()) {
			score += 100
		}
		if score > bestScore {
			best = resolved.String()
			bestScore = score
		}
	})

	return best, best != ""
}

func hasRel(rel, want string) bool {
	for _, r := range strings.Fields(rel) {
		if strings.EqualFold(r, want) {
			return true
		}
	}
	return false
}
