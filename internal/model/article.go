// Package model はドメインモデルを定義する。
package model

import (
	"math"
	"time"
)

// Article は公開記事を表す。
// 所有者を持たず、公開（Published=true）の記事のみが公開APIから参照できる。
type Article struct {
	ID          string
	Title       string
	Slug        string // 公開参照キー（一意）
	Excerpt     string
	Content     string // サニタイズ済みHTML。一覧取得では空
	Category    string
	Author      string
	ImageURL    string
	SourceURL   string
	Published   bool
	Featured    bool
	Views       int64
	Likes       int64
	PublishedAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ArticleSort は記事一覧の並び順を表す。
type ArticleSort string

const (
	// ArticleSortNewest は公開日時の降順。
	ArticleSortNewest ArticleSort = "newest"
	// ArticleSortOldest は公開日時の昇順。
	ArticleSortOldest ArticleSort = "oldest"
	// ArticleSortPopular は閲覧数の降順。
	ArticleSortPopular ArticleSort = "popular"
	// ArticleSortLiked はいいね数の降順。
	ArticleSortLiked ArticleSort = "liked"
)

// CategoryAll はカテゴリ絞り込みなしを表す番兵値。
const CategoryAll = "All"

// ArticleQuery は正規化済みの記事一覧検索条件を表す。
// 値の補正（デフォルト値、未知のソートのフォールバック）はサービス層で済ませてから渡す。
type ArticleQuery struct {
	Search   string
	Category string     // 空は絞り込みなし
	Date     *time.Time // 指定日（サーバーローカル時刻）の0時。nilは絞り込みなし
	Sort     ArticleSort
	Page     int
	Limit    int
}

// Offset はページ番号と件数から読み飛ばし件数を返す。
// 乗算があふれる場合はmath.MaxIntで頭打ちにする。
func (q ArticleQuery) Offset() int {
	if q.Page <= 1 || q.Limit <= 0 {
		return 0
	}
	if q.Page-1 > math.MaxInt/q.Limit {
		return math.MaxInt
	}
	return (q.Page - 1) * q.Limit
}

// Pagination はページネーションのメタデータを表す。
type Pagination struct {
	Page  int
	Limit int
	Total int
	Pages int
}

// NewPagination は総件数からページ数を算出したPaginationを返す。
// Pagesは ceil(total/limit)。
func NewPagination(page, limit, total int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}

// ParsedArticle はフィードパーサーから取得した未保存の記事データを表す。
// ワーカーがフィードをパースした後、取り込みサービスに渡される。
type ParsedArticle struct {
	GuidOrID    string
	Title       string
	Link        string
	Content     string // 未サニタイズのHTML
	Summary     string // 未サニタイズ
	Author      string
	ImageURL    string
	PublishedAt *time.Time
}
