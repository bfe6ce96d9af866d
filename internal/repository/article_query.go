package repository

import (
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/hitoshi/healscope/internal/model"
)

// psql はPostgreSQLのプレースホルダ形式（$1, $2...）を使うステートメントビルダー。
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// articleSummaryColumns は一覧系クエリで返すカラム。contentは含まない。
var articleSummaryColumns = []string{
	"id", "title", "slug", "excerpt", "category", "author", "image_url", "source_url",
	"published", "featured", "views", "likes", "published_at", "created_at", "updated_at",
}

// articleFilter は検索条件から公開記事の絞り込み条件を組み立てる。
// 非公開記事は常に除外する。
func articleFilter(q model.ArticleQuery) sq.And {
	cond := sq.And{sq.Eq{"published": true}}

	if q.Search != "" {
		cond = append(cond, sq.Expr("search_vector @@ plainto_tsquery('english', ?)", q.Search))
	}
	if q.Category != "" && q.Category != model.CategoryAll {
		cond = append(cond, sq.Eq{"category": q.Category})
	}
	if q.Date != nil {
		start, end := dayRange(*q.Date)
		cond = append(cond, sq.GtOrEq{"published_at": start}, sq.LtOrEq{"published_at": end})
	}

	return cond
}

// dayRange は指定日の0:00:00.000から23:59:59.999までの範囲を返す。
// タイムゾーンは引数のものをそのまま使う。
func dayRange(d time.Time) (time.Time, time.Time) {
	y, m, day := d.Date()
	start := time.Date(y, m, day, 0, 0, 0, 0, d.Location())
	end := time.Date(y, m, day, 23, 59, 59, 999_000_000, d.Location())
	return start, end
}

// articleOrderBy は並び順の指定をORDER BY句に変換する。
// 未知の値は新着順として扱う。同値の場合はidで順序を安定させる。
func articleOrderBy(sort model.ArticleSort) []string {
	switch sort {
	case model.ArticleSortOldest:
		return []string{"published_at ASC", "id ASC"}
	case model.ArticleSortPopular:
		return []string{"views DESC", "published_at DESC", "id DESC"}
	case model.ArticleSortLiked:
		return []string{"likes DESC", "published_at DESC", "id DESC"}
	default:
		return []string{"published_at DESC", "id DESC"}
	}
}

// BuildArticleListQuery は記事一覧の1ページ分を取得するクエリを組み立てる。
// q.Page と q.Limit は正規化済みであること。
func BuildArticleListQuery(q model.ArticleQuery) sq.SelectBuilder {
	return psql.Select(articleSummaryColumns...).
		From("articles").
		Where(articleFilter(q)).
		OrderBy(articleOrderBy(q.Sort)...).
		Limit(uint64(q.Limit)).
		Offset(uint64(q.Offset()))
}

// BuildArticleCountQuery はページネーション前の総件数を取得するクエリを組み立てる。
func BuildArticleCountQuery(q model.ArticleQuery) sq.SelectBuilder {
	return psql.Select("count(*)").
		From("articles").
		Where(articleFilter(q))
}

// BuildFeaturedQuery は注目記事を新着順に取得するクエリを組み立てる。
func BuildFeaturedQuery(limit int) sq.SelectBuilder {
	return psql.Select(articleSummaryColumns...).
		From("articles").
		Where(sq.Eq{"published": true, "featured": true}).
		OrderBy(articleOrderBy(model.ArticleSortNewest)...).
		Limit(uint64(limit))
}

// BuildCategoryQuery は指定カテゴリの公開記事を新着順に取得するクエリを組み立てる。
func BuildCategoryQuery(category string) sq.SelectBuilder {
	return psql.Select(articleSummaryColumns...).
		From("articles").
		Where(sq.Eq{"published": true, "category": category}).
		OrderBy(articleOrderBy(model.ArticleSortNewest)...)
}
