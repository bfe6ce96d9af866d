package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hitoshi/healscope/internal/model"
)

// DefaultSourceFetchIntervalMinutes は取り込み元のフェッチ間隔（分）の既定値。
const DefaultSourceFetchIntervalMinutes = 60

// SourceFile は記事取り込み元シードファイルの構造。
//
//	sources:
//	  - feedUrl: https://example.com/health/rss
//	    title: Example Health
//	    category: Eye Health
//	    autoPublish: true
//	    featured: false
//	    fetchIntervalMinutes: 60
type SourceFile struct {
	Sources []SourceEntry `yaml:"sources"`
}

// SourceEntry はシードファイル内の取り込み元1件。
type SourceEntry struct {
	FeedURL              string `yaml:"feedUrl"`
	Title                string `yaml:"title"`
	Category             string `yaml:"category"`
	AutoPublish          *bool  `yaml:"autoPublish"` // 未指定の場合は公開
	Featured             bool   `yaml:"featured"`
	FetchIntervalMinutes int    `yaml:"fetchIntervalMinutes"`
}

// LoadSources はYAMLのシードファイルを読み込み、検証済みの取り込み元を返す。
// pathが空の場合は何も返さない。
func LoadSources(path string) ([]*model.ArticleSource, error) {
	if path == "" {
		return nil, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read article sources %s: %w", path, err)
	}
	return ParseSources(raw)
}

// ParseSources はYAMLの内容を検証済みの取り込み元に変換する。
// 同じフィードURLが複数回現れた場合はエラーにする。
func ParseSources(raw []byte) ([]*model.ArticleSource, error) {
	var file SourceFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse article sources: %w", err)
	}

	seen := make(map[string]bool, len(file.Sources))
	sources := make([]*model.ArticleSource, 0, len(file.Sources))
	for i, entry := range file.Sources {
		src, err := entry.toModel()
		if err != nil {
			return nil, fmt.Errorf("article source #%d: %w", i+1, err)
		}
		if seen[src.FeedURL] {
			return nil, fmt.Errorf("article source #%d: duplicate feedUrl %s", i+1, src.FeedURL)
		}
		seen[src.FeedURL] = true
		sources = append(sources, src)
	}
	return sources, nil
}

func (e SourceEntry) toModel() (*model.ArticleSource, error) {
	feedURL := strings.TrimSpace(e.FeedURL)
	u, err := url.Parse(feedURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("feedUrl must be an absolute http(s) URL: %q", e.FeedURL)
	}

	category := strings.TrimSpace(e.Category)
	if category == "" {
		return nil, fmt.Errorf("category is required for %s", feedURL)
	}
	if category == model.CategoryAll {
		return nil, fmt.Errorf("category %q is reserved", model.CategoryAll)
	}

	interval := e.FetchIntervalMinutes
	if interval <= 0 {
		interval = DefaultSourceFetchIntervalMinutes
	}

	autoPublish := true
	if e.AutoPublish != nil {
		autoPublish = *e.AutoPublish
	}

	return &model.ArticleSource{
		FeedURL:              feedURL,
		Title:                strings.TrimSpace(e.Title),
		Category:             category,
		AutoPublish:          autoPublish,
		Featured:             e.Featured,
		FetchIntervalMinutes: interval,
		FetchStatus:          model.FetchStatusActive,
	}, nil
}
