package rss

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"

	"prism/internal/config"
	"prism/internal/domain"
	"prism/internal/source"
)

// ShortContentThreshold is the entry text length below which a configured
// source fetches the full article page.
const ShortContentThreshold = 1000

// Adapter reads RSS and Atom feeds. Each entry becomes one RawArticle.
type Adapter struct {
	fetcher source.Fetcher
	logger  *slog.Logger
}

func New(fetcher source.Fetcher, logger *slog.Logger) *Adapter {
	return &Adapter{fetcher: fetcher, logger: logger}
}

func (a *Adapter) Fetch(ctx context.Context, src config.SourceConfig) (*domain.FetchResult, error) {
	logger := a.logger.With("source", src.Name)

	body, err := a.fetcher.Get(ctx, src.FeedURL)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}

	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	logger.Debug("parsed feed", "title", feed.Title, "entries", len(feed.Items))

	result := &domain.FetchResult{}
	for _, item := range feed.Items {
		if ctx.Err() != nil {
			break
		}

		link := strings.TrimSpace(item.Link)
		if link == "" {
			logger.Debug("skipping entry without link", "title", item.Title)
			continue
		}

		article := domain.RawArticle{
			SourceName:  src.Name,
			Title:       strings.TrimSpace(item.Title),
			URL:         link,
			Author:      author(item),
			PublishedAt: published(item),
			Content:     content(item),
			Tags:        mergeTags(src.Tags, item.Categories),
		}

		if src.FetchFullContent && len(article.Content) < ShortContentThreshold {
			if full := a.fullText(ctx, link, logger); len(full) > len(article.Content) {
				article.Content = full
			}
		}

		result.Articles = append(result.Articles, article)
	}

	return result, nil
}

// fullText fetches the article page and extracts its main body. Failures
// keep the feed text and are only logged.
func (a *Adapter) fullText(ctx context.Context, link string, logger *slog.Logger) string {
	pageURL, err := url.Parse(link)
	if err != nil {
		return ""
	}

	body, err := a.fetcher.Get(ctx, link)
	if err != nil {
		logger.Warn("failed to fetch full article", "url", link, "error", err)
		return ""
	}

	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		logger.Warn("failed to extract full article", "url", link, "error", err)
		return ""
	}

	return strings.TrimSpace(article.TextContent)
}

// content prefers the full content field and falls back to the summary.
func content(item *gofeed.Item) string {
	if item.Content != "" {
		return source.HTMLToText(item.Content)
	}
	return source.HTMLToText(item.Description)
}

func published(item *gofeed.Item) *time.Time {
	for _, t := range []*time.Time{item.PublishedParsed, item.UpdatedParsed} {
		if t != nil && !t.IsZero() {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}

func author(item *gofeed.Item) *string {
	for _, p := range item.Authors {
		if p != nil && strings.TrimSpace(p.Name) != "" {
			name := strings.TrimSpace(p.Name)
			return &name
		}
	}
	return nil
}

func mergeTags(fixed, categories []string) []string {
	seen := make(map[string]struct{}, len(fixed)+len(categories))
	var tags []string
	for _, list := range [][]string{fixed, categories} {
		for _, t := range list {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			tags = append(tags, t)
		}
	}
	return tags
}
