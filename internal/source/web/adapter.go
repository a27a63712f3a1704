package web

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"prism/internal/config"
	"prism/internal/domain"
	"prism/internal/source"
)

const defaultTitle = "Unknown Title"

// Adapter scrapes a listing page for article links and extracts each
// article's text with the configured content selector.
type Adapter struct {
	fetcher source.Fetcher
	logger  *slog.Logger
}

func New(fetcher source.Fetcher, logger *slog.Logger) *Adapter {
	return &Adapter{fetcher: fetcher, logger: logger}
}

type candidate struct {
	url   string
	title string
}

func (a *Adapter) Fetch(ctx context.Context, src config.SourceConfig) (*domain.FetchResult, error) {
	logger := a.logger.With("source", src.Name)

	base, err := url.Parse(src.URL)
	if err != nil {
		return nil, fmt.Errorf("parse source url: %w", err)
	}

	body, err := a.fetcher.Get(ctx, src.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch listing: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}

	result := &domain.FetchResult{}

	links := doc.Find(src.ArticleSelector)
	if links.Length() == 0 {
		msg := fmt.Sprintf("%v: article_selector %q on %s", domain.ErrSelectorMiss, src.ArticleSelector, src.URL)
		logger.Warn("article selector matched nothing", "selector", src.ArticleSelector, "url", src.URL)
		result.Warnings = append(result.Warnings, msg)
		return result, nil
	}

	candidates := collectLinks(links, base, src)
	logger.Debug("found article links", "matched", links.Length(), "candidates", len(candidates))

	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}

		article, warning := a.fetchArticle(ctx, c, src)
		if warning != "" {
			logger.Warn("skipping article", "url", c.url, "reason", warning)
			result.Warnings = append(result.Warnings, warning)
			continue
		}
		result.Articles = append(result.Articles, *article)
	}

	return result, nil
}

// collectLinks resolves hrefs against the listing URL, drops duplicates and
// applies the include and exclude patterns.
func collectLinks(links *goquery.Selection, base *url.URL, src config.SourceConfig) []candidate {
	seen := make(map[string]struct{})
	var out []candidate

	links.Each(func(_ int, s *goquery.Selection) {
		anchor := s
		if goquery.NodeName(s) != "a" {
			anchor = s.Find("a[href]").First()
		}
		href, ok := anchor.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}

		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		abs.Fragment = ""
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}

		link := abs.String()
		if !Matches(link, src.URLIncludePatterns, src.URLExcludePatterns) {
			return
		}
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}

		out = append(out, candidate{url: link, title: strings.Join(strings.Fields(s.Text()), " ")})
	})

	return out
}

// Matches reports whether link contains every include pattern and none of
// the exclude patterns. An empty include list matches everything.
func Matches(link string, include, exclude []string) bool {
	for _, p := range include {
		if !strings.Contains(link, p) {
			return false
		}
	}
	for _, p := range exclude {
		if strings.Contains(link, p) {
			return false
		}
	}
	return true
}

func (a *Adapter) fetchArticle(ctx context.Context, c candidate, src config.SourceConfig) (*domain.RawArticle, string) {
	body, err := a.fetcher.Get(ctx, c.url)
	if err != nil {
		return nil, fmt.Sprintf("fetch %s: %v", c.url, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Sprintf("parse %s: %v", c.url, err)
	}

	sel := doc.Find(src.ContentSelector)
	if sel.Length() == 0 {
		return nil, fmt.Sprintf("%v: content_selector %q on %s", domain.ErrSelectorMiss, src.ContentSelector, c.url)
	}

	text := source.Text(sel)
	if text == "" {
		return nil, fmt.Sprintf("empty content on %s", c.url)
	}

	title := c.title
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if title == "" {
		title = defaultTitle
	}

	return &domain.RawArticle{
		SourceName:  src.Name,
		Title:       title,
		URL:         c.url,
		Author:      metaAuthor(doc),
		PublishedAt: metaPublished(doc),
		Content:     text,
		Tags:        append([]string(nil), src.Tags...),
	}, ""
}

func metaAuthor(doc *goquery.Document) *string {
	v, ok := doc.Find(`meta[name="author"]`).First().Attr("content")
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		return nil
	}
	return &v
}

func metaPublished(doc *goquery.Document) *time.Time {
	v, ok := doc.Find(`meta[property="article:published_time"]`).First().Attr("content")
	if !ok {
		return nil
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(v))
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
