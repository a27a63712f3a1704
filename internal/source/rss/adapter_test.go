package rss

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prism/internal/config"
)

type stubFetcher struct {
	pages map[string]string
	calls []string
}

func (f *stubFetcher) Get(_ context.Context, url string) ([]byte, error) {
	f.calls = append(f.calls, url)
	body, ok := f.pages[url]
	if !ok {
		return nil, errors.New("connection refused")
	}
	return []byte(body), nil
}

const feedXML = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/" xmlns:dc="http://purl.org/dc/elements/1.1/">
<channel>
  <title>Threat Blog</title>
  <link>https://blog.example.org</link>
  <item>
    <title>  Loader drops stealer  </title>
    <link>https://blog.example.org/loader</link>
    <dc:creator>Jane Analyst</dc:creator>
    <pubDate>Mon, 02 Sep 2024 10:00:00 +0000</pubDate>
    <category>malware</category>
    <category>research</category>
    <description>Short teaser</description>
    <content:encoded><![CDATA[<p>C2 at <b>185[.]220[.]101[.]1</b></p><script>x()</script>]]></content:encoded>
  </item>
  <item>
    <title>Undated note</title>
    <link>https://blog.example.org/note</link>
    <pubDate>not a date</pubDate>
    <description><![CDATA[<p>Only a summary</p>]]></description>
  </item>
  <item>
    <title>No link</title>
    <description>ignored</description>
  </item>
</channel>
</rss>`

func newAdapter(f *stubFetcher) *Adapter {
	return New(f, slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})))
}

func TestFetch_NormalizesEntries(t *testing.T) {
	f := &stubFetcher{pages: map[string]string{"https://blog.example.org/feed": feedXML}}
	src := config.SourceConfig{Name: "Blog", Type: config.SourceRSS, FeedURL: "https://blog.example.org/feed", Tags: []string{"blog", "malware"}}

	res, err := newAdapter(f).Fetch(context.Background(), src)

	require.NoError(t, err)
	require.Len(t, res.Articles, 2)

	first := res.Articles[0]
	assert.Equal(t, "Blog", first.SourceName)
	assert.Equal(t, "Loader drops stealer", first.Title)
	assert.Equal(t, "https://blog.example.org/loader", first.URL)
	assert.Equal(t, "C2 at 185[.]220[.]101[.]1", first.Content)
	require.NotNil(t, first.Author)
	assert.Equal(t, "Jane Analyst", *first.Author)
	require.NotNil(t, first.PublishedAt)
	assert.True(t, first.PublishedAt.Equal(time.Date(2024, 9, 2, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, []string{"blog", "malware", "research"}, first.Tags)

	second := res.Articles[1]
	assert.Equal(t, "Only a summary", second.Content)
	assert.Nil(t, second.PublishedAt)
	assert.Nil(t, second.Author)
	assert.Equal(t, []string{"https://blog.example.org/feed"}, f.calls)
}

func TestFetch_ParseFailure(t *testing.T) {
	f := &stubFetcher{pages: map[string]string{"https://x.example/feed": "<html>not a feed"}}

	_, err := newAdapter(f).Fetch(context.Background(), config.SourceConfig{Name: "X", FeedURL: "https://x.example/feed"})

	assert.ErrorContains(t, err, "parse feed")
}

func TestFetch_NetworkFailure(t *testing.T) {
	_, err := newAdapter(&stubFetcher{}).Fetch(context.Background(), config.SourceConfig{Name: "X", FeedURL: "https://down.example/feed"})

	assert.ErrorContains(t, err, "fetch feed")
}

func TestFetch_FullContentFallback(t *testing.T) {
	paragraph := strings.Repeat("The operators, tracked as Storm-0000, used spearphishing lures, staged loaders on compromised hosts, and exfiltrated data through cloud storage. ", 12)
	page := `<html><head><title>Loader drops stealer</title></head><body>
<nav>Home | About</nav>
<article><h1>Loader drops stealer</h1><p>` + paragraph + `</p><p>` + paragraph + `</p></article>
<footer>Copyright</footer></body></html>`

	f := &stubFetcher{pages: map[string]string{
		"https://blog.example.org/feed":   feedXML,
		"https://blog.example.org/loader": page,
	}}
	src := config.SourceConfig{Name: "Blog", FeedURL: "https://blog.example.org/feed", FetchFullContent: true}

	res, err := newAdapter(f).Fetch(context.Background(), src)

	require.NoError(t, err)
	require.Len(t, res.Articles, 2)
	assert.Contains(t, res.Articles[0].Content, "tracked as Storm-0000")
	// The note page is missing: its feed text is kept.
	assert.Equal(t, "Only a summary", res.Articles[1].Content)
}
