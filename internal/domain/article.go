package domain

import "time"

// RawArticle is what a source adapter produces for one discovered item.
// It is not persisted until the ingest service decides it is new.
type RawArticle struct {
	SourceName  string
	Title       string
	URL         string
	Author      *string
	PublishedAt *time.Time
	Content     string
	Tags        []string
}

type Article struct {
	ID          int64      `db:"id" json:"id"`
	Source      string     `db:"source" json:"source"`
	Title       string     `db:"title" json:"title"`
	URL         string     `db:"url" json:"url"`
	Author      *string    `db:"author" json:"author,omitempty"`
	PublishedAt *time.Time `db:"published_date" json:"published_date,omitempty"`
	Content     string     `db:"content" json:"content"`
	Summary     *string    `db:"summary" json:"summary,omitempty"`
	ScrapedAt   time.Time  `db:"scraped_date" json:"scraped_date"`
	AnalyzedAt  *time.Time `db:"analyzed_date" json:"analyzed_date,omitempty"`
}

// SortTime is the published date when known, otherwise the scrape time.
func (a Article) SortTime() time.Time {
	if a.PublishedAt != nil {
		return *a.PublishedAt
	}
	return a.ScrapedAt
}

type Tag struct {
	ID        int64  `db:"id"`
	ArticleID int64  `db:"article_id"`
	Tag       string `db:"tag"`
}

type SourceState struct {
	Source        string    `db:"source"`
	LastRunAt     time.Time `db:"last_run_at"`
	LastStatus    string    `db:"last_status"`
	LastError     *string   `db:"last_error"`
	TotalIngested int64     `db:"total_ingested"`
}

const (
	SourceStatusOK     = "ok"
	SourceStatusFailed = "failed"
)
