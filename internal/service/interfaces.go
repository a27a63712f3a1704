package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"prism/internal/config"
	"prism/internal/domain"
)

// Source fetches one configured source, whatever its type.
type Source interface {
	Fetch(ctx context.Context, src config.SourceConfig) (*domain.FetchResult, error)
}

type Extractor interface {
	Extract(text string) []domain.IOC
}

type ArticleStore interface {
	ExistingURLs(ctx context.Context, source string, urls []string) (map[string]struct{}, error)
	InsertIfAbsent(ctx context.Context, article *domain.Article) (int64, error)
}

type IOCStore interface {
	InsertBatch(ctx context.Context, articleID int64, iocs []domain.IOC) error
	ListByArticle(ctx context.Context, articleID int64) ([]domain.IOC, error)
	Search(ctx context.Context, term string, limit int) ([]domain.IOCMatch, error)
}

type TagStore interface {
	InsertBatch(ctx context.Context, articleID int64, tags []string) error
	ListByArticle(ctx context.Context, articleID int64) ([]string, error)
}

type SourceStateStore interface {
	Get(ctx context.Context, source string) (*domain.SourceState, error)
	Update(ctx context.Context, state *domain.SourceState) error
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type StageTracker interface {
	Unanalyzed(ctx context.Context, limit int) ([]domain.Article, error)
	MarkAnalyzed(ctx context.Context, id int64, summary string, at time.Time) error
	Reportable(ctx context.Context, now time.Time, windowDays int) ([]domain.Article, error)
}

type Publisher interface {
	Publish(ctx context.Context, event *domain.ArticleEvent) error
	Close() error
}

type Summarizer interface {
	Summarize(ctx context.Context, article *domain.Article, iocs []domain.IOC) (string, error)
	Overview(ctx context.Context, articles []domain.ReportArticle) (string, error)
}

type ReportWriter interface {
	Format() string
	Write(ctx context.Context, report *domain.Report) (string, error)
}

type Ingester interface {
	Run(ctx context.Context) (*domain.RunSummary, error)
}

type Analyzer interface {
	Run(ctx context.Context) (*domain.AnalyzeStats, error)
}

type Reporter interface {
	Run(ctx context.Context) (*domain.ReportStats, error)
}
