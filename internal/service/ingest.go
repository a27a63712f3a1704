package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"prism/internal/config"
	"prism/internal/domain"
	"prism/internal/metrics"
)

// IngestService runs every configured source through its adapter and
// writes what is new. Each source is isolated: a failure is recorded in
// its SourceResult and never returned from Run.
type IngestService struct {
	sources     []config.SourceConfig
	fetcher     Source
	extractor   Extractor
	articles    ArticleStore
	iocs        IOCStore
	tags        TagStore
	states      SourceStateStore
	txManager   TransactionManager
	publisher   Publisher
	logger      *slog.Logger
	concurrency int
	timeout     time.Duration
	now         func() time.Time
}

func NewIngestService(
	fetcher Source,
	extractor Extractor,
	articles ArticleStore,
	iocs IOCStore,
	tags TagStore,
	states SourceStateStore,
	txManager TransactionManager,
	publisher Publisher,
	logger *slog.Logger,
	cfg *config.Config,
) *IngestService {
	return &IngestService{
		sources:     cfg.Sources,
		fetcher:     fetcher,
		extractor:   extractor,
		articles:    articles,
		iocs:        iocs,
		tags:        tags,
		states:      states,
		txManager:   txManager,
		publisher:   publisher,
		logger:      logger,
		concurrency: max(1, cfg.Ingest.Concurrency),
		timeout:     cfg.Fetch.SourceTimeout,
		now:         time.Now,
	}
}

// Run ingests all sources. Results keep configuration order regardless of
// concurrency. Once ctx is done no new source or article is started, but a
// write already in progress is allowed to commit.
func (s *IngestService) Run(ctx context.Context) (*domain.RunSummary, error) {
	summary := &domain.RunSummary{
		RunID:     uuid.New(),
		StartedAt: s.now(),
	}
	logger := s.logger.With("run_id", summary.RunID.String())

	logger.Info("starting ingest run",
		"sources", len(s.sources),
		"concurrency", s.concurrency,
	)

	results := make([]domain.SourceResult, len(s.sources))
	launched := 0

	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for i, src := range s.sources {
		if ctx.Err() != nil {
			break
		}
		launched++
		g.Go(func() error {
			results[i] = s.ingestSource(ctx, summary.RunID, src, logger.With("source", src.Name))
			return nil
		})
	}
	_ = g.Wait()

	summary.Sources = results[:launched]
	summary.FinishedAt = s.now()

	for _, r := range summary.FailedSources() {
		logger.Error("source failed", "source", r.Source, "error", r.Err)
	}

	logger.Info("ingest run completed",
		"succeeded", summary.Succeeded(),
		"failed", len(summary.FailedSources()),
		"new", summary.TotalNew(),
		"skipped", summary.TotalSkipped(),
		"duration", summary.FinishedAt.Sub(summary.StartedAt),
	)

	return summary, ctx.Err()
}

func (s *IngestService) ingestSource(ctx context.Context, runID uuid.UUID, src config.SourceConfig, logger *slog.Logger) domain.SourceResult {
	start := time.Now()
	result := domain.SourceResult{Source: src.Name}

	fetched, err := s.fetch(ctx, src)
	if err != nil {
		result.Err = &domain.SourceFetchError{Source: src.Name, Err: err}
		result.Duration = time.Since(start)
		metrics.SourceFailures.WithLabelValues(src.Name).Inc()
		s.recordState(ctx, result, logger)
		return result
	}

	result.Warnings = fetched.Warnings
	articles := uniqueByURL(fetched.Articles)
	result.Fetched = len(articles)

	logger.Info("fetched articles from source", "count", result.Fetched, "warnings", len(result.Warnings))

	existing, err := s.articles.ExistingURLs(ctx, src.Name, urlsOf(articles))
	if err != nil {
		result.Err = fmt.Errorf("check existing articles: %w", err)
		result.Duration = time.Since(start)
		metrics.SourceFailures.WithLabelValues(src.Name).Inc()
		s.recordState(ctx, result, logger)
		return result
	}

	for i := range articles {
		if ctx.Err() != nil {
			logger.Warn("run cancelled, leaving remaining articles for next run", "remaining", len(articles)-i)
			break
		}

		raw := &articles[i]
		if _, ok := existing[raw.URL]; ok {
			result.Skipped++
			metrics.ArticlesSkipped.WithLabelValues(src.Name).Inc()
			continue
		}

		article, iocs, err := s.store(ctx, src.Name, raw)
		if errors.Is(err, domain.ErrDuplicate) {
			// Lost an insert race against an overlapping run.
			result.Skipped++
			metrics.ArticlesSkipped.WithLabelValues(src.Name).Inc()
			continue
		}
		if err != nil {
			result.StoreErrors++
			metrics.StoreErrors.WithLabelValues(src.Name).Inc()
			logger.Error("failed to store article", "url", raw.URL, "error", err)
			continue
		}

		result.New++
		result.IOCs += len(iocs)
		metrics.ArticlesIngested.WithLabelValues(src.Name).Inc()
		for _, ioc := range iocs {
			metrics.IOCsExtracted.WithLabelValues(string(ioc.Type)).Inc()
		}

		if s.publish(ctx, runID, article, iocs, raw.Tags, logger) {
			result.Published++
		}
	}

	result.Duration = time.Since(start)
	s.recordState(ctx, result, logger)

	logger.Info("source completed",
		"fetched", result.Fetched,
		"new", result.New,
		"skipped", result.Skipped,
		"iocs", result.IOCs,
		"store_errors", result.StoreErrors,
		"published", result.Published,
		"duration", result.Duration,
	)

	return result
}

func (s *IngestService) fetch(ctx context.Context, src config.SourceConfig) (*domain.FetchResult, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	fetched, err := s.fetcher.Fetch(ctx, src)
	if err != nil {
		return nil, err
	}
	if fetched == nil {
		fetched = &domain.FetchResult{}
	}
	return fetched, nil
}

// store writes the article, its IOCs and its tags in one transaction. The
// transaction ignores cancellation so an article is never left without its
// IOCs.
func (s *IngestService) store(ctx context.Context, source string, raw *domain.RawArticle) (*domain.Article, []domain.IOC, error) {
	article := &domain.Article{
		Source:      source,
		Title:       raw.Title,
		URL:         raw.URL,
		Author:      raw.Author,
		PublishedAt: raw.PublishedAt,
		Content:     raw.Content,
		ScrapedAt:   s.now().UTC(),
	}
	iocs := s.extractor.Extract(raw.Content)

	err := s.txManager.WithTransaction(context.WithoutCancel(ctx), func(txCtx context.Context) error {
		id, err := s.articles.InsertIfAbsent(txCtx, article)
		if err != nil {
			return err
		}

		if len(iocs) > 0 {
			if err := s.iocs.InsertBatch(txCtx, id, iocs); err != nil {
				return fmt.Errorf("insert iocs: %w", err)
			}
		}

		if len(raw.Tags) > 0 {
			if err := s.tags.InsertBatch(txCtx, id, raw.Tags); err != nil {
				return fmt.Errorf("insert tags: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return article, iocs, nil
}

func (s *IngestService) publish(ctx context.Context, runID uuid.UUID, article *domain.Article, iocs []domain.IOC, tags []string, logger *slog.Logger) bool {
	if s.publisher == nil {
		return false
	}

	event := &domain.ArticleEvent{
		Action:    domain.EventIngested,
		RunID:     runID.String(),
		Article:   *article,
		IOCCount:  len(iocs),
		Tags:      tags,
		Timestamp: s.now().UTC(),
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		logger.Warn("failed to publish article event", "url", article.URL, "error", err)
		return false
	}
	return true
}

// recordState is best effort: a failure here is logged and never changes
// the source's result.
func (s *IngestService) recordState(ctx context.Context, result domain.SourceResult, logger *slog.Logger) {
	ctx = context.WithoutCancel(ctx)

	state, err := s.states.Get(ctx, result.Source)
	if err != nil {
		logger.Error("failed to load source state", "error", err)
		return
	}

	state.Source = result.Source
	state.LastRunAt = s.now().UTC()
	state.LastStatus = domain.SourceStatusOK
	state.LastError = nil
	if result.Err != nil {
		msg := result.Err.Error()
		state.LastStatus = domain.SourceStatusFailed
		state.LastError = &msg
	}
	state.TotalIngested += int64(result.New)

	if err := s.states.Update(ctx, state); err != nil {
		logger.Error("failed to update source state", "error", err)
	}
}

// uniqueByURL drops repeated links within one fetch, keeping the first.
func uniqueByURL(articles []domain.RawArticle) []domain.RawArticle {
	seen := make(map[string]struct{}, len(articles))
	out := make([]domain.RawArticle, 0, len(articles))
	for _, a := range articles {
		if _, ok := seen[a.URL]; ok {
			continue
		}
		seen[a.URL] = struct{}{}
		out = append(out, a)
	}
	return out
}

func urlsOf(articles []domain.RawArticle) []string {
	urls := make([]string, len(articles))
	for i, a := range articles {
		urls[i] = a.URL
	}
	return urls
}
