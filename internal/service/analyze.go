package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"prism/internal/domain"
	"prism/internal/metrics"
)

// AnalyzeService summarizes unanalyzed articles, oldest first, and marks
// each one analyzed exactly once.
type AnalyzeService struct {
	tracker    StageTracker
	iocs       IOCStore
	tags       TagStore
	summarizer Summarizer
	publisher  Publisher
	logger     *slog.Logger
	batchSize  int
	now        func() time.Time
}

func NewAnalyzeService(
	tracker StageTracker,
	iocs IOCStore,
	tags TagStore,
	summarizer Summarizer,
	publisher Publisher,
	logger *slog.Logger,
	batchSize int,
) *AnalyzeService {
	return &AnalyzeService{
		tracker:    tracker,
		iocs:       iocs,
		tags:       tags,
		summarizer: summarizer,
		publisher:  publisher,
		logger:     logger.With("stage", "analyze"),
		batchSize:  batchSize,
		now:        time.Now,
	}
}

func (s *AnalyzeService) Run(ctx context.Context) (*domain.AnalyzeStats, error) {
	start := time.Now()

	pending, err := s.tracker.Unanalyzed(ctx, s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("load unanalyzed articles: %w", err)
	}

	stats := &domain.AnalyzeStats{Pending: len(pending)}
	s.logger.Info("starting analysis", "pending", stats.Pending, "batch_size", s.batchSize)

	for i := range pending {
		if ctx.Err() != nil {
			break
		}

		article := &pending[i]
		logger := s.logger.With("article_id", article.ID, "url", article.URL)

		iocs, err := s.iocs.ListByArticle(ctx, article.ID)
		if err != nil {
			stats.Errors++
			logger.Error("failed to load iocs", "error", err)
			continue
		}

		summary, err := s.summarizer.Summarize(ctx, article, iocs)
		if err != nil {
			stats.Errors++
			logger.Error("summarizer failed, article stays unanalyzed", "error", err)
			continue
		}

		at := s.now().UTC()
		err = s.tracker.MarkAnalyzed(context.WithoutCancel(ctx), article.ID, summary, at)
		if errors.Is(err, domain.ErrAlreadyAnalyzed) {
			stats.Skipped++
			logger.Info("article analyzed by another run")
			continue
		}
		if err != nil {
			stats.Errors++
			logger.Error("failed to mark article analyzed", "error", err)
			continue
		}

		stats.Analyzed++
		metrics.ArticlesAnalyzed.Inc()

		article.Summary = &summary
		article.AnalyzedAt = &at
		if s.publish(ctx, article, iocs, logger) {
			stats.Published++
		}
	}

	stats.Duration = time.Since(start)

	s.logger.Info("analysis completed",
		"analyzed", stats.Analyzed,
		"skipped", stats.Skipped,
		"errors", stats.Errors,
		"published", stats.Published,
		"duration", stats.Duration,
	)

	return stats, ctx.Err()
}

func (s *AnalyzeService) publish(ctx context.Context, article *domain.Article, iocs []domain.IOC, logger *slog.Logger) bool {
	if s.publisher == nil {
		return false
	}

	tags, err := s.tags.ListByArticle(ctx, article.ID)
	if err != nil {
		logger.Warn("failed to load tags for event", "error", err)
	}

	event := &domain.ArticleEvent{
		Action:    domain.EventAnalyzed,
		Article:   *article,
		IOCCount:  len(iocs),
		Tags:      tags,
		Timestamp: s.now().UTC(),
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		logger.Warn("failed to publish article event", "error", err)
		return false
	}
	return true
}
