package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"prism/internal/config"
	"prism/internal/domain"
	"prism/internal/metrics"
)

// ReportService builds the time-windowed view of analyzed articles and
// hands it to a writer.
type ReportService struct {
	tracker    StageTracker
	iocs       IOCStore
	tags       TagStore
	summarizer Summarizer
	writer     ReportWriter
	logger     *slog.Logger
	cfg        config.ReportingConfig
	now        func() time.Time
}

func NewReportService(
	tracker StageTracker,
	iocs IOCStore,
	tags TagStore,
	summarizer Summarizer,
	writer ReportWriter,
	logger *slog.Logger,
	cfg config.ReportingConfig,
) *ReportService {
	return &ReportService{
		tracker:    tracker,
		iocs:       iocs,
		tags:       tags,
		summarizer: summarizer,
		writer:     writer,
		logger:     logger.With("stage", "report"),
		cfg:        cfg,
		now:        time.Now,
	}
}

// Run writes one report file. With no reportable articles it writes
// nothing and returns empty stats.
func (s *ReportService) Run(ctx context.Context) (*domain.ReportStats, error) {
	start := time.Now()

	report, err := s.Build(ctx)
	if err != nil {
		return nil, err
	}

	stats := &domain.ReportStats{Articles: len(report.Articles)}
	if len(report.Articles) == 0 {
		s.logger.Info("no analyzed articles in time window, skipping report",
			"time_window_days", s.cfg.TimeWindowDays,
		)
		stats.Duration = time.Since(start)
		return stats, nil
	}

	if s.cfg.WantsExecutiveSummary() && s.summarizer != nil {
		overview, err := s.summarizer.Overview(ctx, report.Articles)
		if err != nil {
			s.logger.Warn("executive summary failed, continuing without it", "error", err)
		} else {
			report.Overview = overview
		}
	}

	path, err := s.writer.Write(ctx, report)
	if err != nil {
		return nil, fmt.Errorf("write %s report: %w", s.writer.Format(), err)
	}
	metrics.ReportsGenerated.WithLabelValues(s.writer.Format()).Inc()

	counts := report.IOCCounts()
	for _, n := range counts {
		stats.IOCs += n
	}
	stats.Path = path
	stats.Duration = time.Since(start)

	s.logger.Info("report generated",
		"path", path,
		"format", s.writer.Format(),
		"articles", stats.Articles,
		"iocs", stats.IOCs,
		"ioc_types", counts,
		"duration", stats.Duration,
	)

	return stats, nil
}

// Build loads reportable articles with their IOCs and tags, newest first.
func (s *ReportService) Build(ctx context.Context) (*domain.Report, error) {
	now := s.now().UTC()

	articles, err := s.tracker.Reportable(ctx, now, s.cfg.TimeWindowDays)
	if err != nil {
		return nil, fmt.Errorf("load reportable articles: %w", err)
	}

	report := &domain.Report{
		GeneratedAt: now,
		WindowDays:  s.cfg.TimeWindowDays,
		Articles:    make([]domain.ReportArticle, 0, len(articles)),
	}

	for _, a := range articles {
		iocs, err := s.iocs.ListByArticle(ctx, a.ID)
		if err != nil {
			return nil, fmt.Errorf("load iocs for article %d: %w", a.ID, err)
		}
		tags, err := s.tags.ListByArticle(ctx, a.ID)
		if err != nil {
			return nil, fmt.Errorf("load tags for article %d: %w", a.ID, err)
		}
		report.Articles = append(report.Articles, domain.ReportArticle{
			Article: a,
			IOCs:    iocs,
			Tags:    tags,
		})
	}

	sort.SliceStable(report.Articles, func(i, j int) bool {
		return report.Articles[i].SortTime().After(report.Articles[j].SortTime())
	})

	return report, nil
}
