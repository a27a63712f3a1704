package service

import (
	"context"
	"fmt"
	"log/slog"

	"prism/internal/domain"
	"prism/internal/metrics"
)

// Stages selects which pipeline stages a run executes. They always run in
// scrape, analyze, report order.
type Stages struct {
	Scrape  bool
	Analyze bool
	Report  bool
}

func AllStages() Stages {
	return Stages{Scrape: true, Analyze: true, Report: true}
}

func (s Stages) Any() bool {
	return s.Scrape || s.Analyze || s.Report
}

type Pipeline struct {
	ingest  Ingester
	analyze Analyzer
	report  Reporter
	stages  Stages
	logger  *slog.Logger
}

func NewPipeline(ingest Ingester, analyze Analyzer, report Reporter, stages Stages, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		ingest:  ingest,
		analyze: analyze,
		report:  report,
		stages:  stages,
		logger:  logger,
	}
}

// Run executes the selected stages. A stage error stops the run; per-source
// failures inside the scrape stage are not errors.
func (p *Pipeline) Run(ctx context.Context) (*domain.PipelineResult, error) {
	result := &domain.PipelineResult{}
	defer metrics.LastRunTimestamp.SetToCurrentTime()

	if p.stages.Scrape {
		summary, err := p.ingest.Run(ctx)
		result.Ingest = summary
		if err != nil {
			return result, fmt.Errorf("scrape: %w", err)
		}
	}

	if p.stages.Analyze {
		stats, err := p.analyze.Run(ctx)
		result.Analyze = stats
		if err != nil {
			return result, fmt.Errorf("analyze: %w", err)
		}
	}

	if p.stages.Report {
		stats, err := p.report.Run(ctx)
		result.Report = stats
		if err != nil {
			return result, fmt.Errorf("report: %w", err)
		}
	}

	p.logger.Info("pipeline run completed",
		"scrape", p.stages.Scrape,
		"analyze", p.stages.Analyze,
		"report", p.stages.Report,
	)

	return result, nil
}
