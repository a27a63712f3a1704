package scheduler

import (
	"context"
	"log/slog"
	"time"

	"prism/internal/domain"
)

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context) (*domain.PipelineResult, error)
}

// Scheduler re-runs the pipeline every interval until its context is done.
// Runs never overlap: a slow run delays the next tick.
type Scheduler struct {
	runner     Runner
	interval   time.Duration
	runTimeout time.Duration
	logger     *slog.Logger
}

func NewScheduler(runner Runner, interval, runTimeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:     runner,
		interval:   interval,
		runTimeout: runTimeout,
		logger:     logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval, "run_timeout", s.runTimeout)

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	result, err := s.runner.Run(ctx)
	if err != nil {
		s.logger.Error("pipeline run failed", "error", err)
		return
	}
	if result != nil && result.Ingest != nil && result.Ingest.AllFailed() {
		s.logger.Error("every source failed in this run", "sources", len(result.Ingest.Sources))
	}
}
