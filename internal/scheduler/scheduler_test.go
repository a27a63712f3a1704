package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prism/internal/domain"
)

type runnerFunc func(ctx context.Context) (*domain.PipelineResult, error)

func (f runnerFunc) Run(ctx context.Context) (*domain.PipelineResult, error) {
	return f(ctx)
}

func TestScheduler_RunsImmediatelyAndOnTick(t *testing.T) {
	var runs atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := runnerFunc(func(context.Context) (*domain.PipelineResult, error) {
		if runs.Add(1) == 3 {
			cancel()
		}
		return &domain.PipelineResult{}, nil
	})

	err := NewScheduler(runner, 10*time.Millisecond, time.Second, slog.New(slog.DiscardHandler)).Start(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(3), runs.Load())
}

func TestScheduler_RunErrorDoesNotStop(t *testing.T) {
	var runs atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runner := runnerFunc(func(context.Context) (*domain.PipelineResult, error) {
		if runs.Add(1) == 2 {
			cancel()
		}
		return nil, errors.New("scrape: database is locked")
	})

	err := NewScheduler(runner, 10*time.Millisecond, time.Second, slog.New(slog.DiscardHandler)).Start(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(2), runs.Load())
}

func TestScheduler_AppliesRunTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var deadline time.Time
	var hasDeadline bool
	runner := runnerFunc(func(runCtx context.Context) (*domain.PipelineResult, error) {
		deadline, hasDeadline = runCtx.Deadline()
		cancel()
		return &domain.PipelineResult{}, nil
	})

	start := time.Now()
	err := NewScheduler(runner, time.Hour, 5*time.Minute, slog.New(slog.DiscardHandler)).Start(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	require.True(t, hasDeadline)
	assert.WithinDuration(t, start.Add(5*time.Minute), deadline, time.Second)
}

func TestScheduler_ZeroRunTimeoutHasNoDeadline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hasDeadline := true
	runner := runnerFunc(func(runCtx context.Context) (*domain.PipelineResult, error) {
		_, hasDeadline = runCtx.Deadline()
		cancel()
		return nil, nil
	})

	_ = NewScheduler(runner, time.Hour, 0, slog.New(slog.DiscardHandler)).Start(ctx)

	assert.False(t, hasDeadline)
}
