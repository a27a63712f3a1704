package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"prism/internal/config"
)

// Policy is a bounded exponential backoff with jitter. The zero value makes
// a single attempt.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Jitter         float64

	// OnRetry, if set, is called before each wait.
	OnRetry func(attempt int, delay time.Duration, err error)
}

func FromConfig(cfg config.RetryConfig) Policy {
	return Policy{
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     cfg.MaxBackoff,
		Jitter:         cfg.Jitter,
	}
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a permanent error, the attempt
// budget is spent, or ctx is done.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := max(p.MaxAttempts, 1)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialBackoff
	b.MaxInterval = p.MaxBackoff
	b.RandomizationFactor = p.Jitter
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	b.Reset()

	attempt := 0
	return backoff.RetryNotify(
		func() error {
			attempt++
			return op(ctx)
		},
		backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx),
		func(err error, delay time.Duration) {
			if p.OnRetry != nil {
				p.OnRetry(attempt, delay, err)
			}
		},
	)
}

// LogRetries returns a copy of p that logs each retry at warn level.
func (p Policy) LogRetries(logger *slog.Logger) Policy {
	next := p.OnRetry
	p.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.Warn("request failed, retrying",
			"attempt", attempt,
			"backoff", delay,
			"error", err,
		)
		if next != nil {
			next(attempt, delay, err)
		}
	}
	return p
}
