package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"prism/internal/config"
	"prism/internal/metrics"
	"prism/internal/retry"
)

// StatusError is a non-2xx response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

// Transient reports whether the status is worth retrying.
func (e *StatusError) Transient() bool {
	return e.Code == http.StatusRequestTimeout ||
		e.Code == http.StatusTooManyRequests ||
		e.Code >= 500
}

// Client performs GET requests under a retry policy. Network errors,
// timeouts, 408, 429 and 5xx are retried; other statuses fail at once.
type Client struct {
	http         *http.Client
	policy       retry.Policy
	userAgent    string
	userAgents   []string
	maxBodyBytes int64
	logger       *slog.Logger
}

func NewClient(cfg config.FetchConfig, logger *slog.Logger) *Client {
	policy := retry.FromConfig(cfg.Retry).LogRetries(logger)
	policy.OnRetry = chainRetryMetric(policy.OnRetry)

	return &Client{
		http:         &http.Client{Timeout: cfg.RequestTimeout},
		policy:       policy,
		userAgent:    cfg.UserAgent,
		userAgents:   nonBlank(cfg.UserAgents),
		maxBodyBytes: cfg.MaxBodyBytes,
		logger:       logger,
	}
}

// New builds a client from explicit parts, mainly for tests.
func New(httpClient *http.Client, policy retry.Policy, userAgent string, maxBodyBytes int64, logger *slog.Logger) *Client {
	return &Client{
		http:         httpClient,
		policy:       policy,
		userAgent:    userAgent,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// Get returns the body of url, read up to the configured limit.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	var body []byte

	err := c.policy.Do(ctx, func(ctx context.Context) error {
		b, err := c.doRequest(ctx, url)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && !se.Transient() {
				return retry.Permanent(err)
			}
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	return body, nil
}

func (c *Client) doRequest(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("User-Agent", c.pickUserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/rss+xml,application/atom+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}

	reader := io.Reader(resp.Body)
	if c.maxBodyBytes > 0 {
		reader = io.LimitReader(resp.Body, c.maxBodyBytes)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return body, nil
}

// pickUserAgent rotates through the configured pool per request, falling
// back to the single user_agent when the pool is empty.
func (c *Client) pickUserAgent() string {
	if len(c.userAgents) == 0 {
		return c.userAgent
	}
	return c.userAgents[rand.IntN(len(c.userAgents))]
}

func nonBlank(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func chainRetryMetric(next func(int, time.Duration, error)) func(int, time.Duration, error) {
	return func(attempt int, delay time.Duration, err error) {
		metrics.FetchRetries.Inc()
		if next != nil {
			next(attempt, delay, err)
		}
	}
}
