package config

import (
	"errors"
	"fmt"
	"slices"
)

// ErrInvalidConfig is the root of every configuration error. It is fatal
// and raised before any fetch.
var ErrInvalidConfig = errors.New("invalid configuration")

var (
	ErrNoSources               = invalid("at least one source is required")
	ErrSourceNameRequired      = invalid("source name is required")
	ErrDuplicateSourceName     = invalid("duplicate source name")
	ErrUnknownSourceType       = invalid("unknown source type")
	ErrFeedURLRequired         = invalid("rss source requires feed_url")
	ErrURLRequired             = invalid("web source requires url")
	ErrArticleSelectorRequired = invalid("web source requires article_selector")
	ErrContentSelectorRequired = invalid("web source requires content_selector")
	ErrUnknownDriver           = invalid("unknown database driver")
	ErrDatabasePathRequired    = invalid("sqlite database requires path")
	ErrInvalidTimeWindow       = invalid("time_window_days must be positive")
	ErrUnknownReportFormat     = invalid("unknown report format")
	ErrInvalidRetry            = invalid("invalid retry policy")
)

const (
	FormatHTML     = "html"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
	FormatXLSX     = "xlsx"
)

var ReportFormats = []string{FormatHTML, FormatMarkdown, FormatJSON, FormatXLSX}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, msg)
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return ErrDatabasePathRequired
		}
	case DriverPostgres:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.Database.Driver)
	}

	r := c.Fetch.Retry
	if r.MaxAttempts < 1 || r.Jitter < 0 || r.Jitter > 1 || r.MaxBackoff < r.InitialBackoff {
		return ErrInvalidRetry
	}

	if c.Reporting.TimeWindowDays < 0 {
		return ErrInvalidTimeWindow
	}
	if !slices.Contains(ReportFormats, c.Reporting.Format) {
		return fmt.Errorf("%w: %q", ErrUnknownReportFormat, c.Reporting.Format)
	}

	if len(c.Sources) == 0 {
		return ErrNoSources
	}

	seen := make(map[string]struct{}, len(c.Sources))
	for i, src := range c.Sources {
		if err := src.Validate(); err != nil {
			return fmt.Errorf("%w: sources[%d]", err, i)
		}
		if _, ok := seen[src.Name]; ok {
			return fmt.Errorf("%w: sources[%d] %q", ErrDuplicateSourceName, i, src.Name)
		}
		seen[src.Name] = struct{}{}
	}

	return nil
}

func (s SourceConfig) Validate() error {
	if s.Name == "" {
		return ErrSourceNameRequired
	}

	switch s.Type {
	case SourceRSS:
		if s.FeedURL == "" {
			return ErrFeedURLRequired
		}
	case SourceWeb:
		if s.URL == "" {
			return ErrURLRequired
		}
		if s.ArticleSelector == "" {
			return ErrArticleSelectorRequired
		}
		if s.ContentSelector == "" {
			return ErrContentSelectorRequired
		}
	default:
		return fmt.Errorf("%w %q", ErrUnknownSourceType, s.Type)
	}

	return nil
}
