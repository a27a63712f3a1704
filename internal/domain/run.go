package domain

import (
	"time"

	"github.com/google/uuid"
)

// FetchResult is one adapter pass over a source. Warnings carry
// non-fatal conditions such as selector misses.
type FetchResult struct {
	Articles []RawArticle
	Warnings []string
}

// SourceResult holds statistics about ingesting one source.
type SourceResult struct {
	Source      string
	Fetched     int
	New         int
	Skipped     int
	IOCs        int
	StoreErrors int
	Published   int
	Warnings    []string
	Err         error
	Duration    time.Duration
}

func (r SourceResult) Failed() bool {
	return r.Err != nil
}

// RunSummary is the outcome of one ingest run, with per-source results
// in configuration order.
type RunSummary struct {
	RunID      uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	Sources    []SourceResult
}

func (s *RunSummary) Succeeded() int {
	n := 0
	for _, r := range s.Sources {
		if !r.Failed() {
			n++
		}
	}
	return n
}

func (s *RunSummary) FailedSources() []SourceResult {
	var failed []SourceResult
	for _, r := range s.Sources {
		if r.Failed() {
			failed = append(failed, r)
		}
	}
	return failed
}

func (s *RunSummary) TotalNew() int {
	n := 0
	for _, r := range s.Sources {
		n += r.New
	}
	return n
}

func (s *RunSummary) TotalSkipped() int {
	n := 0
	for _, r := range s.Sources {
		n += r.Skipped
	}
	return n
}

// AllFailed reports whether there was at least one source and none succeeded.
func (s *RunSummary) AllFailed() bool {
	return len(s.Sources) > 0 && s.Succeeded() == 0
}

type AnalyzeStats struct {
	Pending   int
	Analyzed  int
	Skipped   int
	Errors    int
	Published int
	Duration  time.Duration
}

type ReportStats struct {
	Articles int
	IOCs     int
	Path     string
	Duration time.Duration
}

// PipelineResult collects what each selected stage produced. Stages that
// did not run are nil.
type PipelineResult struct {
	Ingest  *RunSummary
	Analyze *AnalyzeStats
	Report  *ReportStats
}
