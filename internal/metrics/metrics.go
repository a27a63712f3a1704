package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ArticlesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prism_articles_ingested_total",
			Help: "New articles written to the store",
		},
		[]string{"source"},
	)

	ArticlesSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prism_articles_skipped_total",
			Help: "Fetched articles already present in the store",
		},
		[]string{"source"},
	)

	SourceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prism_source_failures_total",
			Help: "Sources that could not be fetched in a run",
		},
		[]string{"source"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prism_store_errors_total",
			Help: "Articles whose write transaction failed",
		},
		[]string{"source"},
	)

	IOCsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prism_iocs_extracted_total",
			Help: "IOCs persisted, by type",
		},
		[]string{"type"},
	)

	FetchRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prism_fetch_retries_total",
			Help: "HTTP fetch retries after transient failures",
		},
	)

	ArticlesAnalyzed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prism_articles_analyzed_total",
			Help: "Articles summarized and marked analyzed",
		},
	)

	ReportsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prism_reports_generated_total",
			Help: "Report files written, by format",
		},
		[]string{"format"},
	)

	LastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "prism_last_run_timestamp_seconds",
			Help: "Unix time the last pipeline run finished",
		},
	)
)
