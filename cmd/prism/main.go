package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"prism/internal/config"
	"prism/internal/fetch"
	"prism/internal/ioc"
	"prism/internal/metrics"
	"prism/internal/publisher"
	"prism/internal/report"
	"prism/internal/scheduler"
	"prism/internal/service"
	"prism/internal/source"
	"prism/internal/source/rss"
	"prism/internal/source/web"
	"prism/internal/storage/sqlstore"
	"prism/internal/summarizer"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to config file")
	scrape := flag.Bool("scrape", false, "fetch all sources and store new articles")
	analyze := flag.Bool("analyze", false, "summarize unanalyzed articles")
	reportStage := flag.Bool("report", false, "write a report of recently analyzed articles")
	fullRun := flag.Bool("full-run", false, "scrape, analyze and report in that order")
	searchIOC := flag.String("search-ioc", "", "list stored IOCs whose value contains this text")
	interval := flag.Duration("interval", 0, "re-run the selected stages on this interval")
	runTimeout := flag.Duration("run-timeout", 30*time.Minute, "upper bound for one scheduled run")
	format := flag.String("format", "", "report format override (html, markdown, json, xlsx)")
	flag.Parse()

	stages := service.Stages{Scrape: *scrape, Analyze: *analyze, Report: *reportStage}
	if *fullRun {
		stages = service.AllStages()
	}
	if !stages.Any() && *searchIOC == "" {
		fmt.Fprintln(os.Stderr, "select at least one of --scrape, --analyze, --report, --full-run or --search-ioc")
		flag.Usage()
		return exitUsage
	}

	// Setup logger
	logger := setupLogger("info")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return exitError
	}

	logger = setupLogger(cfg.LogLevel)

	if *format != "" {
		cfg.Reporting.Format = *format
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := sqlstore.Open(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return exitError
	}
	defer db.Close()

	logger.Info("connected to database", "driver", cfg.Database.Driver)

	// Initialize stores
	articleStore := sqlstore.NewArticleStore(db)
	iocStore := sqlstore.NewIOCStore(db)
	tagStore := sqlstore.NewTagStore(db)
	stateStore := sqlstore.NewSourceStateStore(db)
	tracker := sqlstore.NewStageTracker(db)
	txManager := sqlstore.NewTransactionManager(db)

	if *searchIOC != "" {
		matches, err := service.NewSearchService(iocStore).Search(ctx, *searchIOC, service.DefaultSearchLimit)
		if err != nil {
			logger.Error("ioc search failed", "error", err)
			return exitError
		}
		if err := report.WriteMatches(os.Stdout, *searchIOC, matches); err != nil {
			logger.Error("failed to write search results", "error", err)
			return exitError
		}
		if !stages.Any() {
			return exitOK
		}
	}

	// Kept as a nil interface when disabled so services skip publishing.
	var pub service.Publisher
	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(cfg.RabbitMQ, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			return exitError
		}
		defer rabbitMQ.Close()
		pub = rabbitMQ
	}

	if cfg.Metrics.ListenAddr != "" {
		srv := metrics.NewServer(cfg.Metrics.ListenAddr, logger)
		srv.Start()
		defer func() {
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// Initialize sources
	fetcher := fetch.NewClient(cfg.Fetch, logger)
	registry := source.NewRegistry()
	registry.Register(config.SourceRSS, rss.New(fetcher, logger))
	registry.Register(config.SourceWeb, web.New(fetcher, logger))

	ollama, err := summarizer.New(cfg.Analyzer, nil, logger)
	if err != nil {
		logger.Error("failed to create summarizer", "error", err)
		return exitError
	}

	writer, err := report.NewWriter(cfg.Reporting.Format, cfg.Reporting.OutputDirectory)
	if err != nil {
		logger.Error("invalid report format", "error", err)
		return exitUsage
	}

	ingestService := service.NewIngestService(
		registry,
		ioc.NewExtractor(),
		articleStore,
		iocStore,
		tagStore,
		stateStore,
		txManager,
		pub,
		logger,
		cfg,
	)
	analyzeService := service.NewAnalyzeService(tracker, iocStore, tagStore, ollama, pub, logger, cfg.Analyzer.BatchSize)
	reportService := service.NewReportService(tracker, iocStore, tagStore, ollama, writer, logger, cfg.Reporting)

	pipeline := service.NewPipeline(ingestService, analyzeService, reportService, stages, logger)

	if *interval > 0 {
		logger.Info("starting prism in watch mode",
			"sources", len(cfg.Sources),
			"interval", *interval,
		)
		sched := scheduler.NewScheduler(pipeline, *interval, *runTimeout, logger)
		if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("scheduler error", "error", err)
			return exitError
		}
		return exitOK
	}

	result, err := pipeline.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("run interrupted", "error", err)
			return exitOK
		}
		logger.Error("pipeline run failed", "error", err)
		return exitError
	}

	if result.Ingest != nil && result.Ingest.AllFailed() {
		logger.Error("every configured source failed")
		return exitError
	}
	if result.Report != nil && result.Report.Path != "" {
		logger.Info("report written", "path", result.Report.Path)
	}

	return exitOK
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
