package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"gridetl/internal/config"
	"gridetl/internal/gather/nsrdb"
	"gridetl/internal/metrics"
	"gridetl/internal/store"
	"gridetl/internal/util"
)

const tool = "nsrdb-download"

func main() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, logFile, closeLog, err := util.ToolLogger(tool, cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Dir)
	if err != nil {
		log.Fatalf("failed to set up logging: %v", err)
	}
	defer closeLog()
	util.SetDefault(logger)

	ledger, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open sqlite: %v", err)
	}
	defer ledger.Close()

	// Downloads only need the published URLs, not the API key.
	client := nsrdb.NewClient(cfg.NSRDB.URL, "", "", "", cfg.NSRDB.Interval, cfg.NSRDB.Timeout, logger)
	client.MaxAttempts = cfg.NSRDB.MaxAttempts
	client.RetryDelay = cfg.NSRDB.RetryDelay

	m := metrics.New()
	fetcher := &nsrdb.Fetcher{
		Client:     client,
		Ledger:     ledger,
		Limiter:    util.NewRateLimiter(cfg.NSRDB.RateLimitPerMin),
		RawDir:     cfg.NSRDB.RawDir,
		MaxWorkers: cfg.NSRDB.MaxWorkers,
		Metrics:    m,
		Log:        logger,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID, err := ledger.StartRun(ctx, tool)
	if err != nil {
		log.Fatalf("failed to record run: %v", err)
	}

	slog.Info("starting "+tool, "rawDir", cfg.NSRDB.RawDir, "workers", cfg.NSRDB.MaxWorkers, "logFile", logFile)
	tally, runErr := fetcher.DownloadPending(ctx)

	items, failures := 0, 0
	if tally != nil {
		items, failures = tally.Items(), tally.Failures()
	}
	if err := ledger.FinishRun(context.Background(), runID, items, failures, runErr); err != nil {
		slog.Warn("failed to finish run record", "error", err)
	}
	m.Finish(tool, runErr)
	if err := m.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
		slog.Warn("failed to write metrics", "error", err)
	}
	if runErr != nil {
		log.Fatalf("%s failed: %v", tool, runErr)
	}
}
