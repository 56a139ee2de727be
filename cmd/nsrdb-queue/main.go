package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"gridetl/internal/config"
	"gridetl/internal/gather"
	"gridetl/internal/gather/nsrdb"
	"gridetl/internal/metrics"
	"gridetl/internal/store"
	"gridetl/internal/util"
)

const tool = "nsrdb-queue"

func main() {
	yearsFlag := flag.String("years", "", "years to request, e.g. 2021-2023 (default nsrdb.years)")
	force := flag.Bool("force", false, "re-request files that are already queued or downloaded")
	urlIndex := flag.String("url-index", "download_url_dict.json", "write queued download URLs to this JSON file (empty to skip)")
	flag.Parse()

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.ValidateNSRDB(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	years, err := gather.ParseYears(firstNonEmpty(*yearsFlag, strings.Join(cfg.NSRDB.Years, ",")))
	if err != nil {
		log.Fatalf("invalid years: %v", err)
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

	client := nsrdb.NewClient(cfg.NSRDB.URL, cfg.NSRDB.APIKey, cfg.NSRDB.Email,
		cfg.NSRDB.Attributes, cfg.NSRDB.Interval, cfg.NSRDB.Timeout, logger)
	client.MaxAttempts = cfg.NSRDB.MaxAttempts
	client.RetryDelay = cfg.NSRDB.RetryDelay

	m := metrics.New()
	fetcher := &nsrdb.Fetcher{
		Client:      client,
		Ledger:      ledger,
		Limiter:     util.NewRateLimiter(cfg.NSRDB.RateLimitPerMin),
		RawDir:      cfg.NSRDB.RawDir,
		ZipCacheDir: cfg.NSRDB.ZipCacheDir,
		MaxWorkers:  cfg.NSRDB.MaxWorkers,
		Force:       *force,
		Metrics:     m,
		Log:         logger,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID, err := ledger.StartRun(ctx, tool)
	if err != nil {
		log.Fatalf("failed to record run: %v", err)
	}

	slog.Info("starting "+tool, "years", years, "regions", len(cfg.NSRDB.Regions), "logFile", logFile)
	tally, runErr := fetcher.Queue(ctx, years, cfg.NSRDB.Regions)
	if runErr == nil && *urlIndex != "" {
		if runErr = nsrdb.WriteURLIndex(ctx, ledger, *urlIndex); runErr == nil {
			slog.Info("saved download urls", "path", *urlIndex)
		}
	}

	if err := ledger.FinishRun(context.Background(), runID, tally.Items(), tally.Failures(), runErr); err != nil {
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

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
