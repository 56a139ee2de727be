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
	"gridetl/internal/export"
	"gridetl/internal/gather"
	"gridetl/internal/gather/nsrdb"
	"gridetl/internal/metrics"
	"gridetl/internal/store"
	"gridetl/internal/util"
)

const tool = "nsrdb-aggregate"

func main() {
	yearsFlag := flag.String("years", "", "years to aggregate, e.g. 2021,2022,2023 (default nsrdb.years)")
	flag.Parse()

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	yearList := *yearsFlag
	if yearList == "" {
		yearList = strings.Join(cfg.NSRDB.Years, ",")
	}
	years, err := gather.ParseYears(yearList)
	if err != nil {
		log.Fatalf("invalid years: %v", err)
	}

	logger, logFile, closeLog, err := util.ToolLogger(tool, cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Dir)
	if err != nil {
		log.Fatalf("failed to set up logging: %v", err)
	}
	defer closeLog()
	util.SetDefault(logger)

	runs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open sqlite: %v", err)
	}
	defer runs.Close()

	m := metrics.New()
	g := nsrdb.NewAggregateGatherer(
		cfg.NSRDB.RawDir,
		years,
		cfg.NSRDB.Regions,
		store.NewParquetStore(cfg.Storage.DataDir),
		&export.Exporter{Dir: cfg.Export.Dir, Formats: cfg.Export.Formats},
		m,
		logger,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID, err := runs.StartRun(ctx, tool)
	if err != nil {
		log.Fatalf("failed to record run: %v", err)
	}

	slog.Info("starting "+tool, "years", years, "logFile", logFile)
	runErr := g.Run(ctx)

	if err := runs.FinishRun(context.Background(), runID, len(years), 0, runErr); err != nil {
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
