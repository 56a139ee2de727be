package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	"gridetl/internal/archive"
	"gridetl/internal/config"
	"gridetl/internal/export"
	"gridetl/internal/gather"
	"gridetl/internal/gather/ercot"
	"gridetl/internal/metrics"
	"gridetl/internal/store"
	"gridetl/internal/util"
)

const tool = "ercot-extract"

func main() {
	dataset := flag.String("dataset", "", "dataset to extract: wind, solar or load")
	dir := flag.String("dir", "", "archive directory (overrides ercot.wind_dir / ercot.solar_dir)")
	flag.Parse()

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.ValidateERCOT(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	cutoff, _ := cfg.ERCOT.CutoffTime()

	logger, logFile, closeLog, err := util.ToolLogger(tool, cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Dir)
	if err != nil {
		log.Fatalf("failed to set up logging: %v", err)
	}
	defer closeLog()
	util.SetDefault(logger)

	m := metrics.New()
	deps := ercot.Deps{
		Store:    store.NewParquetStore(cfg.Storage.DataDir),
		Exporter: &export.Exporter{Dir: cfg.Export.Dir, Formats: cfg.Export.Formats},
		Metrics:  m,
		Log:      logger,
	}

	walker := archive.NewWalker(logger)
	walker.SkipRows = cfg.ERCOT.SkipRows
	walker.MaxRows = cfg.ERCOT.FragmentRows
	walker.MaxWorkers = cfg.ERCOT.MaxWorkers

	var g gather.Gatherer
	switch *dataset {
	case "wind":
		g = ercot.NewWindGatherer(walker, firstNonEmpty(*dir, cfg.ERCOT.WindDir), cutoff, deps)
	case "solar":
		g = ercot.NewSolarGatherer(walker, firstNonEmpty(*dir, cfg.ERCOT.SolarDir), cutoff, deps)
	case "load":
		files := cfg.ERCOT.LoadFiles
		if flag.NArg() > 0 {
			files = flag.Args()
		}
		if len(files) == 0 {
			log.Fatalf("no load files: set ercot.load_files or pass them as arguments")
		}
		g = ercot.NewLoadGatherer(files, deps)
	default:
		log.Fatalf("unknown -dataset %q (want wind, solar or load)", *dataset)
	}

	runs, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open sqlite: %v", err)
	}
	defer runs.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID, err := runs.StartRun(ctx, tool+"/"+g.Name())
	if err != nil {
		log.Fatalf("failed to record run: %v", err)
	}

	slog.Info("starting "+tool, "dataset", g.Name(), "logFile", logFile)
	runErr := g.Run(ctx)

	if err := runs.FinishRun(context.Background(), runID, 1, 0, runErr); err != nil {
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
