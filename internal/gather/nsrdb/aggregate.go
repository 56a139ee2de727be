package nsrdb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gridetl/internal/aggregate"
	"gridetl/internal/domain"
	"gridetl/internal/export"
	"gridetl/internal/frame"
	"gridetl/internal/gather"
	"gridetl/internal/metrics"
	"gridetl/internal/store"
)

var _ gather.Gatherer = (*AggregateGatherer)(nil)

// AggregateGatherer turns the raw per-city CSVs of the given years into the
// wide city table and the region table, stores both and exports them.
type AggregateGatherer struct {
	rawDir   string
	years    []int
	regions  []domain.Region
	store    store.FrameStore
	exporter *export.Exporter
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// NewAggregateGatherer creates an AggregateGatherer. exporter and m may be
// nil.
func NewAggregateGatherer(rawDir string, years []int, regions []domain.Region, s store.FrameStore, exporter *export.Exporter, m *metrics.Metrics, log *slog.Logger) *AggregateGatherer {
	if log == nil {
		log = slog.Default()
	}
	return &AggregateGatherer{
		rawDir:   rawDir,
		years:    years,
		regions:  regions,
		store:    s,
		exporter: exporter,
		metrics:  m,
		log:      log.With("gatherer", "nsrdb-aggregate"),
	}
}

// Name returns the gatherer identifier.
func (g *AggregateGatherer) Name() string { return "nsrdb-aggregate" }

// Run aggregates every year, then writes the combined tables.
func (g *AggregateGatherer) Run(ctx context.Context) error {
	cities, regions, err := g.Build(ctx)
	if err != nil {
		return err
	}

	for _, out := range []struct {
		ds domain.Dataset
		f  *frame.Frame
	}{
		{domain.DatasetNSRDBCity, cities},
		{domain.DatasetNSRDBRegion, regions},
	} {
		if err := g.store.WriteFrame(ctx, out.ds, out.f); err != nil {
			return fmt.Errorf("storing %s: %w", out.ds, err)
		}
		g.metrics.Rows(string(out.ds), out.f.Len())
		if g.exporter != nil {
			paths, err := g.exporter.Export(string(out.ds), out.f)
			if err != nil {
				return fmt.Errorf("exporting %s: %w", out.ds, err)
			}
			g.log.Info("exported", "dataset", out.ds, "files", paths)
		}
	}
	return nil
}

// Build returns the wide city table and the region table across all years
// without storing them.
func (g *AggregateGatherer) Build(ctx context.Context) (cities, regions *frame.Frame, err error) {
	done := g.metrics.Stage("nsrdb-aggregate")
	defer done()

	perYear := make([]*frame.Frame, 0, len(g.years))
	for _, year := range g.years {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		start := time.Now()
		wide, err := AggregateYear(g.rawDir, year, g.log)
		if err != nil {
			return nil, nil, fmt.Errorf("aggregating %d: %w", year, err)
		}
		g.log.Info("aggregated year", "year", year, "rows", wide.Len(), "columns", len(wide.Columns),
			"elapsed", time.Since(start).Round(time.Millisecond))
		perYear = append(perYear, wide)
	}

	cities, err = aggregate.Years(perYear...)
	if err != nil {
		return nil, nil, err
	}
	regions = aggregate.ByRegion(cities, g.regions)
	g.log.Info("aggregated regions", "rows", regions.Len(), "columns", len(regions.Columns))
	return cities, regions, nil
}
