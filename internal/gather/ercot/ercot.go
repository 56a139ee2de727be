// Package ercot extracts ERCOT wind and solar generation reports and native
// load exports into hourly frames.
package ercot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"gridetl/internal/archive"
	"gridetl/internal/domain"
	"gridetl/internal/export"
	"gridetl/internal/frame"
	"gridetl/internal/gather"
	"gridetl/internal/metrics"
	"gridetl/internal/schema"
	"gridetl/internal/store"
	"gridetl/internal/timeseries"
)

// ---------------------------------------------------------------------------
// Compile-time interface checks
// ---------------------------------------------------------------------------

var _ gather.Gatherer = (*WindGatherer)(nil)
var _ gather.Gatherer = (*SolarGatherer)(nil)
var _ gather.Gatherer = (*LoadGatherer)(nil)

// Deps are the collaborators shared by the ERCOT gatherers. Exporter and
// Metrics may be nil.
type Deps struct {
	Store    store.FrameStore
	Exporter *export.Exporter
	Metrics  *metrics.Metrics
	Log      *slog.Logger
}

// reportGatherer runs an extraction and persists its frame.
type reportGatherer struct {
	dataset domain.Dataset
	deps    Deps
	log     *slog.Logger
	extract func(ctx context.Context) (*frame.Frame, error)
}

func newReportGatherer(ds domain.Dataset, deps Deps) reportGatherer {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return reportGatherer{
		dataset: ds,
		deps:    deps,
		log:     log.With("gatherer", string(ds)),
	}
}

// Name returns the gatherer identifier.
func (g *reportGatherer) Name() string { return string(g.dataset) }

// Run extracts the dataset, merges it into the frame store and writes the
// configured exports.
func (g *reportGatherer) Run(ctx context.Context) error {
	start := time.Now()
	done := g.deps.Metrics.Stage(string(g.dataset))
	defer done()

	f, err := g.extract(ctx)
	if err != nil {
		return fmt.Errorf("extracting %s: %w", g.dataset, err)
	}
	if f.Len() == 0 {
		g.log.Warn("no rows extracted")
		return nil
	}

	if err := g.deps.Store.WriteFrame(ctx, g.dataset, f); err != nil {
		return fmt.Errorf("storing %s: %w", g.dataset, err)
	}
	g.deps.Metrics.Rows(string(g.dataset), f.Len())

	if g.deps.Exporter != nil {
		paths, err := g.deps.Exporter.Export(string(g.dataset), f)
		if err != nil {
			return fmt.Errorf("exporting %s: %w", g.dataset, err)
		}
		g.log.Info("exported", "files", paths)
	}

	g.log.Info("complete",
		"rows", f.Len(),
		"columns", len(f.Columns),
		"from", f.Index[0].Format(time.DateTime),
		"to", f.Index[f.Len()-1].Format(time.DateTime),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

// ---------------------------------------------------------------------------
// WindGatherer / SolarGatherer: zipped daily generation reports.
// ---------------------------------------------------------------------------

// WindGatherer compiles the ERCOT wind generation reports found in a
// directory of ZIP archives.
type WindGatherer struct{ reportGatherer }

// NewWindGatherer creates a WindGatherer reading archives from dir. Rows
// after cutoff are dropped unless cutoff is zero.
func NewWindGatherer(w *archive.Walker, dir string, cutoff time.Time, deps Deps) *WindGatherer {
	g := &WindGatherer{newReportGatherer(domain.DatasetWind, deps)}
	g.extract = func(ctx context.Context) (*frame.Frame, error) {
		return ExtractReports(ctx, w, dir, schema.WindLayout, cutoff, g.deps.Metrics, g.log)
	}
	return g
}

// SolarGatherer compiles the ERCOT solar generation reports found in a
// directory of ZIP archives.
type SolarGatherer struct{ reportGatherer }

// NewSolarGatherer creates a SolarGatherer reading archives from dir.
func NewSolarGatherer(w *archive.Walker, dir string, cutoff time.Time, deps Deps) *SolarGatherer {
	g := &SolarGatherer{newReportGatherer(domain.DatasetSolar, deps)}
	g.extract = func(ctx context.Context) (*frame.Frame, error) {
		return ExtractReports(ctx, w, dir, schema.SolarLayout, cutoff, g.deps.Metrics, g.log)
	}
	return g
}

// ExtractReports walks the archives in dir, maps every fragment with layout,
// builds the hourly index and applies cutoff. Fragments whose width does not
// match the layout are logged and skipped.
func ExtractReports(ctx context.Context, w *archive.Walker, dir string, layout schema.Layout, cutoff time.Time, m *metrics.Metrics, log *slog.Logger) (*frame.Frame, error) {
	if log == nil {
		log = slog.Default()
	}
	frags, err := w.Walk(ctx, dir)
	if err != nil {
		return nil, err
	}

	kept := frags[:0]
	for _, fr := range frags {
		if err := layout.CheckFragment(fr); err != nil {
			log.Warn("skipping fragment", "source", fr.Source, "error", err)
			m.Fragment(string(layout.Dataset), false)
			continue
		}
		m.Fragment(string(layout.Dataset), true)
		kept = append(kept, fr)
	}

	tbl, err := layout.Apply(kept)
	if err != nil {
		return nil, err
	}
	f, err := timeseries.Normalize(tbl)
	if err != nil {
		return nil, err
	}
	if !cutoff.IsZero() {
		f = f.Until(cutoff)
	}
	log.Info("compiled reports", "fragments", len(kept), "rows", f.Len())
	return f, nil
}

// ---------------------------------------------------------------------------
// LoadGatherer: native load exports (CSV or XLSX).
// ---------------------------------------------------------------------------

// LoadGatherer compiles ERCOT hourly native load exports.
type LoadGatherer struct{ reportGatherer }

// NewLoadGatherer creates a LoadGatherer for the given export files.
func NewLoadGatherer(paths []string, deps Deps) *LoadGatherer {
	g := &LoadGatherer{newReportGatherer(domain.DatasetLoad, deps)}
	g.extract = func(ctx context.Context) (*frame.Frame, error) {
		return ExtractLoad(ctx, paths)
	}
	return g
}

// ExtractLoad reads each load export (header row skipped, every row kept),
// maps it to the load layout and shifts the hour-ending timestamps to
// hour-beginning. Files ending in .xlsx are read from their first sheet.
func ExtractLoad(ctx context.Context, paths []string) (*frame.Frame, error) {
	frags := make([]archive.Fragment, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var (
			records [][]string
			err     error
		)
		if strings.EqualFold(filepath.Ext(path), ".xlsx") {
			records, err = readLoadXLSX(path)
		} else {
			records, err = readLoadCSV(path)
		}
		if err != nil {
			return nil, fmt.Errorf("reading load file %s: %w", path, err)
		}
		frags = append(frags, archive.Fragment{Source: filepath.Base(path), Records: records})
	}

	tbl, err := schema.LoadLayout.Apply(frags)
	if err != nil {
		return nil, err
	}
	return timeseries.Normalize(tbl)
}

func readLoadCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return archive.ReadFragment(f, 1, 0)
}

func readLoadXLSX(path string) ([][]string, error) {
	x, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer x.Close()

	sheets := x.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := x.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}

	width := len(schema.LoadLayout.Columns)
	var records [][]string
	for i, row := range rows {
		if i == 0 || len(row) == 0 {
			continue
		}
		// Trailing empty cells are trimmed by GetRows.
		for len(row) < width {
			row = append(row, "")
		}
		records = append(records, row)
	}
	return records, nil
}
