// Package archive walks directories of (possibly nested) ZIP archives and
// pulls fixed-shape CSV fragments out of them.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Fragment is the raw content of one CSV file: untyped records with no
// header. Source identifies where it came from, e.g.
// "wind_2021.zip!daily/0101.zip!report.csv".
type Fragment struct {
	Source  string
	Records [][]string
}

// ReadFragment reads CSV records from r, dropping the first skip rows and
// keeping at most limit rows after that (limit <= 0 keeps all). Rows may have
// differing widths.
func ReadFragment(r io.Reader, skip, limit int) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	var records [][]string
	for line := 0; ; line++ {
		if limit > 0 && len(records) >= limit {
			break
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if line < skip {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Walker extracts CSV fragments from every ZIP archive in a directory.
type Walker struct {
	SkipRows   int // rows dropped at the top of each CSV (the header)
	MaxRows    int // rows kept per CSV after skipping; <= 0 keeps all
	MaxWorkers int // top-level archives opened concurrently
	Log        *slog.Logger

	// OnFragment, when set, is called for every CSV read and every CSV that
	// failed to read (err != nil).
	OnFragment func(source string, err error)
}

// NewWalker returns a Walker with the ERCOT report shape: one header row
// followed by 48 data rows.
func NewWalker(log *slog.Logger) *Walker {
	if log == nil {
		log = slog.Default()
	}
	return &Walker{SkipRows: 1, MaxRows: 48, MaxWorkers: 4, Log: log}
}

// Walk reads every *.zip file directly inside dir, in name order, and
// returns the fragments found in them in a deterministic order. CSVs that
// fail to parse are logged and skipped; an archive that cannot be opened is
// an error.
func (w *Walker) Walk(ctx context.Context, dir string) ([]Fragment, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading archive dir %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".zip") {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	results := make([][]Fragment, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(w.MaxWorkers, 1))
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			frags, err := w.WalkFile(path)
			if err != nil {
				return err
			}
			results[i] = frags
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []Fragment
	for _, frags := range results {
		all = append(all, frags...)
	}
	w.logger().Info("archive walk complete", "dir", dir, "archives", len(paths), "fragments", len(all))
	return all, nil
}

// WalkFile reads the fragments inside a single ZIP archive on disk.
func (w *Walker) WalkFile(path string) ([]Fragment, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive %s: %w", path, err)
	}
	defer zr.Close()

	return w.walkZip(&zr.Reader, filepath.Base(path), true)
}

// walkZip visits the entries of an open archive. At the top level a CSV
// entry matches case-insensitively; inside nested archives the ".csv"
// suffix must be lower case.
func (w *Walker) walkZip(zr *zip.Reader, source string, top bool) ([]Fragment, error) {
	var frags []Fragment
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := f.Name
		entrySource := source + "!" + name

		switch {
		case strings.HasSuffix(name, ".zip"):
			nested, err := openNested(f)
			if err != nil {
				w.logger().Warn("failed to open nested archive", "archive", source, "entry", name, "error", err)
				w.report(entrySource, err)
				continue
			}
			inner, err := w.walkZip(nested, entrySource, false)
			if err != nil {
				return nil, err
			}
			frags = append(frags, inner...)

		case isCSV(name, top):
			records, err := w.readEntry(f)
			if err != nil {
				w.logger().Warn("failed to read csv", "file", name, "archive", source, "error", err)
				w.report(entrySource, err)
				continue
			}
			w.report(entrySource, nil)
			frags = append(frags, Fragment{Source: entrySource, Records: records})
		}
	}
	return frags, nil
}

func (w *Walker) readEntry(f *zip.File) ([][]string, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return ReadFragment(rc, w.SkipRows, w.MaxRows)
}

func (w *Walker) logger() *slog.Logger {
	if w.Log == nil {
		return slog.Default()
	}
	return w.Log
}

func (w *Walker) report(source string, err error) {
	if w.OnFragment != nil {
		w.OnFragment(source, err)
	}
}

func isCSV(name string, top bool) bool {
	if top {
		return strings.HasSuffix(strings.ToLower(name), ".csv")
	}
	return strings.HasSuffix(name, ".csv")
}

// openNested reads a ZIP entry fully into memory and opens it as an archive.
func openNested(f *zip.File) (*zip.Reader, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return zip.NewReader(bytes.NewReader(data), int64(len(data)))
}

// FirstEntry returns the contents of the first file in an in-memory ZIP.
// NSRDB download archives hold exactly one CSV.
func FirstEntry(data []byte) (name string, body []byte, err error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", nil, fmt.Errorf("opening zip: %w", err)
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", nil, fmt.Errorf("opening %s: %w", f.Name, err)
		}
		body, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", nil, fmt.Errorf("reading %s: %w", f.Name, err)
		}
		return f.Name, body, nil
	}
	return "", nil, errors.New("zip archive is empty")
}
