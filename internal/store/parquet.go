package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"gridetl/internal/domain"
	"gridetl/internal/frame"
)

// Compile-time interface check.
var _ FrameStore = (*ParquetStore)(nil)

// ParquetStore implements FrameStore using Parquet files on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record type (on-disk schema)
// ---------------------------------------------------------------------------

// HourlyRecord is one cell of an hourly frame in long format.
type HourlyRecord struct {
	Dataset   string  `parquet:"dataset"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Column    string  `parquet:"column"`
	Position  int32   `parquet:"position"` // column position in the written frame
	Value     float64 `parquet:"value"`
}

// ---------------------------------------------------------------------------
// FrameStore implementation
// ---------------------------------------------------------------------------

// WriteFrame writes a frame to Parquet files organized by dataset and year:
//
//	<DataDir>/<dataset>/<YYYY>.parquet
//
// Existing files are merged; incoming cells win on (column, timestamp).
func (s *ParquetStore) WriteFrame(_ context.Context, ds domain.Dataset, f *frame.Frame) error {
	if f.Len() == 0 {
		return nil
	}

	groups := make(map[int][]HourlyRecord)
	for i, ts := range f.Index {
		year := ts.Year()
		for j, col := range f.Columns {
			groups[year] = append(groups[year], HourlyRecord{
				Dataset:   string(ds),
				Timestamp: ts.UnixMilli(),
				Column:    col,
				Position:  int32(j),
				Value:     f.Data[i][j],
			})
		}
	}

	for year, records := range groups {
		path := s.framePath(ds, year)

		existing, err := readParquetFile[HourlyRecord](path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("reading %s/%d: %w", ds, year, err)
		}
		merged := mergeHourlyRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing %s/%d: %w", ds, year, err)
		}
	}
	return nil
}

// ReadFrame reads the dataset's rows within [start, end]. Columns come back
// in their written order; cells never written are NaN.
func (s *ParquetStore) ReadFrame(_ context.Context, ds domain.Dataset, start, end time.Time) (*frame.Frame, error) {
	var records []HourlyRecord
	for year := start.Year(); year <= end.Year(); year++ {
		rows, err := readParquetFile[HourlyRecord](s.framePath(ds, year))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("reading %s/%d: %w", ds, year, err)
		}
		lo, hi := start.UnixMilli(), end.UnixMilli()
		for _, r := range rows {
			if r.Timestamp >= lo && r.Timestamp <= hi {
				records = append(records, r)
			}
		}
	}
	return recordsToFrame(records), nil
}

// ListYears lists the years that have a file for the dataset.
func (s *ParquetStore) ListYears(_ context.Context, ds domain.Dataset) ([]int, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, string(ds)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var years []int
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".parquet")
		if e.IsDir() || !ok {
			continue
		}
		if y, err := strconv.Atoi(name); err == nil {
			years = append(years, y)
		}
	}
	sort.Ints(years)
	return years, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// framePath returns the filesystem path for a dataset's year file.
func (s *ParquetStore) framePath(ds domain.Dataset, year int) string {
	return filepath.Join(s.DataDir, string(ds), strconv.Itoa(year)+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeHourlyRecords deduplicates records by (column, timestamp), preferring
// new records over existing ones. Results are sorted by timestamp, then
// position.
func mergeHourlyRecords(existing, incoming []HourlyRecord) []HourlyRecord {
	type key struct {
		column string
		ts     int64
	}
	seen := make(map[key]HourlyRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Column, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Column, r.Timestamp}] = r
	}

	merged := make([]HourlyRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Timestamp != merged[j].Timestamp {
			return merged[i].Timestamp < merged[j].Timestamp
		}
		if merged[i].Position != merged[j].Position {
			return merged[i].Position < merged[j].Position
		}
		return merged[i].Column < merged[j].Column
	})
	return merged
}

// recordsToFrame pivots long records back into a wide frame.
func recordsToFrame(records []HourlyRecord) *frame.Frame {
	pos := make(map[string]int32)
	for _, r := range records {
		if p, ok := pos[r.Column]; !ok || r.Position < p {
			pos[r.Column] = r.Position
		}
	}
	columns := make([]string, 0, len(pos))
	for c := range pos {
		columns = append(columns, c)
	}
	sort.Slice(columns, func(i, j int) bool {
		if pos[columns[i]] != pos[columns[j]] {
			return pos[columns[i]] < pos[columns[j]]
		}
		return columns[i] < columns[j]
	})

	out := frame.New(columns...)
	colIdx := make(map[string]int, len(columns))
	for j, c := range columns {
		colIdx[c] = j
	}

	rowIdx := make(map[int64]int)
	for _, r := range records {
		i, ok := rowIdx[r.Timestamp]
		if !ok {
			i = len(out.Index)
			rowIdx[r.Timestamp] = i
			row := make([]float64, len(columns))
			for k := range row {
				row[k] = math.NaN()
			}
			out.Index = append(out.Index, time.UnixMilli(r.Timestamp).UTC())
			out.Data = append(out.Data, row)
		}
		out.Data[i][colIdx[r.Column]] = r.Value
	}
	out.SortByIndex()
	return out
}
