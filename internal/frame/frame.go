// Package frame provides the hourly, time-indexed table that every stage of
// the pipeline produces and consumes.
package frame

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

var (
	// ErrDuplicateColumn is returned when a join would produce two columns
	// with the same name.
	ErrDuplicateColumn = errors.New("duplicate column")
	// ErrDuplicateIndex is returned when a join input repeats a timestamp.
	ErrDuplicateIndex = errors.New("duplicate index timestamp")
	// ErrShape is returned when rows and columns disagree.
	ErrShape = errors.New("shape mismatch")
)

// Frame is a table of float64 values indexed by hour. Data is row-major:
// Data[i] holds the values for Index[i], one per column. Missing cells are NaN.
type Frame struct {
	Index   []time.Time
	Columns []string
	Data    [][]float64
}

// New returns an empty frame with the given columns.
func New(columns ...string) *Frame {
	return &Frame{Columns: append([]string(nil), columns...)}
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.Index) }

// Append adds a row. The row is copied.
func (f *Frame) Append(ts time.Time, values []float64) error {
	if len(values) != len(f.Columns) {
		return fmt.Errorf("appending row at %s: %d values for %d columns: %w",
			ts.Format(time.DateTime), len(values), len(f.Columns), ErrShape)
	}
	f.Index = append(f.Index, ts)
	f.Data = append(f.Data, append([]float64(nil), values...))
	return nil
}

// ColumnIndex returns the position of name, or -1.
func (f *Frame) ColumnIndex(name string) int {
	for i, c := range f.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns a copy of the named column's values.
func (f *Frame) Column(name string) ([]float64, bool) {
	j := f.ColumnIndex(name)
	if j < 0 {
		return nil, false
	}
	out := make([]float64, len(f.Data))
	for i, row := range f.Data {
		out[i] = row[j]
	}
	return out, true
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	out := &Frame{
		Index:   append([]time.Time(nil), f.Index...),
		Columns: append([]string(nil), f.Columns...),
		Data:    make([][]float64, len(f.Data)),
	}
	for i, row := range f.Data {
		out.Data[i] = append([]float64(nil), row...)
	}
	return out
}

// SortByIndex orders rows by timestamp. Rows with equal timestamps keep
// their relative order.
func (f *Frame) SortByIndex() {
	sort.Stable(byIndex{f})
}

type byIndex struct{ f *Frame }

func (b byIndex) Len() int           { return len(b.f.Index) }
func (b byIndex) Less(i, j int) bool { return b.f.Index[i].Before(b.f.Index[j]) }
func (b byIndex) Swap(i, j int) {
	b.f.Index[i], b.f.Index[j] = b.f.Index[j], b.f.Index[i]
	b.f.Data[i], b.f.Data[j] = b.f.Data[j], b.f.Data[i]
}

// Filter returns a new frame holding the rows whose timestamp satisfies keep.
func (f *Frame) Filter(keep func(time.Time) bool) *Frame {
	out := New(f.Columns...)
	for i, ts := range f.Index {
		if keep(ts) {
			out.Index = append(out.Index, ts)
			out.Data = append(out.Data, append([]float64(nil), f.Data[i]...))
		}
	}
	return out
}

// Until returns the rows at or before cutoff.
func (f *Frame) Until(cutoff time.Time) *Frame {
	return f.Filter(func(ts time.Time) bool { return !ts.After(cutoff) })
}

// Select returns a new frame with only the named columns, in the given order.
func (f *Frame) Select(names ...string) (*Frame, error) {
	idx := make([]int, len(names))
	for k, name := range names {
		j := f.ColumnIndex(name)
		if j < 0 {
			return nil, fmt.Errorf("selecting column %q: not found", name)
		}
		idx[k] = j
	}
	out := New(names...)
	out.Index = append([]time.Time(nil), f.Index...)
	out.Data = make([][]float64, len(f.Data))
	for i, row := range f.Data {
		sel := make([]float64, len(idx))
		for k, j := range idx {
			sel[k] = row[j]
		}
		out.Data[i] = sel
	}
	return out, nil
}

// Rename applies fn to every column name in place.
func (f *Frame) Rename(fn func(string) string) {
	for i, c := range f.Columns {
		f.Columns[i] = fn(c)
	}
}

// Concat stacks frames row-wise. All frames must share the same columns in
// the same order. The result is not sorted.
func Concat(frames ...*Frame) (*Frame, error) {
	if len(frames) == 0 {
		return New(), nil
	}
	out := New(frames[0].Columns...)
	for _, fr := range frames {
		if !sameColumns(out.Columns, fr.Columns) {
			return nil, fmt.Errorf("concat: columns %v vs %v: %w", out.Columns, fr.Columns, ErrShape)
		}
		for i, ts := range fr.Index {
			out.Index = append(out.Index, ts)
			out.Data = append(out.Data, append([]float64(nil), fr.Data[i]...))
		}
	}
	return out, nil
}

// JoinOuter places frames side by side, aligned on timestamp. Timestamps
// missing from a frame yield NaN in its columns. The result is sorted.
func JoinOuter(frames ...*Frame) (*Frame, error) {
	var columns []string
	seenCol := make(map[string]bool)
	for _, fr := range frames {
		for _, c := range fr.Columns {
			if seenCol[c] {
				return nil, fmt.Errorf("join: column %q: %w", c, ErrDuplicateColumn)
			}
			seenCol[c] = true
			columns = append(columns, c)
		}
	}

	rows := make(map[int64][]float64)
	var order []time.Time
	offset := 0
	for _, fr := range frames {
		seenTS := make(map[int64]bool, fr.Len())
		for i, ts := range fr.Index {
			key := ts.UnixNano()
			if seenTS[key] {
				return nil, fmt.Errorf("join: %s: %w", ts.Format(time.DateTime), ErrDuplicateIndex)
			}
			seenTS[key] = true

			row, ok := rows[key]
			if !ok {
				row = nanRow(len(columns))
				rows[key] = row
				order = append(order, ts)
			}
			copy(row[offset:], fr.Data[i])
		}
		offset += len(fr.Columns)
	}

	out := New(columns...)
	sort.Slice(order, func(i, j int) bool { return order[i].Before(order[j]) })
	for _, ts := range order {
		out.Index = append(out.Index, ts)
		out.Data = append(out.Data, rows[ts.UnixNano()])
	}
	return out, nil
}

// Equal reports whether two frames hold the same index, columns and values.
// NaN cells compare equal to each other.
func Equal(a, b *Frame) bool {
	if !sameColumns(a.Columns, b.Columns) || a.Len() != b.Len() {
		return false
	}
	for i := range a.Index {
		if !a.Index[i].Equal(b.Index[i]) {
			return false
		}
		for j := range a.Data[i] {
			x, y := a.Data[i][j], b.Data[i][j]
			if math.IsNaN(x) && math.IsNaN(y) {
				continue
			}
			if x != y {
				return false
			}
		}
	}
	return true
}

func nanRow(n int) []float64 {
	row := make([]float64, n)
	for i := range row {
		row[i] = math.NaN()
	}
	return row
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
