// Package schema assigns fixed column layouts to the raw CSV fragments of
// each dataset and discards the columns nobody uses.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"gridetl/internal/archive"
	"gridetl/internal/domain"
)

// Placeholder marks a column that is dropped after mapping.
const Placeholder = "x"

// Well-known column names consumed by the timestamp normalizer.
const (
	ColDate      = "date"
	ColHour      = "hour"
	ColTimestamp = "timestamp"
)

// ErrColumnCount is returned when a fragment's width does not match its layout.
var ErrColumnCount = errors.New("column count mismatch")

// Layout is a position-based column schema for one dataset.
type Layout struct {
	Dataset        domain.Dataset
	Columns        []string
	DropDuplicates bool
}

// Table holds mapped rows as strings, before any parsing.
type Table struct {
	Columns []string
	Rows    [][]string
}

// xs returns n placeholders.
func xs(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = Placeholder
	}
	return out
}

func cols(parts ...[]string) []string {
	var out []string
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func one(name string) []string { return []string{name} }

// WindLayout is the 27-column ERCOT wind generation report.
var WindLayout = Layout{
	Dataset: domain.DatasetWind,
	Columns: cols(
		one(ColDate), one(ColHour), one("wind_system"), xs(7),
		one("wind_coast"), xs(3),
		one("wind_south"), xs(3),
		one("wind_west"), xs(3),
		one("wind_north"), xs(4),
	),
	DropDuplicates: true,
}

// SolarLayout is the 31-column ERCOT solar generation report.
var SolarLayout = Layout{
	Dataset: domain.DatasetSolar,
	Columns: cols(
		one(ColDate), one(ColHour), one("solar_system"), xs(3),
		one("solar_centerwest"), xs(3),
		one("solar_northwest"), xs(3),
		one("solar_farwest"), xs(3),
		one("solar_fareast"), xs(3),
		one("solar_southeast"), xs(3),
		one("solar_centereast"), xs(4),
	),
}

// LoadLayout is the ERCOT native load by weather zone export.
var LoadLayout = Layout{
	Dataset: domain.DatasetLoad,
	Columns: []string{
		ColTimestamp, "coast", "east", "farwest", "north",
		"northcentral", "south", "southcentral", "west", "system",
	},
}

// LayoutFor returns the ERCOT layout for a dataset.
func LayoutFor(ds domain.Dataset) (Layout, error) {
	switch ds {
	case domain.DatasetWind:
		return WindLayout, nil
	case domain.DatasetSolar:
		return SolarLayout, nil
	case domain.DatasetLoad:
		return LoadLayout, nil
	}
	return Layout{}, fmt.Errorf("no column layout for dataset %q", ds)
}

// Kept returns the non-placeholder column names in order.
func (l Layout) Kept() []string {
	var out []string
	for _, c := range l.Columns {
		if c != Placeholder {
			out = append(out, c)
		}
	}
	return out
}

// Apply concatenates the fragments' rows, checks each fragment's width
// against the layout, drops placeholder columns and, if the layout asks for
// it, drops exact duplicate rows keeping the first occurrence.
func (l Layout) Apply(frags []archive.Fragment) (*Table, error) {
	var keep []int
	for i, c := range l.Columns {
		if c != Placeholder {
			keep = append(keep, i)
		}
	}

	t := &Table{Columns: l.Kept()}
	seen := make(map[string]struct{})
	for _, f := range frags {
		for n, rec := range f.Records {
			if len(rec) != len(l.Columns) {
				return nil, fmt.Errorf("%s row %d: %d fields, %s layout has %d: %w",
					f.Source, n+1, len(rec), l.Dataset, len(l.Columns), ErrColumnCount)
			}
			row := make([]string, len(keep))
			for k, i := range keep {
				row[k] = strings.TrimSpace(rec[i])
			}
			if l.DropDuplicates {
				key := strings.Join(row, "\x1f")
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
			}
			t.Rows = append(t.Rows, row)
		}
	}
	return t, nil
}

// CheckFragment reports whether a single fragment fits the layout without
// mapping it.
func (l Layout) CheckFragment(f archive.Fragment) error {
	for n, rec := range f.Records {
		if len(rec) != len(l.Columns) {
			return fmt.Errorf("%s row %d: %d fields, %s layout has %d: %w",
				f.Source, n+1, len(rec), l.Dataset, len(l.Columns), ErrColumnCount)
		}
	}
	return nil
}
