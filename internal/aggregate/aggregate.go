// Package aggregate reshapes per-city NSRDB frames into one wide table and
// averages it down to region level.
package aggregate

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"gridetl/internal/domain"
	"gridetl/internal/frame"
)

// Precision is the number of decimals kept in region averages.
const Precision = 3

// CityColumn names a wide-table column: {city}_{feature}.
func CityColumn(city, feature string) string {
	return strings.ToLower(city) + "_" + feature
}

// SplitColumn splits a wide-table column into its city and feature parts at
// the first underscore.
func SplitColumn(col string) (city, feature string, ok bool) {
	return strings.Cut(col, "_")
}

// CityFrame prefixes every column of a per-city frame with the city key.
// The input is not modified.
func CityFrame(city string, f *frame.Frame) *frame.Frame {
	out := f.Clone()
	out.Rename(func(c string) string { return CityColumn(city, c) })
	return out
}

// WideByCity outer-joins per-city frames on the timestamp index, producing
// one column per (city, feature). The result is sorted by time.
func WideByCity(frames ...*frame.Frame) (*frame.Frame, error) {
	wide, err := frame.JoinOuter(frames...)
	if err != nil {
		return nil, fmt.Errorf("joining city frames: %w", err)
	}
	return wide, nil
}

// Years stacks per-year wide frames. Columns are unioned; a column absent in
// some year is NaN for that year's rows.
func Years(frames ...*frame.Frame) (*frame.Frame, error) {
	var columns []string
	seen := make(map[string]bool)
	for _, f := range frames {
		for _, c := range f.Columns {
			if !seen[c] {
				seen[c] = true
				columns = append(columns, c)
			}
		}
	}

	out := frame.New(columns...)
	for _, f := range frames {
		pos := make([]int, len(columns))
		for j, c := range columns {
			pos[j] = f.ColumnIndex(c)
		}
		row := make([]float64, len(columns))
		for i, ts := range f.Index {
			for j, p := range pos {
				if p < 0 {
					row[j] = math.NaN()
				} else {
					row[j] = f.Data[i][p]
				}
			}
			if err := out.Append(ts, row); err != nil {
				return nil, err
			}
		}
	}
	out.SortByIndex()
	return out, nil
}

// ByRegion averages the wide city table per region and feature. For each
// region, in the given order, the columns whose city part belongs to the
// region are grouped by feature (features sorted by name) and averaged per
// row, ignoring NaN cells. Averages are rounded to Precision decimals and
// named {feature}_{region}. Regions with no matching columns contribute
// nothing. The index is copied from wide.
func ByRegion(wide *frame.Frame, regions []domain.Region) *frame.Frame {
	type group struct {
		name string
		cols []int
	}

	var groups []group
	for _, r := range regions {
		members := make(map[string]bool)
		for _, k := range r.CityKeys() {
			members[k] = true
		}

		byFeature := make(map[string][]int)
		for j, col := range wide.Columns {
			city, feature, ok := SplitColumn(col)
			if !ok || !members[city] {
				continue
			}
			byFeature[feature] = append(byFeature[feature], j)
		}

		features := make([]string, 0, len(byFeature))
		for f := range byFeature {
			features = append(features, f)
		}
		sort.Strings(features)

		for _, f := range features {
			groups = append(groups, group{name: f + "_" + r.Name, cols: byFeature[f]})
		}
	}

	names := make([]string, len(groups))
	for k, g := range groups {
		names[k] = g.name
	}
	out := frame.New(names...)
	out.Index = append(out.Index, wide.Index...)
	out.Data = make([][]float64, len(wide.Data))

	buf := make([]float64, 0, 8)
	for i, row := range wide.Data {
		vals := make([]float64, len(groups))
		for k, g := range groups {
			buf = buf[:0]
			for _, j := range g.cols {
				if !math.IsNaN(row[j]) {
					buf = append(buf, row[j])
				}
			}
			vals[k] = Round(meanOrNaN(buf), Precision)
		}
		out.Data[i] = vals
	}
	return out
}

func meanOrNaN(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return stat.Mean(xs, nil)
}

// Round rounds x to the given number of decimals. Ties go to the even
// neighbour, so 2.0625 rounds to 2.062.
func Round(x float64, decimals int) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	p := math.Pow(10, float64(decimals))
	return math.RoundToEven(x*p) / p
}
