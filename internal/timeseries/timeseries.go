// Package timeseries turns the date/hour fields of the ERCOT and NSRDB
// tables into a single hourly time index.
//
// All times are naive wall-clock values carried in UTC. ERCOT reports use
// hour-ending notation (hour 1 covers 00:00-01:00), and the load exports
// write the last hour of a day as "24:00".
package timeseries

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gridetl/internal/frame"
	"gridetl/internal/schema"
)

// DateLayout is the ERCOT report date format. Single-digit months and days
// are accepted as well.
const DateLayout = "1/2/2006"

// DefaultCutoff is the last hour kept for the wind and solar studies.
var DefaultCutoff = time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC)

// ErrTimestamp is returned for any date, hour or timestamp that cannot be
// parsed.
var ErrTimestamp = errors.New("invalid timestamp")

// DateHour combines an ERCOT report date and hour into one timestamp: the
// date's midnight plus hour hours. Hour may be numeric ("1", "24", "1.0") or
// clock notation ("01:00", "24:00"). Hour 24 lands on 00:00 the next day.
func DateHour(date, hour string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(date))
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: %w", date, ErrTimestamp)
	}
	h, err := parseHours(hour)
	if err != nil {
		return time.Time{}, err
	}
	return d.Add(h), nil
}

func parseHours(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if hh, mm, ok := strings.Cut(s, ":"); ok {
		h, err1 := strconv.Atoi(hh)
		m, err2 := strconv.Atoi(mm)
		if err1 != nil || err2 != nil || h < 0 || h > 24 || m < 0 || m > 59 {
			return 0, fmt.Errorf("hour %q: %w", s, ErrTimestamp)
		}
		return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || f > 24 || math.IsNaN(f) {
		return 0, fmt.Errorf("hour %q: %w", s, ErrTimestamp)
	}
	return time.Duration(f * float64(time.Hour)), nil
}

// timestampLayouts are tried in order by ParseTimestamp.
var timestampLayouts = []string{
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"1/2/2006",
	"2006-01-02",
}

// ParseTimestamp parses the timestamp formats found in ERCOT exports. A
// trailing "DST" marker (the repeated hour at the end of daylight saving
// time) is ignored.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSpace(strings.TrimSuffix(s, "DST"))
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("timestamp %q: %w", s, ErrTimestamp)
}

// HourEnding converts an hour-ending load timestamp to the start of the hour
// it covers. "24:00" is read as midnight of the following day, so
// "01/01/2022 24:00" becomes 2022-01-01 23:00 and "01/01/2022 01:00" becomes
// 2022-01-01 00:00.
func HourEnding(s string) (time.Time, error) {
	if strings.Contains(s, "24:00") {
		base, err := ParseTimestamp(strings.ReplaceAll(s, "24:00", "00:00"))
		if err != nil {
			return time.Time{}, err
		}
		return base.AddDate(0, 0, 1).Add(-time.Hour), nil
	}
	t, err := ParseTimestamp(s)
	if err != nil {
		return time.Time{}, err
	}
	return t.Add(-time.Hour), nil
}

// FromParts builds an hourly timestamp from NSRDB's Year/Month/Day/Hour.
func FromParts(year, month, day, hour int) time.Time {
	return time.Date(year, time.Month(month), day, hour, 0, 0, 0, time.UTC)
}

// ParseValue parses a numeric cell. Blank cells and "NaN" become NaN;
// thousands separators are removed.
func ParseValue(s string) (float64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" || strings.EqualFold(s, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// Normalize converts a mapped ERCOT table into a frame. Tables with date and
// hour columns use DateHour; tables with a timestamp column use HourEnding.
// Every other column is parsed as a number. The result is sorted by time.
func Normalize(t *schema.Table) (*frame.Frame, error) {
	dateIdx, hourIdx, tsIdx := -1, -1, -1
	var valueIdx []int
	var valueCols []string
	for i, c := range t.Columns {
		switch c {
		case schema.ColDate:
			dateIdx = i
		case schema.ColHour:
			hourIdx = i
		case schema.ColTimestamp:
			tsIdx = i
		default:
			valueIdx = append(valueIdx, i)
			valueCols = append(valueCols, c)
		}
	}

	var stamp func(row []string) (time.Time, error)
	switch {
	case dateIdx >= 0 && hourIdx >= 0:
		stamp = func(row []string) (time.Time, error) { return DateHour(row[dateIdx], row[hourIdx]) }
	case tsIdx >= 0:
		stamp = func(row []string) (time.Time, error) { return HourEnding(row[tsIdx]) }
	default:
		return nil, fmt.Errorf("table has neither date/hour nor timestamp columns: %v", t.Columns)
	}

	out := frame.New(valueCols...)
	values := make([]float64, len(valueIdx))
	for n, row := range t.Rows {
		ts, err := stamp(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", n+1, err)
		}
		for k, i := range valueIdx {
			v, err := ParseValue(row[i])
			if err != nil {
				return nil, fmt.Errorf("row %d column %s value %q: %w", n+1, t.Columns[i], row[i], err)
			}
			values[k] = v
		}
		if err := out.Append(ts, values); err != nil {
			return nil, err
		}
	}
	out.SortByIndex()
	return out, nil
}

// NSRDBFrame converts decoded NSRDB records into a frame whose columns are the
// file's features. Minute is ignored: hourly downloads always report 0 or 30.
func NSRDBFrame(f *schema.NSRDBFile) (*frame.Frame, error) {
	out := frame.New(f.Features...)
	for _, r := range f.Records {
		if err := out.Append(FromParts(r.Year, r.Month, r.Day, r.Hour), r.Values(f.Features)); err != nil {
			return nil, err
		}
	}
	out.SortByIndex()
	return out, nil
}
