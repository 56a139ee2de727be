package timeseries

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridetl/internal/schema"
)

func at(y int, m time.Month, d, h int) time.Time {
	return time.Date(y, m, d, h, 0, 0, 0, time.UTC)
}

func TestDateHour(t *testing.T) {
	tests := []struct {
		date, hour string
		want       time.Time
	}{
		{"01/01/2022", "1", at(2022, 1, 1, 1)},
		{"1/1/2022", "0", at(2022, 1, 1, 0)},
		{"12/31/2022", "24", at(2023, 1, 1, 0)},
		{"02/28/2023", "24", at(2023, 3, 1, 0)},
		{"03/15/2021", "13.0", at(2021, 3, 15, 13)},
		{"03/15/2021", "07:00", at(2021, 3, 15, 7)},
		{"03/15/2021", "24:00", at(2021, 3, 16, 0)},
	}
	for _, tc := range tests {
		got, err := DateHour(tc.date, tc.hour)
		require.NoError(t, err, "%s %s", tc.date, tc.hour)
		assert.True(t, got.Equal(tc.want), "DateHour(%q, %q) = %v, want %v", tc.date, tc.hour, got, tc.want)
	}
}

func TestDateHourInvalid(t *testing.T) {
	for _, tc := range [][2]string{
		{"2022-01-01", "1"},
		{"01/01/2022", "25"},
		{"01/01/2022", "-1"},
		{"01/01/2022", "noon"},
		{"01/01/2022", "12:75"},
	} {
		_, err := DateHour(tc[0], tc[1])
		assert.ErrorIs(t, err, ErrTimestamp, "%v", tc)
	}
}

func TestHourEnding(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"01/01/2022 01:00", at(2022, 1, 1, 0)},
		{"01/01/2022 24:00", at(2022, 1, 1, 23)},
		{"12/31/2022 24:00", at(2022, 12, 31, 23)},
		{"01/01/2022 24:00:00", at(2022, 1, 1, 23)},
		{"2022-06-01 13:00", at(2022, 6, 1, 12)},
		{"2022-06-01 13:00:00", at(2022, 6, 1, 12)},
		{"1/2/2022 1:00", at(2022, 1, 2, 0)},
		{"11/06/2022 02:00 DST", at(2022, 11, 6, 1)},
	}
	for _, tc := range tests {
		got, err := HourEnding(tc.in)
		require.NoError(t, err, tc.in)
		assert.True(t, got.Equal(tc.want), "HourEnding(%q) = %v, want %v", tc.in, got, tc.want)
	}

	_, err := HourEnding("yesterday")
	assert.ErrorIs(t, err, ErrTimestamp)
}

func TestParseValue(t *testing.T) {
	v, err := ParseValue("1,234.5")
	require.NoError(t, err)
	assert.Equal(t, 1234.5, v)

	v, err = ParseValue("  ")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(v))

	_, err = ParseValue("abc")
	assert.Error(t, err)
}

func TestNormalizeDateHour(t *testing.T) {
	tbl := &schema.Table{
		Columns: []string{"date", "hour", "wind_system", "wind_coast"},
		Rows: [][]string{
			{"01/02/2022", "1", "300", "30"},
			{"01/01/2022", "24", "200", "20"},
			{"01/01/2022", "23", "100", ""},
		},
	}
	f, err := Normalize(tbl)
	require.NoError(t, err)

	assert.Equal(t, []string{"wind_system", "wind_coast"}, f.Columns)
	require.Equal(t, 3, f.Len())
	assert.True(t, f.Index[0].Equal(at(2022, 1, 1, 23)))
	assert.True(t, f.Index[1].Equal(at(2022, 1, 2, 0)))
	assert.True(t, f.Index[2].Equal(at(2022, 1, 2, 1)))
	assert.Equal(t, 200.0, f.Data[1][0])
	assert.True(t, math.IsNaN(f.Data[0][1]))
}

func TestNormalizeLoad(t *testing.T) {
	tbl := &schema.Table{
		Columns: schema.LoadLayout.Kept(),
		Rows: [][]string{
			{"01/01/2022 24:00", "1", "2", "3", "4", "5", "6", "7", "8", "36"},
			{"01/01/2022 01:00", "1", "2", "3", "4", "5", "6", "7", "8", "36"},
		},
	}
	f, err := Normalize(tbl)
	require.NoError(t, err)
	assert.Len(t, f.Columns, 9)
	assert.True(t, f.Index[0].Equal(at(2022, 1, 1, 0)))
	assert.True(t, f.Index[1].Equal(at(2022, 1, 1, 23)))

	sys, ok := f.Column("system")
	require.True(t, ok)
	assert.Equal(t, []float64{36, 36}, sys)
}

func TestNormalizeErrors(t *testing.T) {
	_, err := Normalize(&schema.Table{Columns: []string{"a"}, Rows: [][]string{{"1"}}})
	assert.Error(t, err)

	_, err = Normalize(&schema.Table{
		Columns: []string{"date", "hour", "v"},
		Rows:    [][]string{{"01/01/2022", "1", "oops"}},
	})
	assert.Error(t, err)
}

func TestNSRDBFrame(t *testing.T) {
	file := &schema.NSRDBFile{
		Features: []string{"ghi", "dni"},
		Records: []schema.NSRDBRecord{
			{Year: 2022, Month: 1, Day: 1, Hour: 1, GHI: 5, DNI: 6},
			{Year: 2022, Month: 1, Day: 1, Hour: 0, GHI: 1, DNI: 2},
		},
	}
	f, err := NSRDBFrame(file)
	require.NoError(t, err)
	assert.True(t, f.Index[0].Equal(at(2022, 1, 1, 0)))
	assert.Equal(t, []float64{5, 6}, f.Data[1])
}

func TestCutoff(t *testing.T) {
	tbl := &schema.Table{
		Columns: []string{"date", "hour", "v"},
		Rows: [][]string{
			{"12/31/2023", "23", "1"},
			{"12/31/2023", "24", "2"},
		},
	}
	f, err := Normalize(tbl)
	require.NoError(t, err)
	cut := f.Until(DefaultCutoff)
	require.Equal(t, 1, cut.Len())
	assert.Equal(t, 1.0, cut.Data[0][0])
}
