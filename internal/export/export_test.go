package export

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"gridetl/internal/frame"
)

func sample(t *testing.T) *frame.Frame {
	t.Helper()
	f := frame.New("ghi_north", "dni_north")
	base := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.Append(base, []float64{1.5, math.NaN()}))
	require.NoError(t, f.Append(base.Add(time.Hour), []float64{2.5, 4}))
	return f
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "region.csv")
	require.NoError(t, WriteCSV(path, sample(t)))

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	want := "timestamp,ghi_north,dni_north\n" +
		"2022-01-01 00:00:00,1.5,\n" +
		"2022-01-01 01:00:00,2.5,4\n"
	assert.Equal(t, want, string(body))
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.xlsx")
	empty := frame.New("v")
	require.NoError(t, WriteXLSX(path, []Sheet{
		{Name: "nsrdb-region", Frame: sample(t)},
		{Name: "empty", Frame: empty},
	}))

	x, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer x.Close()

	assert.Equal(t, []string{"nsrdb-region", "empty"}, x.GetSheetList())

	rows, err := x.GetRows("nsrdb-region")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"timestamp", "ghi_north", "dni_north"}, rows[0])
	assert.Equal(t, "2022-01-01 01:00:00", rows[2][0])
	assert.Equal(t, "2.5", rows[2][1])

	assert.Error(t, WriteXLSX(path, nil))
}

func TestSummarize(t *testing.T) {
	f := sample(t)
	all := frame.New("nan")
	require.NoError(t, all.Append(time.Unix(0, 0).UTC(), []float64{math.NaN()}))

	s := Summarize(f)
	require.Len(t, s, 2)
	assert.Equal(t, ColumnSummary{Column: "ghi_north", Count: 2, Min: 1.5, Mean: 2, Max: 2.5}, s[0])
	assert.Equal(t, 1, s[1].Count)
	assert.Equal(t, 4.0, s[1].Mean)

	n := Summarize(all)
	assert.Equal(t, 0, n[0].Count)
	assert.True(t, math.IsNaN(n[0].Mean))
}

func TestWriteSummaryPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.pdf")
	require.NoError(t, WriteSummaryPDF(path, "NSRDB regions 2022", sample(t)))

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, len(body) > 4 && string(body[:4]) == "%PDF")
}

func TestExporter(t *testing.T) {
	dir := t.TempDir()
	e := &Exporter{Dir: dir, Formats: []string{FormatCSV, FormatPDF}}

	paths, err := e.Export("ercot-wind", sample(t))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "ercot-wind.csv"),
		filepath.Join(dir, "ercot-wind.pdf"),
	}, paths)

	e.Formats = []string{"parquet"}
	_, err = e.Export("x", sample(t))
	assert.Error(t, err)
}
