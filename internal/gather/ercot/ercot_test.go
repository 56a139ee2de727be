package ercot

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"gridetl/internal/archive"
	"gridetl/internal/domain"
	"gridetl/internal/export"
	"gridetl/internal/frame"
	"gridetl/internal/metrics"
	"gridetl/internal/schema"
	"gridetl/internal/timeseries"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// memStore is an in-memory FrameStore.
type memStore struct {
	frames map[domain.Dataset]*frame.Frame
}

func (m *memStore) WriteFrame(_ context.Context, ds domain.Dataset, f *frame.Frame) error {
	if m.frames == nil {
		m.frames = make(map[domain.Dataset]*frame.Frame)
	}
	m.frames[ds] = f
	return nil
}

func (m *memStore) ReadFrame(_ context.Context, ds domain.Dataset, _, _ time.Time) (*frame.Frame, error) {
	return m.frames[ds], nil
}

func (m *memStore) ListYears(context.Context, domain.Dataset) ([]int, error) { return nil, nil }

// reportCSV renders a header plus one row per hour in the given layout width.
// The system column holds 100*day + hour.
func reportCSV(width int, date string, day int, hours ...int) []byte {
	var b strings.Builder
	b.WriteString(strings.Repeat("h,", width-1) + "h\n")
	for _, h := range hours {
		fields := make([]string, width)
		for i := range fields {
			fields[i] = "0"
		}
		fields[0] = date
		fields[1] = fmt.Sprint(h)
		fields[2] = fmt.Sprint(100*day + h)
		b.WriteString(strings.Join(fields, ",") + "\n")
	}
	return []byte(b.String())
}

func zipBytes(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(body)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func writeArchive(t *testing.T, dir, name string, files map[string][]byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), zipBytes(t, files), 0o644))
}

func TestExtractReportsWind(t *testing.T) {
	dir := t.TempDir()
	width := len(schema.WindLayout.Columns)

	// Two daily reports overlap on 01/01 hour 24, nested one level down.
	day1 := zipBytes(t, map[string][]byte{"report.csv": reportCSV(width, "01/01/2022", 1, 23, 24)})
	day2 := zipBytes(t, map[string][]byte{"report.csv": reportCSV(width, "01/01/2022", 1, 24)})
	writeArchive(t, dir, "wind_2022.zip", map[string][]byte{"d1.zip": day1, "d2.zip": day2})

	// A report with the wrong width is skipped, not fatal.
	writeArchive(t, dir, "wind_bad.zip", map[string][]byte{"bad.CSV": reportCSV(5, "01/02/2022", 2, 1)})

	m := metrics.New()
	f, err := ExtractReports(context.Background(), archive.NewWalker(quiet), dir, schema.WindLayout, time.Time{}, m, quiet)
	require.NoError(t, err)

	assert.Equal(t, []string{"wind_system", "wind_coast", "wind_south", "wind_west", "wind_north"}, f.Columns)
	require.Equal(t, 2, f.Len())
	assert.True(t, f.Index[0].Equal(time.Date(2022, 1, 1, 23, 0, 0, 0, time.UTC)))
	assert.True(t, f.Index[1].Equal(time.Date(2022, 1, 2, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 124.0, f.Data[1][0])
}

func TestExtractReportsSolarCutoff(t *testing.T) {
	dir := t.TempDir()
	width := len(schema.SolarLayout.Columns)
	writeArchive(t, dir, "solar.zip", map[string][]byte{
		"a.csv": reportCSV(width, "12/31/2023", 31, 22, 23, 24),
	})

	f, err := ExtractReports(context.Background(), archive.NewWalker(quiet), dir, schema.SolarLayout, timeseries.DefaultCutoff, nil, quiet)
	require.NoError(t, err)
	require.Equal(t, 2, f.Len())
	assert.True(t, f.Index[1].Equal(timeseries.DefaultCutoff))
	assert.Len(t, f.Columns, 7)
}

func TestWindGathererRun(t *testing.T) {
	dir := t.TempDir()
	width := len(schema.WindLayout.Columns)
	writeArchive(t, dir, "w.zip", map[string][]byte{"r.csv": reportCSV(width, "06/01/2022", 1, 1, 2, 3)})

	st := &memStore{}
	exportDir := t.TempDir()
	g := NewWindGatherer(archive.NewWalker(quiet), dir, time.Time{}, Deps{
		Store:    st,
		Exporter: &export.Exporter{Dir: exportDir, Formats: []string{export.FormatCSV}},
		Log:      quiet,
	})
	assert.Equal(t, "ercot-wind", g.Name())
	require.NoError(t, g.Run(context.Background()))

	got := st.frames[domain.DatasetWind]
	require.NotNil(t, got)
	assert.Equal(t, 3, got.Len())
	assert.FileExists(t, filepath.Join(exportDir, "ercot-wind.csv"))
}

func TestSolarGathererMissingDir(t *testing.T) {
	g := NewSolarGatherer(archive.NewWalker(quiet), filepath.Join(t.TempDir(), "nope"), time.Time{}, Deps{Store: &memStore{}, Log: quiet})
	assert.Error(t, g.Run(context.Background()))
}

const loadCSV = `Hour Ending,COAST,EAST,FWEST,NORTH,NCENT,SOUTH,SCENT,WEST,ERCOT
01/01/2022 01:00,"10,000.5",2,3,4,5,6,7,8,"40,000"
01/01/2022 24:00,11,2,3,4,5,6,7,8,41
`

func TestExtractLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "native_load_2022.csv")
	require.NoError(t, os.WriteFile(path, []byte(loadCSV), 0o644))

	f, err := ExtractLoad(context.Background(), []string{path})
	require.NoError(t, err)
	assert.Equal(t, schema.LoadLayout.Kept()[1:], f.Columns)
	require.Equal(t, 2, f.Len())
	assert.True(t, f.Index[0].Equal(time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, f.Index[1].Equal(time.Date(2022, 1, 1, 23, 0, 0, 0, time.UTC)))
	assert.Equal(t, 10000.5, f.Data[0][0])
	assert.Equal(t, 40000.0, f.Data[0][8])
}

func TestExtractLoadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "native_load_2023.xlsx")
	x := excelize.NewFile()
	header := []any{"Hour Ending", "COAST", "EAST", "FWEST", "NORTH", "NCENT", "SOUTH", "SCENT", "WEST", "ERCOT"}
	row := []any{"03/01/2023 05:00", 1, 2, 3, 4, 5, 6, 7, 8, 36}
	require.NoError(t, x.SetSheetRow("Sheet1", "A1", &header))
	require.NoError(t, x.SetSheetRow("Sheet1", "A2", &row))
	require.NoError(t, x.SaveAs(path))
	require.NoError(t, x.Close())

	f, err := ExtractLoad(context.Background(), []string{path})
	require.NoError(t, err)
	require.Equal(t, 1, f.Len())
	assert.True(t, f.Index[0].Equal(time.Date(2023, 3, 1, 4, 0, 0, 0, time.UTC)))
	sys, ok := f.Column("system")
	require.True(t, ok)
	assert.Equal(t, []float64{36}, sys)
}

func TestLoadGathererRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "load.csv")
	require.NoError(t, os.WriteFile(path, []byte(loadCSV), 0o644))

	st := &memStore{}
	g := NewLoadGatherer([]string{path}, Deps{Store: st, Metrics: metrics.New(), Log: quiet})
	require.NoError(t, g.Run(context.Background()))
	assert.Equal(t, 2, st.frames[domain.DatasetLoad].Len())

	bad := NewLoadGatherer([]string{filepath.Join(t.TempDir(), "missing.csv")}, Deps{Store: st, Log: quiet})
	assert.Error(t, bad.Run(context.Background()))
}
