package schema

import (
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridetl/internal/archive"
)

// windRow builds a 27-field wind report row whose kept columns carry
// recognisable values and whose placeholders hold "-1".
func windRow(date string, hour int, base float64) []string {
	row := make([]string, len(WindLayout.Columns))
	for i := range row {
		row[i] = "-1"
	}
	row[0] = date
	row[1] = strconv.Itoa(hour)
	row[2] = strconv.FormatFloat(base, 'f', -1, 64)
	row[10] = "10"
	row[14] = "14"
	row[18] = "18"
	row[22] = "22"
	return row
}

func TestLayoutWidths(t *testing.T) {
	assert.Len(t, WindLayout.Columns, 27)
	assert.Len(t, SolarLayout.Columns, 31)
	assert.Len(t, LoadLayout.Columns, 10)

	assert.Equal(t,
		[]string{"date", "hour", "wind_system", "wind_coast", "wind_south", "wind_west", "wind_north"},
		WindLayout.Kept())
	assert.Equal(t,
		[]string{"date", "hour", "solar_system", "solar_centerwest", "solar_northwest",
			"solar_farwest", "solar_fareast", "solar_southeast", "solar_centereast"},
		SolarLayout.Kept())
	assert.Equal(t, 26, indexOf(SolarLayout.Columns, "solar_centereast"))
}

func indexOf(cols []string, name string) int {
	for i, c := range cols {
		if c == name {
			return i
		}
	}
	return -1
}

func TestApplyWindDropsPlaceholdersAndDuplicates(t *testing.T) {
	frags := []archive.Fragment{
		{Source: "a.csv", Records: [][]string{
			windRow("01/01/2022", 1, 100),
			windRow("01/01/2022", 2, 200),
		}},
		{Source: "b.csv", Records: [][]string{
			windRow("01/01/2022", 2, 200), // repeated across overlapping reports
			windRow("01/01/2022", 3, 300),
		}},
	}

	tbl, err := WindLayout.Apply(frags)
	require.NoError(t, err)
	assert.Equal(t, WindLayout.Kept(), tbl.Columns)
	require.Len(t, tbl.Rows, 3)
	assert.Equal(t, []string{"01/01/2022", "3", "300", "10", "14", "18", "22"}, tbl.Rows[2])
}

func TestApplySolarKeepsDuplicates(t *testing.T) {
	row := make([]string, len(SolarLayout.Columns))
	for i := range row {
		row[i] = "0"
	}
	row[0], row[1] = "06/01/2023", "12"

	tbl, err := SolarLayout.Apply([]archive.Fragment{{Source: "s.csv", Records: [][]string{row, row}}})
	require.NoError(t, err)
	assert.Len(t, tbl.Rows, 2)
}

func TestApplyColumnCountMismatch(t *testing.T) {
	frag := archive.Fragment{Source: "short.csv", Records: [][]string{{"01/01/2022", "1"}}}

	_, err := WindLayout.Apply([]archive.Fragment{frag})
	require.ErrorIs(t, err, ErrColumnCount)
	assert.Contains(t, err.Error(), "short.csv")
	assert.ErrorIs(t, WindLayout.CheckFragment(frag), ErrColumnCount)
}

func TestLayoutFor(t *testing.T) {
	l, err := LayoutFor("ercot-load")
	require.NoError(t, err)
	assert.Equal(t, "timestamp", l.Columns[0])

	_, err = LayoutFor("nsrdb-city")
	assert.Error(t, err)
}

const nsrdbSample = `Source,Location ID,City,State,Country,Latitude,Longitude
NSRDB,123456,-,-,-,30.01,-97.98
Year,Month,Day,Hour,Minute,GHI,DNI,DHI,Solar Zenith Angle,Relative Humidity,Cloud Type
2022,1,1,0,0,0,0,0,161.2,78.5,0
2022,1,1,12,0,512,801,95,52.3,40.1,1
`

func TestDecodeNSRDB(t *testing.T) {
	f, err := DecodeNSRDB(strings.NewReader(nsrdbSample))
	require.NoError(t, err)

	assert.Equal(t, NSRDBFeatures(), f.Features)
	require.Len(t, f.Records, 2)

	r := f.Records[1]
	assert.Equal(t, 2022, r.Year)
	assert.Equal(t, 12, r.Hour)
	assert.Equal(t, Reading(512), r.GHI)
	assert.Equal(t, Reading(52.3), r.SolarZenithAngle)
	assert.Equal(t, []float64{801, 40.1}, r.Values([]string{"dni", "relative_humidity"}))
}

func TestDecodeNSRDBSubsetOfFeatures(t *testing.T) {
	in := "meta\nmeta\nYear,Month,Day,Hour,Minute,GHI\n2021,7,4,13,0,900\n"
	f, err := DecodeNSRDB(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"ghi"}, f.Features)
	assert.Equal(t, Reading(900), f.Records[0].GHI)
}

func TestDecodeNSRDBBlankCellsAreNaN(t *testing.T) {
	in := "meta\nmeta\nYear,Month,Day,Hour,Minute,GHI,DNI,Relative Humidity\n" +
		"2021,7,4,13,0,,NaN,55.5\n"
	f, err := DecodeNSRDB(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, f.Records, 1)

	vals := f.Records[0].Values([]string{"ghi", "dni", "relative_humidity"})
	assert.True(t, math.IsNaN(vals[0]))
	assert.True(t, math.IsNaN(vals[1]))
	assert.Equal(t, 55.5, vals[2])
}

func TestDecodeNSRDBBadNumber(t *testing.T) {
	in := "meta\nmeta\nYear,Month,Day,Hour,Minute,GHI\n2021,7,4,13,0,abc\n"
	_, err := DecodeNSRDB(strings.NewReader(in))
	assert.Error(t, err)
}

func TestDecodeNSRDBMissingTimeColumn(t *testing.T) {
	in := "meta\nmeta\nYear,Month,Day,GHI\n2021,7,4,900\n"
	_, err := DecodeNSRDB(strings.NewReader(in))
	assert.Error(t, err)
}

func TestFeatureName(t *testing.T) {
	assert.Equal(t, "solar_zenith_angle", FeatureName("Solar Zenith Angle"))
	assert.Equal(t, "ghi", FeatureName(" GHI "))
}
