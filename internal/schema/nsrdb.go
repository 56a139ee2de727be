package schema

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/jszwec/csvutil"
)

// NSRDBMetadataRows is the number of site-metadata lines that precede the
// column header in an NSRDB CSV download.
const NSRDBMetadataRows = 2

// NSRDBRecord is one hourly row of an NSRDB CSV, decoded by header name.
type NSRDBRecord struct {
	Year   int `csv:"Year"`
	Month  int `csv:"Month"`
	Day    int `csv:"Day"`
	Hour   int `csv:"Hour"`
	Minute int `csv:"Minute"`

	GHI              Reading `csv:"GHI"`
	DNI              Reading `csv:"DNI"`
	DHI              Reading `csv:"DHI"`
	SolarZenithAngle Reading `csv:"Solar Zenith Angle"`
	RelativeHumidity Reading `csv:"Relative Humidity"`
}

// Reading is one NSRDB measurement. Blank and "NaN" cells decode to NaN.
type Reading float64

// UnmarshalCSV implements csvutil.Unmarshaler.
func (r *Reading) UnmarshalCSV(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "" || strings.EqualFold(s, "nan") {
		*r = Reading(math.NaN())
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*r = Reading(v)
	return nil
}

// nsrdbFeatureHeaders are the attribute headers in feature order.
var nsrdbFeatureHeaders = []string{"GHI", "DNI", "DHI", "Solar Zenith Angle", "Relative Humidity"}

// FeatureName converts an NSRDB header to a feature name: lower case with
// spaces replaced by underscores ("Solar Zenith Angle" → "solar_zenith_angle").
func FeatureName(header string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(header)), " ", "_")
}

// NSRDBFeatures lists every feature NSRDBRecord can carry.
func NSRDBFeatures() []string {
	out := make([]string, len(nsrdbFeatureHeaders))
	for i, h := range nsrdbFeatureHeaders {
		out[i] = FeatureName(h)
	}
	return out
}

// Values returns the record's values for the given features.
func (r NSRDBRecord) Values(features []string) []float64 {
	out := make([]float64, len(features))
	for i, f := range features {
		switch f {
		case "ghi":
			out[i] = float64(r.GHI)
		case "dni":
			out[i] = float64(r.DNI)
		case "dhi":
			out[i] = float64(r.DHI)
		case "solar_zenith_angle":
			out[i] = float64(r.SolarZenithAngle)
		case "relative_humidity":
			out[i] = float64(r.RelativeHumidity)
		default:
			out[i] = math.NaN()
		}
	}
	return out
}

// NSRDBFile is a decoded NSRDB CSV. Features holds only the attributes
// present in the file's header, in canonical order.
type NSRDBFile struct {
	Features []string
	Records  []NSRDBRecord
}

// DecodeNSRDB skips the metadata lines, then decodes the remaining rows by
// header name. Time columns Year, Month, Day and Hour are required.
func DecodeNSRDB(r io.Reader) (*NSRDBFile, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	for i := 0; i < NSRDBMetadataRows; i++ {
		if _, err := cr.Read(); err != nil {
			return nil, fmt.Errorf("reading nsrdb metadata line %d: %w", i+1, err)
		}
	}

	dec, err := csvutil.NewDecoder(cr)
	if err != nil {
		return nil, fmt.Errorf("reading nsrdb header: %w", err)
	}

	present := make(map[string]bool)
	for _, h := range dec.Header() {
		present[strings.TrimSpace(h)] = true
	}
	for _, req := range []string{"Year", "Month", "Day", "Hour"} {
		if !present[req] {
			return nil, fmt.Errorf("nsrdb header missing %q", req)
		}
	}

	out := &NSRDBFile{}
	for _, h := range nsrdbFeatureHeaders {
		if present[h] {
			out.Features = append(out.Features, FeatureName(h))
		}
	}

	for {
		var rec NSRDBRecord
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decoding nsrdb row %d: %w", len(out.Records)+1, err)
		}
		out.Records = append(out.Records, rec)
	}
	return out, nil
}
