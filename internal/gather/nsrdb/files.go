package nsrdb

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gridetl/internal/aggregate"
	"gridetl/internal/frame"
	"gridetl/internal/schema"
	"gridetl/internal/timeseries"
)

// FileName returns the raw CSV name for a city's year:
// nsrdb_<year>_<region>_<city>.csv.
func FileName(year int, region, city string) string {
	return fmt.Sprintf("nsrdb_%d_%s_%s.csv", year, region, city)
}

// YearDir returns the directory holding a year's raw CSVs.
func YearDir(rawDir string, year int) string {
	return filepath.Join(rawDir, "nsrdb_"+strconv.Itoa(year))
}

// RawPath returns where a city's raw CSV for a year is written.
func RawPath(rawDir string, year int, region, city string) string {
	return filepath.Join(YearDir(rawDir, year), FileName(year, region, city))
}

// ParseFileName splits a raw CSV name into year, region and lower-cased
// city.
func ParseFileName(name string) (year int, region, city string, err error) {
	base, ok := strings.CutSuffix(filepath.Base(name), ".csv")
	parts := strings.Split(base, "_")
	if !ok || len(parts) != 4 || parts[0] != "nsrdb" || parts[2] == "" || parts[3] == "" {
		return 0, "", "", fmt.Errorf("%q is not an nsrdb_<year>_<region>_<city>.csv name", name)
	}
	year, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, "", "", fmt.Errorf("%q: bad year: %w", name, err)
	}
	return year, parts[2], strings.ToLower(parts[3]), nil
}

// LoadYear reads every raw CSV of a year and returns one frame per city with
// {city}_{feature} columns, in file-name order. Files whose names do not
// parse are skipped.
func LoadYear(rawDir string, year int, log *slog.Logger) ([]*frame.Frame, error) {
	if log == nil {
		log = slog.Default()
	}
	dir := YearDir(rawDir, year)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".csv") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var frames []*frame.Frame
	for _, name := range names {
		fileYear, _, city, err := ParseFileName(name)
		if err != nil {
			log.Warn("skipping file", "file", name, "error", err)
			continue
		}
		if fileYear != year {
			log.Warn("skipping file from another year", "file", name, "year", year)
			continue
		}

		f, err := readCityFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		frames = append(frames, aggregate.CityFrame(city, f))
	}
	return frames, nil
}

func readCityFile(path string) (*frame.Frame, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	file, err := schema.DecodeNSRDB(fh)
	if err != nil {
		return nil, err
	}
	return timeseries.NSRDBFrame(file)
}

// AggregateYear builds the wide city table for a year.
func AggregateYear(rawDir string, year int, log *slog.Logger) (*frame.Frame, error) {
	frames, err := LoadYear(rawDir, year, log)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no nsrdb files for %d in %s", year, YearDir(rawDir, year))
	}
	return aggregate.WideByCity(frames...)
}
