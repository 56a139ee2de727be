// Package domain defines the core types shared across gridetl: datasets,
// regions and the cities that NSRDB data is requested for.
package domain

import (
	"strings"
	"time"
)

// Dataset identifies a normalized hourly table.
type Dataset string

const (
	DatasetWind        Dataset = "ercot-wind"
	DatasetSolar       Dataset = "ercot-solar"
	DatasetLoad        Dataset = "ercot-load"
	DatasetNSRDBCity   Dataset = "nsrdb-city"
	DatasetNSRDBRegion Dataset = "nsrdb-region"
)

// Datasets lists every known dataset in pipeline order.
func Datasets() []Dataset {
	return []Dataset{DatasetWind, DatasetSolar, DatasetLoad, DatasetNSRDBCity, DatasetNSRDBRegion}
}

// City is a point for which NSRDB solar-resource data is requested.
type City struct {
	Name string  `yaml:"name"`
	Lat  float64 `yaml:"lat"`
	Lon  float64 `yaml:"lon"`
}

// Key returns the lower-cased city name used in file and column names.
func (c City) Key() string { return strings.ToLower(c.Name) }

// Region groups cities whose NSRDB features are averaged together.
type Region struct {
	Name   string `yaml:"name"`
	Cities []City `yaml:"cities"`
}

// CityKeys returns the lower-cased names of the region's cities.
func (r Region) CityKeys() []string {
	keys := make([]string, 0, len(r.Cities))
	for _, c := range r.Cities {
		keys = append(keys, c.Key())
	}
	return keys
}

// TexasRegions returns the ERCOT weather regions and their representative
// cities. Order matters: region tables are laid out in this order.
func TexasRegions() []Region {
	return []Region{
		{Name: "south", Cities: []City{
			{Name: "McAllen", Lat: 26, Lon: -98},
			{Name: "Austin", Lat: 30, Lon: -98},
			{Name: "SanAntonio", Lat: 29, Lon: -98},
			{Name: "Laredo", Lat: 28, Lon: -100},
			{Name: "CorpusChristi", Lat: 28, Lon: -97},
		}},
		{Name: "north", Cities: []City{
			{Name: "Waco", Lat: 32, Lon: -97},
			{Name: "Dallas", Lat: 33, Lon: -97},
			{Name: "Tyler", Lat: 32, Lon: -95},
		}},
		{Name: "west", Cities: []City{
			{Name: "Amarillo", Lat: 35, Lon: -102},
			{Name: "Lubbock", Lat: 34, Lon: -102},
			{Name: "Midland", Lat: 32, Lon: -102},
			{Name: "SanAngelo", Lat: 31, Lon: -100},
			{Name: "WichitaFalls", Lat: 34, Lon: -98},
			{Name: "Alpine", Lat: 30, Lon: -104},
		}},
		{Name: "east", Cities: []City{
			{Name: "Houston", Lat: 30, Lon: -95},
		}},
	}
}

// RequestStatus is the state of one NSRDB download request.
type RequestStatus string

const (
	StatusQueued  RequestStatus = "queued"  // accepted, download URL known
	StatusDone    RequestStatus = "done"    // CSV written to disk
	StatusFailed  RequestStatus = "failed"  // request or download failed
	StatusMissing RequestStatus = "missing" // accepted without a download URL
)

// NSRDBRequest is one ledger row: the request for a single city and year.
type NSRDBRequest struct {
	Year        int
	Region      string
	City        string
	Status      RequestStatus
	DownloadURL string
	Message     string
	FilePath    string
	UpdatedAt   time.Time
}

// Run records one invocation of a batch tool.
type Run struct {
	ID         int64
	Tool       string
	StartedAt  time.Time
	FinishedAt time.Time
	Items      int
	Failures   int
	Err        string
}
