package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"gridetl/internal/domain"
)

// EnvPrefix is the prefix for structured environment overrides, e.g.
// GRIDETL_STORAGE_DATA_DIR or GRIDETL_NSRDB_RATE_LIMIT_PER_MIN. Keys are
// always section-qualified; bare names such as URL or TIMEOUT are ignored.
const EnvPrefix = "GRIDETL"

// DefaultPath is the configuration file read by the cmd tools unless
// GRIDETL_CONFIG names another.
const DefaultPath = "config/gridetl.yaml"

// CutoffLayout is the layout of ERCOTConfig.Cutoff.
const CutoffLayout = "2006-01-02 15:04:05"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the gridetl tools.
type Config struct {
	Storage Storage       `yaml:"storage"`
	Logging Logging       `yaml:"logging"`
	ERCOT   ERCOTConfig   `yaml:"ercot"`
	NSRDB   NSRDBConfig   `yaml:"nsrdb"`
	Export  ExportConfig  `yaml:"export"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir" split_words:"true"`
	SQLitePath string `yaml:"sqlite_path" envconfig:"SQLITE_PATH"` // split_words yields SQ_LITE_PATH
}

// Logging configures the application logger. When Dir is set, cmd tools
// also write a dated log file there.
type Logging struct {
	Level  string `yaml:"level" split_words:"true"`
	Format string `yaml:"format" split_words:"true"`
	Dir    string `yaml:"dir" split_words:"true"`
}

// ERCOTConfig locates the ERCOT archives and controls fragment extraction.
type ERCOTConfig struct {
	WindDir      string   `yaml:"wind_dir" split_words:"true"`
	SolarDir     string   `yaml:"solar_dir" split_words:"true"`
	LoadFiles    []string `yaml:"load_files" split_words:"true"`
	SkipRows     int      `yaml:"skip_rows" split_words:"true"`
	FragmentRows int      `yaml:"fragment_rows" split_words:"true"`
	Cutoff       string   `yaml:"cutoff" split_words:"true"`
	MaxWorkers   int      `yaml:"max_workers" split_words:"true"`
}

// NSRDBConfig controls requests against the NREL NSRDB download API.
type NSRDBConfig struct {
	APIKey          string          `yaml:"api_key" split_words:"true"`
	Email           string          `yaml:"email" split_words:"true"`
	URL             string          `yaml:"url" split_words:"true"`
	Attributes      string          `yaml:"attributes" split_words:"true"`
	Years           []string        `yaml:"years" split_words:"true"`
	Interval        int             `yaml:"interval" split_words:"true"`
	RateLimitPerMin int             `yaml:"rate_limit_per_min" split_words:"true"`
	Timeout         time.Duration   `yaml:"timeout" split_words:"true"`
	MaxAttempts     int             `yaml:"max_attempts" split_words:"true"`
	RetryDelay      time.Duration   `yaml:"retry_delay" split_words:"true"`
	MaxWorkers      int             `yaml:"max_workers" split_words:"true"`
	RawDir          string          `yaml:"raw_dir" split_words:"true"`
	ZipCacheDir     string          `yaml:"zip_cache_dir" split_words:"true"`
	Regions         []domain.Region `yaml:"regions" ignored:"true"`
}

// ExportConfig selects the output formats written next to the Parquet store.
type ExportConfig struct {
	Dir     string   `yaml:"dir" split_words:"true"`
	Formats []string `yaml:"formats" split_words:"true"`
}

// MetricsConfig controls the Prometheus textfile written after each run.
type MetricsConfig struct {
	TextfilePath string `yaml:"textfile_path" split_words:"true"`
}

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

// Default returns a configuration that reproduces the 2021-2023 Texas study.
func Default() *Config {
	return &Config{
		Storage: Storage{
			DataDir:    "data",
			SQLitePath: "data/gridetl.db",
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
		ERCOT: ERCOTConfig{
			WindDir:      "wind_generation_zips",
			SolarDir:     "solar_generation_zips",
			SkipRows:     1,
			FragmentRows: 48,
			Cutoff:       "2023-12-31 23:00:00",
			MaxWorkers:   4,
		},
		NSRDB: NSRDBConfig{
			URL:             "https://developer.nrel.gov/api/nsrdb/v2/solar/nsrdb-GOES-conus-v4-0-0-download.json",
			Attributes:      "ghi,dni,dhi,solar_zenith_angle,relative_humidity",
			Years:           []string{"2021", "2022", "2023"},
			Interval:        60,
			RateLimitPerMin: 30,
			Timeout:         60 * time.Second,
			MaxAttempts:     6,
			RetryDelay:      10 * time.Second,
			MaxWorkers:      4,
			RawDir:          "raw_nsrdb_data",
			ZipCacheDir:     "nsrdb_zip_cache",
			Regions:         domain.TexasRegions(),
		},
		Export: ExportConfig{
			Dir:     "exports",
			Formats: []string{"csv"},
		},
	}
}

// CutoffTime parses the ERCOT cutoff. An empty cutoff yields the zero time,
// which callers treat as "no cutoff".
func (e ERCOTConfig) CutoffTime() (time.Time, error) {
	if e.Cutoff == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(CutoffLayout, e.Cutoff)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing ercot cutoff %q: %w", e.Cutoff, err)
	}
	return t, nil
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Path returns the configuration file path for the cmd tools.
func Path() string {
	if p := os.Getenv(EnvPrefix + "_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// Load starts from Default, overlays the YAML configuration file at path (a
// missing file is not an error), then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("applying %s_* environment: %w", EnvPrefix, err)
	}
	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// The download scripts historically read the key from API_KEY.
	if v := os.Getenv("API_KEY"); v != "" {
		cfg.NSRDB.APIKey = v
	}
	if v := os.Getenv("NSRDB_API_KEY"); v != "" {
		cfg.NSRDB.APIKey = v
	}
	if v := os.Getenv("NSRDB_EMAIL"); v != "" {
		cfg.NSRDB.Email = v
	}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// ValidateNSRDB checks the fields the NSRDB request tool cannot run without.
func (c *Config) ValidateNSRDB() error {
	var errs []error
	if c.NSRDB.APIKey == "" {
		errs = append(errs, errors.New("nsrdb.api_key is required (or set NSRDB_API_KEY)"))
	}
	if c.NSRDB.Email == "" {
		errs = append(errs, errors.New("nsrdb.email is required"))
	}
	if c.NSRDB.URL == "" {
		errs = append(errs, errors.New("nsrdb.url is required"))
	}
	if len(c.NSRDB.Years) == 0 {
		errs = append(errs, errors.New("nsrdb.years is empty"))
	}
	if len(c.NSRDB.Regions) == 0 {
		errs = append(errs, errors.New("nsrdb.regions is empty"))
	}
	return errors.Join(errs...)
}

// ValidateERCOT checks the extraction parameters.
func (c *Config) ValidateERCOT() error {
	var errs []error
	if c.ERCOT.FragmentRows < 0 || c.ERCOT.SkipRows < 0 {
		errs = append(errs, errors.New("ercot.skip_rows and ercot.fragment_rows must not be negative"))
	}
	if _, err := c.ERCOT.CutoffTime(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
