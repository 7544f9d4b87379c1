// Package config loads the scraper configuration from a YAML file with
// environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/withObsrvr/obsrvr-pano-scraper/internal/ledger"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/logging"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/metaxml"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/metrics"
	"github.com/withObsrvr/obsrvr-pano-scraper/internal/storage"
)

// DefaultTileURL is the provider's tile endpoint with its fixed parameters.
const DefaultTileURL = "https://maps.google.com/cbk?output=tile&cb_client=maps_sv&fover=2&onerr=3&renderer=spherical&v=4"

type Config struct {
	Provider ProviderConfig `yaml:"provider"`
	Storage  storage.Config `yaml:"storage"`
	Ledger   ledger.Config  `yaml:"ledger"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Resolver ResolverConfig `yaml:"resolver"`
	Output   OutputConfig   `yaml:"output"`
	Perf     PerfConfig     `yaml:"perf"`
	Metrics  metrics.Config `yaml:"metrics"`
	Logging  logging.Config `yaml:"logging"`
	Depth    DepthConfig    `yaml:"depth"`
	Worklist WorklistConfig `yaml:"worklist"`
}

type ProviderConfig struct {
	TileURL     string `yaml:"tile_url"`
	MetadataURL string `yaml:"metadata_url"`
	LabelsHost  string `yaml:"labels_host"` // labeling server serving /adminapi/labels/panoid
}

type FetchConfig struct {
	Timeout          time.Duration       `yaml:"timeout"`
	RetryAttempts    int                 `yaml:"retry_attempts"`
	RetryBackoff     time.Duration       `yaml:"retry_backoff"`
	RetryMaxBackoff  time.Duration       `yaml:"retry_max_backoff"`
	MaxInFlightTiles int                 `yaml:"max_in_flight_tiles"`
	ProxyURL         string              `yaml:"proxy_url"`
	Headers          []map[string]string `yaml:"headers"`
}

type ResolverConfig struct {
	BlankTolerance int `yaml:"blank_tolerance"`
	DefaultWidth   int `yaml:"default_width"`
	DefaultHeight  int `yaml:"default_height"`
}

type OutputConfig struct {
	Quality       int  `yaml:"quality"`
	RetryFailed   bool `yaml:"retry_failed"`   // re-attempt ids the ledger records as failed
	VerifyOutputs bool `yaml:"verify_outputs"` // re-acquire ledgered ids whose image is missing
	Manifest      bool `yaml:"manifest"`       // write a parquet run manifest
}

type PerfConfig struct {
	Workers         int           `yaml:"workers"`
	PanoramaTimeout time.Duration `yaml:"panorama_timeout"`
	ProgressEvery   int           `yaml:"progress_every"`
}

type DepthConfig struct {
	Binary  string        `yaml:"binary"`
	Timeout time.Duration `yaml:"timeout"`
}

type WorklistConfig struct {
	Path    string `yaml:"path"`    // CSV or JSON file, optionally .zst
	Shuffle bool   `yaml:"shuffle"` // randomize order before processing
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Provider: ProviderConfig{
			TileURL:     DefaultTileURL,
			MetadataURL: metaxml.DefaultURL,
		},
		Storage: storage.Config{
			Backend:  "local",
			LocalDir: "./data",
		},
		Ledger: ledger.Config{
			Path: "./data/pano-downloaded.csv",
		},
		Fetch: FetchConfig{
			Timeout:          30 * time.Second,
			RetryAttempts:    5,
			RetryBackoff:     500 * time.Millisecond,
			RetryMaxBackoff:  30 * time.Second,
			MaxInFlightTiles: 16,
			Headers:          DefaultHeaders(),
		},
		Resolver: ResolverConfig{
			BlankTolerance: 4,
			DefaultWidth:   13312,
			DefaultHeight:  6656,
		},
		Output: OutputConfig{
			Quality:     90,
			RetryFailed: true,
			Manifest:    true,
		},
		Perf: PerfConfig{
			Workers:         1,
			PanoramaTimeout: 10 * time.Minute,
			ProgressEvery:   1,
		},
		Metrics: metrics.Config{
			Address:   ":9090",
			Namespace: "pano_scraper",
		},
		Logging: logging.Config{
			Format: "text",
			Level:  "info",
		},
		Depth: DepthConfig{
			Binary:  "./decode_depthmap",
			Timeout: time.Minute,
		},
		Worklist: WorklistConfig{
			Shuffle: true,
		},
	}
}

// Load reads path (if non-empty) over the defaults, applies PANO_*
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks the configuration for values the scraper cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Provider.TileURL == "" {
		errs = append(errs, errors.New("provider.tile_url is required"))
	}
	switch c.Storage.Backend {
	case "local", "":
		if c.Storage.LocalDir == "" {
			errs = append(errs, errors.New("storage.local_dir is required for the local backend"))
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			errs = append(errs, errors.New("storage.gcs_bucket is required for the gcs backend"))
		}
	case "s3":
		if c.Storage.S3Bucket == "" {
			errs = append(errs, errors.New("storage.s3_bucket is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	if c.Ledger.Path == "" {
		errs = append(errs, errors.New("ledger.path is required"))
	}
	if c.Fetch.RetryAttempts < 1 {
		errs = append(errs, errors.New("fetch.retry_attempts must be at least 1"))
	}
	if c.Fetch.MaxInFlightTiles < 1 {
		errs = append(errs, errors.New("fetch.max_in_flight_tiles must be at least 1"))
	}
	if c.Resolver.BlankTolerance < 0 || c.Resolver.BlankTolerance > 255 {
		errs = append(errs, errors.New("resolver.blank_tolerance must be between 0 and 255"))
	}
	if c.Resolver.DefaultWidth <= 0 || c.Resolver.DefaultHeight <= 0 {
		errs = append(errs, errors.New("resolver default dimensions must be positive"))
	}
	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		errs = append(errs, errors.New("output.quality must be between 1 and 100"))
	}
	if c.Perf.Workers < 1 {
		errs = append(errs, errors.New("perf.workers must be at least 1"))
	}
	if c.Perf.PanoramaTimeout < 0 {
		errs = append(errs, errors.New("perf.panorama_timeout must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// applyEnv overrides selected fields from PANO_* environment variables.
func applyEnv(cfg *Config) error {
	cfg.Provider.TileURL = getenvDefault("PANO_TILE_URL", cfg.Provider.TileURL)
	cfg.Provider.MetadataURL = getenvDefault("PANO_METADATA_URL", cfg.Provider.MetadataURL)
	cfg.Provider.LabelsHost = getenvDefault("PANO_LABELS_HOST", cfg.Provider.LabelsHost)

	cfg.Storage.Backend = getenvDefault("PANO_STORAGE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.LocalDir = getenvDefault("PANO_STORAGE_DIR", cfg.Storage.LocalDir)
	cfg.Storage.Prefix = getenvDefault("PANO_STORAGE_PREFIX", cfg.Storage.Prefix)
	cfg.Storage.GCSBucket = getenvDefault("PANO_GCS_BUCKET", cfg.Storage.GCSBucket)
	cfg.Storage.S3Bucket = getenvDefault("PANO_S3_BUCKET", cfg.Storage.S3Bucket)
	cfg.Storage.S3Endpoint = getenvDefault("PANO_S3_ENDPOINT", cfg.Storage.S3Endpoint)
	cfg.Storage.S3Region = getenvDefault("PANO_S3_REGION", cfg.Storage.S3Region)

	cfg.Ledger.Backend = getenvDefault("PANO_LEDGER_BACKEND", cfg.Ledger.Backend)
	cfg.Ledger.Path = getenvDefault("PANO_LEDGER_PATH", cfg.Ledger.Path)

	cfg.Fetch.ProxyURL = getenvDefault("PANO_PROXY_URL", cfg.Fetch.ProxyURL)
	cfg.Logging.Level = getenvDefault("PANO_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getenvDefault("PANO_LOG_FORMAT", cfg.Logging.Format)
	cfg.Metrics.Address = getenvDefault("PANO_METRICS_ADDR", cfg.Metrics.Address)
	cfg.Depth.Binary = getenvDefault("PANO_DEPTH_BINARY", cfg.Depth.Binary)
	cfg.Worklist.Path = getenvDefault("PANO_WORKLIST", cfg.Worklist.Path)

	var err error
	if cfg.Perf.Workers, err = getenvInt("PANO_WORKERS", cfg.Perf.Workers); err != nil {
		return err
	}
	if cfg.Fetch.MaxInFlightTiles, err = getenvInt("PANO_MAX_IN_FLIGHT_TILES", cfg.Fetch.MaxInFlightTiles); err != nil {
		return err
	}
	if cfg.Fetch.RetryAttempts, err = getenvInt("PANO_RETRY_ATTEMPTS", cfg.Fetch.RetryAttempts); err != nil {
		return err
	}
	if cfg.Resolver.BlankTolerance, err = getenvInt("PANO_BLANK_TOLERANCE", cfg.Resolver.BlankTolerance); err != nil {
		return err
	}
	if cfg.Perf.PanoramaTimeout, err = getenvDuration("PANO_PANORAMA_TIMEOUT", cfg.Perf.PanoramaTimeout); err != nil {
		return err
	}
	if v := os.Getenv("PANO_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = v == "true"
	}
	return nil
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}
