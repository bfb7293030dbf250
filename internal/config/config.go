package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tomgould/Scrape/internal/types"
	"gopkg.in/yaml.v3"
)

// Config is the on-disk shape of a scrape configuration. Flags given on the
// command line are applied on top of it.
type Config struct {
	Mode        string               `yaml:"mode"`
	Destination string               `yaml:"destination"`
	CachePath   string               `yaml:"cache_path"`
	Targets     []types.ScrapeTarget `yaml:"targets"`
	Filter      FilterConfig         `yaml:"filter"`
	RandomLimit int                  `yaml:"random_limit"`
	Download    DownloadConfig       `yaml:"download"`
	Logging     LoggingConfig        `yaml:"logging"`
	Metrics     MetricsConfig        `yaml:"metrics"`
	Report      ReportConfig         `yaml:"report"`
}

// FilterConfig holds the substring rules applied to discovered files.
type FilterConfig struct {
	ExcludedPaths     []string `yaml:"excluded_paths"`
	ExcludedFilenames []string `yaml:"excluded_filenames"`
	SearchTerms       []string `yaml:"search_terms"`
}

// DownloadConfig controls concurrency, retries, timeouts and throttling.
type DownloadConfig struct {
	Concurrency       int      `yaml:"concurrency"`
	MaxRetries        int      `yaml:"max_retries"`
	RetryDelay        Duration `yaml:"retry_delay"`
	ConnectionTimeout Duration `yaml:"connection_timeout"`
	TransferTimeout   Duration `yaml:"transfer_timeout"`
	ListingTimeout    Duration `yaml:"listing_timeout"`
	MaxSpeed          int64    `yaml:"max_speed"`
	LowSpeedLimit     int64    `yaml:"low_speed_limit"`
	LowSpeedWindow    Duration `yaml:"low_speed_window"`
	BatchSize         int      `yaml:"batch_size"`
	MaxPathLength     int      `yaml:"max_path_length"`
	UserAgent         string   `yaml:"user_agent"`
}

// LoggingConfig selects log verbosity, format and destination.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Structured bool   `yaml:"structured"`
	File       string `yaml:"file"`
}

// MetricsConfig enables the prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// ReportConfig selects which outcome ledgers are written under the cache path.
type ReportConfig struct {
	JSONL  bool `yaml:"jsonl"`
	SQLite bool `yaml:"sqlite"`
}

// Default returns a Config populated with the stock limits.
func Default() Config {
	d := types.DefaultConfig()
	return Config{
		Mode:      string(d.Mode),
		CachePath: defaultCachePath(),
		Download: DownloadConfig{
			Concurrency:       d.MaxConcurrentDownloads,
			MaxRetries:        d.MaxRetries,
			RetryDelay:        DurationFrom(d.RetryDelay),
			ConnectionTimeout: DurationFrom(d.ConnectionTimeout),
			TransferTimeout:   DurationFrom(d.TransferTimeout),
			ListingTimeout:    DurationFrom(d.ListingTimeout),
			LowSpeedLimit:     d.LowSpeedLimit,
			LowSpeedWindow:    DurationFrom(d.LowSpeedWindow),
			BatchSize:         d.BatchSize,
			MaxPathLength:     d.MaxPathLength,
			UserAgent:         d.UserAgent,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Report: ReportConfig{
			JSONL:  true,
			SQLite: true,
		},
	}
}

func defaultCachePath() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "scrape")
	}
	return ".scrape"
}

// Load reads, normalises and validates configuration from a YAML file.
func Load(path string) (*Config, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()

	return LoadFromReader(fh)
}

// LoadFromReader decodes configuration from an arbitrary reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decodeYAML(r, &cfg); err != nil {
		return nil, err
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// Write encodes cfg as YAML.
func Write(w io.Writer, cfg Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

// Validate checks the values a file can get wrong. Whether the targets make a
// runnable scrape is decided later, once flags have been applied.
func (c Config) Validate() error {
	if _, err := types.ParseMode(c.Mode); err != nil {
		return err
	}
	for i, t := range c.Targets {
		if t.URL == "" {
			return fmt.Errorf("%w: targets[%d] has empty url", types.ErrInvalidConfig, i)
		}
	}
	if c.Download.Concurrency < 0 {
		return fmt.Errorf("%w: download.concurrency must be >= 0 (got %d)", types.ErrInvalidConfig, c.Download.Concurrency)
	}
	if c.Download.MaxRetries < 0 {
		return fmt.Errorf("%w: download.max_retries must be >= 0 (got %d)", types.ErrInvalidConfig, c.Download.MaxRetries)
	}
	if c.Download.MaxSpeed < 0 {
		return fmt.Errorf("%w: download.max_speed must be >= 0 (got %d)", types.ErrInvalidConfig, c.Download.MaxSpeed)
	}
	if c.RandomLimit < 0 {
		return fmt.Errorf("%w: random_limit must be >= 0 (got %d)", types.ErrInvalidConfig, c.RandomLimit)
	}
	for name, d := range map[string]Duration{
		"retry_delay":        c.Download.RetryDelay,
		"connection_timeout": c.Download.ConnectionTimeout,
		"transfer_timeout":   c.Download.TransferTimeout,
		"listing_timeout":    c.Download.ListingTimeout,
		"low_speed_window":   c.Download.LowSpeedWindow,
	} {
		if d.Duration < 0 {
			return fmt.Errorf("%w: download.%s must not be negative", types.ErrInvalidConfig, name)
		}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: unknown logging.level %q", types.ErrInvalidConfig, c.Logging.Level)
	}
	return nil
}

func (c *Config) normalise() {
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	c.Destination = strings.TrimSpace(c.Destination)
	c.CachePath = strings.TrimSpace(c.CachePath)
	for i := range c.Targets {
		c.Targets[i].URL = strings.TrimSpace(c.Targets[i].URL)
	}
	c.Download.UserAgent = strings.TrimSpace(c.Download.UserAgent)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.File = strings.TrimSpace(c.Logging.File)
	c.Metrics.Addr = strings.TrimSpace(c.Metrics.Addr)
}

// ToTypes converts the file shape into the run configuration. The result is
// not yet normalized; callers add flags, progress and logger first.
func (c Config) ToTypes() types.Config {
	mode, err := types.ParseMode(c.Mode)
	if err != nil {
		mode = types.Mode(c.Mode)
	}
	return types.Config{
		DestinationRoot:        c.Destination,
		CachePath:              c.CachePath,
		Mode:                   mode,
		Targets:                append([]types.ScrapeTarget(nil), c.Targets...),
		ExcludedPaths:          append([]string(nil), c.Filter.ExcludedPaths...),
		ExcludedFilenames:      append([]string(nil), c.Filter.ExcludedFilenames...),
		SearchTerms:            append([]string(nil), c.Filter.SearchTerms...),
		RandomLimit:            c.RandomLimit,
		MaxConcurrentDownloads: c.Download.Concurrency,
		MaxRetries:             c.Download.MaxRetries,
		RetryDelay:             c.Download.RetryDelay.Duration,
		ConnectionTimeout:      c.Download.ConnectionTimeout.Duration,
		TransferTimeout:        c.Download.TransferTimeout.Duration,
		ListingTimeout:         c.Download.ListingTimeout.Duration,
		MaxDownloadSpeed:       c.Download.MaxSpeed,
		LowSpeedLimit:          c.Download.LowSpeedLimit,
		LowSpeedWindow:         c.Download.LowSpeedWindow.Duration,
		BatchSize:              c.Download.BatchSize,
		MaxPathLength:          c.Download.MaxPathLength,
		UserAgent:              c.Download.UserAgent,
	}
}
