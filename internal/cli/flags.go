package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tomgould/Scrape/internal/config"
	"github.com/tomgould/Scrape/internal/types"
)

// runFlags are the flags shared by search and download
type runFlags struct {
	urls            []string
	dest            string
	subDir          string
	exts            []string
	excludePaths    []string
	excludeFiles    []string
	search          []string
	randomLimit     int
	concurrency     int
	retries         int
	retryDelay      time.Duration
	connectTimeout  time.Duration
	transferTimeout time.Duration
	maxSpeed        int64
	userAgent       string
	noProgress      bool
}

func addRunFlags(cmd *cobra.Command, f *runFlags) {
	d := types.DefaultConfig()
	flags := cmd.Flags()
	flags.StringArrayVar(&f.urls, "url", nil, "Listing URL to crawl (repeatable, replaces config targets)")
	flags.StringVar(&f.dest, "dest", "", "Destination root directory")
	flags.StringVar(&f.subDir, "sub-dir", "", "Sub directory under the destination for --url targets")
	flags.StringSliceVar(&f.exts, "ext", nil, "Wanted file extensions, e.g. gif,jpg (empty means all)")
	flags.StringArrayVar(&f.excludePaths, "exclude-path", nil, "Skip URLs containing this substring (repeatable)")
	flags.StringArrayVar(&f.excludeFiles, "exclude-file", nil, "Skip file names containing this substring (repeatable)")
	flags.StringArrayVar(&f.search, "search", nil, "Keep only file names containing this term (repeatable)")
	flags.IntVar(&f.randomLimit, "random-limit", 0, "Keep a random subset of this many files (0 keeps all)")
	flags.IntVar(&f.concurrency, "concurrency", d.MaxConcurrentDownloads, "Maximum concurrent downloads (1-50)")
	flags.IntVar(&f.retries, "retries", d.MaxRetries, "Retries per file after the first attempt")
	flags.DurationVar(&f.retryDelay, "retry-delay", d.RetryDelay, "Wait between attempts")
	flags.DurationVar(&f.connectTimeout, "connect-timeout", d.ConnectionTimeout, "Connection timeout (min 5s)")
	flags.DurationVar(&f.transferTimeout, "transfer-timeout", d.TransferTimeout, "Per-file transfer timeout (min 10s)")
	flags.Int64Var(&f.maxSpeed, "max-speed", 0, "Global bandwidth cap in bytes per second (0 is unlimited)")
	flags.StringVar(&f.userAgent, "user-agent", "", "User-Agent header")
	flags.BoolVar(&f.noProgress, "no-progress", false, "Disable the progress bar")
}

// loadConfig reads --config (or the defaults) and applies the global flags
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = *loaded
	}

	flags := cmd.Flags()
	if flags.Changed("cache-dir") {
		cfg.CachePath = cacheDir
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = strings.ToLower(logLevel)
	}
	if flags.Changed("log-json") {
		cfg.Logging.Structured = logJSON
	}
	if flags.Changed("log-file") {
		cfg.Logging.File = logFile
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = metricsAddr
	}
	return cfg, nil
}

// apply layers the command line over the file configuration
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	if flags.Changed("url") {
		cfg.Targets = cfg.Targets[:0]
		for _, u := range f.urls {
			cfg.Targets = append(cfg.Targets, types.ScrapeTarget{
				URL:               strings.TrimSpace(u),
				DestinationSubDir: f.subDir,
				WantedExtensions:  append([]string(nil), f.exts...),
			})
		}
	} else {
		if flags.Changed("ext") {
			for i := range cfg.Targets {
				cfg.Targets[i].WantedExtensions = append([]string(nil), f.exts...)
			}
		}
		if flags.Changed("sub-dir") {
			for i := range cfg.Targets {
				cfg.Targets[i].DestinationSubDir = f.subDir
			}
		}
	}

	if flags.Changed("dest") {
		cfg.Destination = f.dest
	}
	if flags.Changed("exclude-path") {
		cfg.Filter.ExcludedPaths = append(cfg.Filter.ExcludedPaths, f.excludePaths...)
	}
	if flags.Changed("exclude-file") {
		cfg.Filter.ExcludedFilenames = append(cfg.Filter.ExcludedFilenames, f.excludeFiles...)
	}
	if flags.Changed("search") {
		cfg.Filter.SearchTerms = append([]string(nil), f.search...)
	}
	if flags.Changed("random-limit") {
		cfg.RandomLimit = f.randomLimit
	}
	if flags.Changed("concurrency") {
		cfg.Download.Concurrency = f.concurrency
	}
	if flags.Changed("retries") {
		cfg.Download.MaxRetries = f.retries
	}
	if flags.Changed("retry-delay") {
		cfg.Download.RetryDelay = config.DurationFrom(f.retryDelay)
	}
	if flags.Changed("connect-timeout") {
		cfg.Download.ConnectionTimeout = config.DurationFrom(f.connectTimeout)
	}
	if flags.Changed("transfer-timeout") {
		cfg.Download.TransferTimeout = config.DurationFrom(f.transferTimeout)
	}
	if flags.Changed("max-speed") {
		cfg.Download.MaxSpeed = f.maxSpeed
	}
	if flags.Changed("user-agent") {
		cfg.Download.UserAgent = f.userAgent
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("flags: %w", err)
	}
	return nil
}
