package types

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// ErrInvalidConfig is wrapped by every configuration error returned from Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Mode selects what a run does with discovered files
type Mode string

const (
	ModeSearch   Mode = "search"
	ModeTest     Mode = "test"
	ModeDownload Mode = "download"
)

// ParseMode converts a user supplied mode name
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeSearch, ModeTest, ModeDownload:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, s)
	}
}

const (
	DefaultMaxConcurrentDownloads = 10
	MaxConcurrentDownloadsLimit   = 50
	DefaultMaxRetries             = 3
	DefaultRetryDelay             = 2 * time.Second
	DefaultConnectionTimeout      = 30 * time.Second
	MinConnectionTimeout          = 5 * time.Second
	DefaultTransferTimeout        = 300 * time.Second
	MinTransferTimeout            = 10 * time.Second
	DefaultListingTimeout         = 60 * time.Second
	DefaultLowSpeedLimit          = 10 * 1024
	DefaultLowSpeedWindow         = 60 * time.Second
	DefaultBatchSize              = 500
	DefaultMaxPathLength          = 255
	DefaultUserAgent              = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

// FileNameProcessor rewrites a sanitized file name before filters run
type FileNameProcessor func(fileName string) string

// ProgressFunc receives one event per terminal outcome
type ProgressFunc func(ProgressEvent)

// ScrapeTarget is one listing root to crawl
type ScrapeTarget struct {
	URL               string   `json:"url" yaml:"url"`
	DestinationSubDir string   `json:"destination_sub_dir,omitempty" yaml:"destination_sub_dir"`
	WantedExtensions  []string `json:"extensions,omitempty" yaml:"extensions"`
}

// Wants reports whether a file with the given extension should be kept.
// An empty extension set accepts everything.
func (t ScrapeTarget) Wants(ext string) bool {
	if len(t.WantedExtensions) == 0 {
		return true
	}
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, want := range t.WantedExtensions {
		if want == ext {
			return true
		}
	}
	return false
}

// DownloadItem is a discovered file ready for scheduling
type DownloadItem struct {
	SourceURL      string `json:"source_url"`
	LocalPath      string `json:"local_path"`
	FileName       string `json:"file_name"`
	DestinationDir string `json:"destination_dir"`
}

// Status is the terminal state of a download item
type Status int

const (
	StatusSuccess Status = iota
	StatusFailed
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusFailed:
		return "FAILED"
	case StatusSkipped:
		return "SKIPPED"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	switch strings.ToUpper(string(text)) {
	case "SUCCESS":
		*s = StatusSuccess
	case "FAILED":
		*s = StatusFailed
	case "SKIPPED":
		*s = StatusSkipped
	default:
		return fmt.Errorf("unknown status %q", string(text))
	}
	return nil
}

// Outcome is the terminal result for one DownloadItem
type Outcome struct {
	Item             DownloadItem  `json:"item"`
	Status           Status        `json:"status"`
	HTTPStatus       int           `json:"http_status,omitempty"`
	BytesTransferred int64         `json:"bytes_transferred"`
	TotalBytes       int64         `json:"total_bytes"` // summed over every attempt
	Elapsed          time.Duration `json:"elapsed"`
	Throughput       float64       `json:"throughput"`
	Error            string        `json:"error,omitempty"`
	RetriesUsed      int           `json:"retries_used"`
	FinishedAt       time.Time     `json:"finished_at"`
}

// ProgressEvent is handed to the caller's ProgressFunc
type ProgressEvent struct {
	Current int
	Total   int
	Percent float64
	Outcome Outcome
}

// Stats contains run counters
type Stats struct {
	Discovered      int       `json:"discovered"`
	Total           int       `json:"total"`
	Success         int       `json:"success"`
	Failed          int       `json:"failed"`
	Skipped         int       `json:"skipped"`
	Retries         int       `json:"retries"`
	BytesDownloaded int64     `json:"bytes_downloaded"` // all attempts of successful items
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
}

// Duration is the elapsed time of the run, measured to now while it is still going
func (s Stats) Duration() time.Duration {
	if s.StartTime.IsZero() {
		return 0
	}
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// AverageSpeed returns bytes per second over the whole run
func (s Stats) AverageSpeed() float64 {
	secs := s.Duration().Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(s.BytesDownloaded) / secs
}

// Balanced reports whether every counted item reached a terminal state
func (s Stats) Balanced() bool {
	return s.Total == s.Success+s.Failed+s.Skipped
}

// Config is the resolved run configuration. Build it once and pass it by value.
type Config struct {
	DestinationRoot string
	CachePath       string
	Mode            Mode
	Targets         []ScrapeTarget

	ExcludedPaths     []string
	ExcludedFilenames []string
	SearchTerms       []string
	FileNameProcessor FileNameProcessor
	RandomLimit       int

	MaxConcurrentDownloads int
	MaxRetries             int
	RetryDelay             time.Duration
	ConnectionTimeout      time.Duration
	TransferTimeout        time.Duration
	ListingTimeout         time.Duration
	MaxDownloadSpeed       int64 // bytes per second, 0 is unlimited
	LowSpeedLimit          int64 // bytes per second
	LowSpeedWindow         time.Duration
	BatchSize              int
	MaxPathLength          int
	UserAgent              string

	Progress ProgressFunc
	Logger   *slog.Logger
}

// DefaultConfig returns a download-mode config with the stock limits
func DefaultConfig() Config {
	return Config{
		Mode:                   ModeDownload,
		MaxConcurrentDownloads: DefaultMaxConcurrentDownloads,
		MaxRetries:             DefaultMaxRetries,
		RetryDelay:             DefaultRetryDelay,
		ConnectionTimeout:      DefaultConnectionTimeout,
		TransferTimeout:        DefaultTransferTimeout,
		ListingTimeout:         DefaultListingTimeout,
		LowSpeedLimit:          DefaultLowSpeedLimit,
		LowSpeedWindow:         DefaultLowSpeedWindow,
		BatchSize:              DefaultBatchSize,
		MaxPathLength:          DefaultMaxPathLength,
		UserAgent:              DefaultUserAgent,
	}
}

// Normalize returns a copy with limits clamped, zero values defaulted and
// matching lists lower-cased. The receiver is left untouched.
func (c Config) Normalize() Config {
	out := c
	if out.Mode == "" {
		out.Mode = ModeDownload
	}

	out.MaxConcurrentDownloads = clamp(out.MaxConcurrentDownloads, 1, MaxConcurrentDownloadsLimit)
	if out.MaxRetries < 0 {
		out.MaxRetries = 0
	}
	if out.RetryDelay < 0 {
		out.RetryDelay = 0
	}
	if out.ConnectionTimeout == 0 {
		out.ConnectionTimeout = DefaultConnectionTimeout
	} else if out.ConnectionTimeout < MinConnectionTimeout {
		out.ConnectionTimeout = MinConnectionTimeout
	}
	if out.TransferTimeout == 0 {
		out.TransferTimeout = DefaultTransferTimeout
	} else if out.TransferTimeout < MinTransferTimeout {
		out.TransferTimeout = MinTransferTimeout
	}
	if out.ListingTimeout <= 0 {
		out.ListingTimeout = DefaultListingTimeout
	}
	if out.MaxDownloadSpeed < 0 {
		out.MaxDownloadSpeed = 0
	}
	if out.LowSpeedLimit <= 0 {
		out.LowSpeedLimit = DefaultLowSpeedLimit
	}
	if out.LowSpeedWindow <= 0 {
		out.LowSpeedWindow = DefaultLowSpeedWindow
	}
	if out.BatchSize <= 0 {
		out.BatchSize = DefaultBatchSize
	}
	if out.MaxPathLength <= 0 {
		out.MaxPathLength = DefaultMaxPathLength
	}
	if out.RandomLimit < 0 {
		out.RandomLimit = 0
	}
	if strings.TrimSpace(out.UserAgent) == "" {
		out.UserAgent = DefaultUserAgent
	}

	out.Targets = make([]ScrapeTarget, 0, len(c.Targets))
	for _, t := range c.Targets {
		out.Targets = append(out.Targets, t.normalize())
	}
	out.ExcludedPaths = nonEmpty(c.ExcludedPaths, false)
	out.ExcludedFilenames = nonEmpty(c.ExcludedFilenames, false)
	out.SearchTerms = nonEmpty(c.SearchTerms, true)

	return out
}

func (t ScrapeTarget) normalize() ScrapeTarget {
	out := ScrapeTarget{URL: strings.TrimSpace(t.URL)}
	if sub := strings.TrimLeft(filepath.ToSlash(t.DestinationSubDir), "/"); sub != "" {
		out.DestinationSubDir = strings.TrimRight(sub, "/") + "/"
	}
	for _, ext := range t.WantedExtensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			out.WantedExtensions = append(out.WantedExtensions, ext)
		}
	}
	return out
}

// Validate reports configuration problems that must stop a run before any network activity
func (c Config) Validate() error {
	switch c.Mode {
	case ModeSearch, ModeTest, ModeDownload:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, c.Mode)
	}
	if len(c.Targets) == 0 {
		return fmt.Errorf("%w: at least one target is required", ErrInvalidConfig)
	}
	for i, t := range c.Targets {
		if t.URL == "" {
			return fmt.Errorf("%w: target %d has empty url", ErrInvalidConfig, i)
		}
		u, err := url.Parse(t.URL)
		if err != nil {
			return fmt.Errorf("%w: target %d: %v", ErrInvalidConfig, i, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("%w: target %d must use http or https, got %q", ErrInvalidConfig, i, t.URL)
		}
		if u.Host == "" {
			return fmt.Errorf("%w: target %d has no host", ErrInvalidConfig, i)
		}
	}
	if c.Mode != ModeSearch && strings.TrimSpace(c.DestinationRoot) == "" {
		return fmt.Errorf("%w: destination root is required in %s mode", ErrInvalidConfig, c.Mode)
	}
	if c.MaxConcurrentDownloads < 1 || c.MaxConcurrentDownloads > MaxConcurrentDownloadsLimit {
		return fmt.Errorf("%w: max concurrent downloads must be between 1 and %d", ErrInvalidConfig, MaxConcurrentDownloadsLimit)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries cannot be negative", ErrInvalidConfig)
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func nonEmpty(in []string, lower bool) []string {
	var out []string
	for _, s := range in {
		if s == "" {
			continue
		}
		if lower {
			s = strings.ToLower(s)
		}
		out = append(out, s)
	}
	return out
}

// LoggerOrDiscard returns l, or a logger that drops every record when l is nil
func LoggerOrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.New(slog.DiscardHandler)
	}
	return l
}
