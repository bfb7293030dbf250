package stats

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/tomgould/Scrape/internal/types"
)

// Aggregator folds outcomes into run stats and reports progress
type Aggregator struct {
	mu        sync.Mutex
	stats     types.Stats
	processed int

	progress types.ProgressFunc
	logger   *slog.Logger
	metrics  *Metrics
}

// NewAggregator starts the run clock. progress and metrics may be nil.
func NewAggregator(progress types.ProgressFunc, logger *slog.Logger, metrics *Metrics) *Aggregator {
	return &Aggregator{
		stats:    types.Stats{StartTime: time.Now()},
		progress: progress,
		logger:   types.LoggerOrDiscard(logger),
		metrics:  metrics,
	}
}

// SetDiscovered records how many files discovery produced
func (a *Aggregator) SetDiscovered(n int) {
	a.mu.Lock()
	a.stats.Discovered = n
	a.mu.Unlock()
	a.metrics.addDiscovered(n)
}

// SetTotal records how many items will be scheduled
func (a *Aggregator) SetTotal(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.Total = n
}

// Record folds one terminal outcome and invokes the progress callback
func (a *Aggregator) Record(o types.Outcome) {
	a.mu.Lock()
	switch o.Status {
	case types.StatusSuccess:
		a.stats.Success++
		a.stats.BytesDownloaded += o.TotalBytes
	case types.StatusFailed:
		a.stats.Failed++
	case types.StatusSkipped:
		a.stats.Skipped++
	}
	a.stats.Retries += o.RetriesUsed
	a.processed++
	if a.processed > a.stats.Total {
		a.stats.Total = a.processed
	}
	event := types.ProgressEvent{
		Current: a.processed,
		Total:   a.stats.Total,
		Percent: percent(a.processed, a.stats.Total),
		Outcome: o,
	}
	a.mu.Unlock()

	a.metrics.observe(o)
	a.logOutcome(o)
	if a.progress != nil {
		a.progress(event)
	}
}

// Snapshot returns a copy of the current counters
func (a *Aggregator) Snapshot() types.Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// Finish stamps the end time and returns the final stats
func (a *Aggregator) Finish() types.Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stats.EndTime.IsZero() {
		a.stats.EndTime = time.Now()
	}
	return a.stats
}

// LogSummary writes the end-of-session line
func (a *Aggregator) LogSummary() {
	s := a.Snapshot()
	a.logger.Info("session finished",
		"discovered", s.Discovered,
		"total", s.Total,
		"success", s.Success,
		"failed", s.Failed,
		"skipped", s.Skipped,
		"retries", s.Retries,
		"downloaded_mb", round2(float64(s.BytesDownloaded)/(1<<20)),
		"elapsed_s", round2(s.Duration().Seconds()),
		"avg_kbps", round2(s.AverageSpeed()/1024),
	)
}

func (a *Aggregator) logOutcome(o types.Outcome) {
	level := slog.LevelInfo
	if o.Status != types.StatusSuccess {
		level = slog.LevelWarn
	}
	attrs := []any{
		"status", o.Status.String(),
		"file", o.Item.FileName,
		"size_kb", round2(float64(o.BytesTransferred) / 1024),
		"time_s", round2(o.Elapsed.Seconds()),
		"retries", o.RetriesUsed,
	}
	if o.Error != "" {
		attrs = append(attrs, "error", o.Error)
	}
	a.logger.Log(context.Background(), level, "download finished", attrs...)
}

func percent(current, total int) float64 {
	if total <= 0 {
		return 0
	}
	return round2(float64(current) / float64(total) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
