package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tomgould/Scrape/internal/config"
	"github.com/tomgould/Scrape/internal/storage"
	"github.com/tomgould/Scrape/internal/types"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// buildLogger creates the run logger. Logs go to cfg.File when set (appended),
// otherwise to fallback. The returned func closes the file.
func buildLogger(cfg config.LoggingConfig, fallback io.Writer) (*slog.Logger, func() error, error) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, nil, fmt.Errorf("unsupported log level %q", cfg.Level)
	}

	out := fallback
	closeFn := func() error { return nil }
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closeFn = f.Close
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Structured {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler), closeFn, nil
}

// progressBar renders download progress with mpb
type progressBar struct {
	p    *mpb.Progress
	bar  *mpb.Bar
	last time.Time
}

func newProgressBar(w io.Writer, label string) *progressBar {
	p := mpb.New(mpb.WithOutput(w), mpb.WithWidth(48), mpb.WithRefreshRate(150*time.Millisecond))
	bar := p.AddBar(0,
		mpb.PrependDecorators(
			decor.Name(label, decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.CountersNoUnit("[%d / %d]", decor.WCSyncWidth),
			decor.Percentage(decor.WCSyncSpace),
			decor.OnComplete(
				decor.EwmaETA(decor.ET_STYLE_GO, 30, decor.WCSyncSpace), "done",
			),
		),
	)
	return &progressBar{p: p, bar: bar, last: time.Now()}
}

// update is a types.ProgressFunc. Events arrive one per outcome from a single goroutine.
func (pb *progressBar) update(e types.ProgressEvent) {
	now := time.Now()
	pb.bar.SetTotal(int64(e.Total), false)
	pb.bar.EwmaIncrement(now.Sub(pb.last))
	pb.last = now
}

// finish completes the bar at its current count and waits for the final render
func (pb *progressBar) finish() {
	pb.bar.SetTotal(-1, true)
	pb.p.Wait()
}

var (
	summaryBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD")).
			Padding(0, 2)
	summaryTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4"))
	failedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
)

// renderSummary formats run statistics as a bordered box
func renderSummary(title string, st types.Stats) string {
	failed := fmt.Sprintf("%d", st.Failed)
	if st.Failed > 0 {
		failed = failedStyle.Render(failed)
	}
	lines := []string{
		summaryTitle.Render(title),
		"",
		fmt.Sprintf("Discovered:  %d", st.Discovered),
		fmt.Sprintf("Total:       %d", st.Total),
		fmt.Sprintf("Success:     %d", st.Success),
		fmt.Sprintf("Failed:      %s", failed),
		fmt.Sprintf("Skipped:     %d", st.Skipped),
		fmt.Sprintf("Retries:     %d", st.Retries),
		fmt.Sprintf("Downloaded:  %.2f MB", float64(st.BytesDownloaded)/(1024*1024)),
		fmt.Sprintf("Elapsed:     %s", st.Duration().Round(time.Millisecond)),
		fmt.Sprintf("Avg speed:   %.2f KB/s", st.AverageSpeed()/1024),
	}
	return summaryBox.Render(strings.Join(lines, "\n"))
}

// startMetrics serves reg on addr until the returned stop func is called
func startMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// openLedgers opens the outcome report and database selected in cfg under its cache path
func openLedgers(cfg config.Config) ([]storage.Ledger, func(), error) {
	var ledgers []storage.Ledger
	closeAll := func() {
		for _, l := range ledgers {
			_ = l.Close()
		}
	}
	if cfg.CachePath == "" || (!cfg.Report.JSONL && !cfg.Report.SQLite) {
		return nil, closeAll, nil
	}
	if err := os.MkdirAll(cfg.CachePath, 0755); err != nil {
		return nil, closeAll, fmt.Errorf("create cache directory: %w", err)
	}

	if cfg.Report.JSONL {
		report, err := storage.New(cfg.CachePath)
		if err != nil {
			return nil, closeAll, err
		}
		ledgers = append(ledgers, report)
	}
	if cfg.Report.SQLite {
		db, err := storage.NewSQLiteStorage(filepath.Join(cfg.CachePath, storage.DatabaseFileName))
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		ledgers = append(ledgers, db)
	}
	return ledgers, closeAll, nil
}
