// Package scraper wires discovery, scheduling and bookkeeping into one run.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"

	"github.com/google/uuid"
	"github.com/tomgould/Scrape/internal/crawler"
	"github.com/tomgould/Scrape/internal/downloader"
	customhttp "github.com/tomgould/Scrape/internal/http"
	"github.com/tomgould/Scrape/internal/stats"
	"github.com/tomgould/Scrape/internal/storage"
	"github.com/tomgould/Scrape/internal/types"
)

// RunStore keeps per-run summaries. SQLiteStorage implements it.
type RunStore interface {
	SaveRun(storage.Run) error
}

// Result is everything a run produced
type Result struct {
	RunID    uuid.UUID
	Items    []types.DownloadItem
	Outcomes []types.Outcome
	Stats    types.Stats
}

// Option customises a Scraper
type Option func(*Scraper)

// WithLister replaces the HTTP listing fetcher
func WithLister(l crawler.Lister) Option {
	return func(s *Scraper) { s.lister = l }
}

// WithTransferer replaces the HTTP transferer
func WithTransferer(t downloader.Transferer) Option {
	return func(s *Scraper) { s.transferer = t }
}

// WithMetrics reports outcomes to prometheus collectors
func WithMetrics(m *stats.Metrics) Option {
	return func(s *Scraper) { s.metrics = m }
}

// WithLedger persists every outcome to l. A ledger that is also a RunStore
// receives the run summary at the end.
func WithLedger(l storage.Ledger) Option {
	return func(s *Scraper) {
		if l != nil {
			s.ledgers = append(s.ledgers, l)
		}
	}
}

// WithRand fixes the source used for the random subset
func WithRand(r *rand.Rand) Option {
	return func(s *Scraper) { s.rng = r }
}

// Scraper runs one configured scrape. It holds no state between runs.
type Scraper struct {
	config     types.Config
	lister     crawler.Lister
	transferer downloader.Transferer
	metrics    *stats.Metrics
	ledgers    []storage.Ledger
	rng        *rand.Rand
}

// New creates a scraper for config. Configuration errors surface from Run.
func New(config types.Config, opts ...Option) *Scraper {
	s := &Scraper{config: config}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run validates the configuration, discovers files, applies the random limit
// and, unless in search mode, schedules the transfers. A cancelled ctx returns
// the partial result together with the context error.
func (s *Scraper) Run(ctx context.Context) (*Result, error) {
	cfg := s.config.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sess := s.start(cfg)
	lister := s.lister
	if lister == nil {
		lister = customhttp.NewListingFetcher(sess.client, sess.headers, cfg.ListingTimeout)
	}

	items, err := crawler.New(sess.cfg, lister, sess.logger).Discover(ctx, sess.cfg.Targets)
	sess.agg.SetDiscovered(len(items))
	if err != nil {
		sess.result.Items = items
		sess.result.Stats = sess.agg.Finish()
		return sess.result, err
	}

	items = s.limit(items, cfg.RandomLimit)
	sess.result.Items = items

	if cfg.Mode == types.ModeSearch {
		sess.result.Stats = sess.agg.Finish()
		sess.logger.Info("search finished", "found", len(items))
		s.saveRun(sess)
		return sess.result, nil
	}

	s.schedule(ctx, sess, items)
	return sess.result, ctx.Err()
}

// Retry schedules items directly, without discovery. It re-attempts files an
// earlier run could not finish; partial files left behind are resumed.
func (s *Scraper) Retry(ctx context.Context, items []types.DownloadItem) (*Result, error) {
	cfg := s.config.Normalize()
	if cfg.Mode == types.ModeSearch {
		return nil, fmt.Errorf("%w: nothing to retry in search mode", types.ErrInvalidConfig)
	}

	sess := s.start(cfg)
	sess.agg.SetDiscovered(len(items))
	sess.result.Items = items
	s.schedule(ctx, sess, items)
	return sess.result, ctx.Err()
}

// session is the per-run state shared by Run and Retry
type session struct {
	cfg     types.Config
	runID   uuid.UUID
	logger  *slog.Logger
	client  *http.Client
	headers customhttp.Headers
	agg     *stats.Aggregator
	result  *Result
}

func (s *Scraper) start(cfg types.Config) *session {
	runID := uuid.New()
	logger := types.LoggerOrDiscard(cfg.Logger).With("run_id", runID.String())
	cfg.Logger = logger

	logger.Info("session started",
		"mode", cfg.Mode,
		"targets", len(cfg.Targets),
		"destination", cfg.DestinationRoot,
		"concurrency", cfg.MaxConcurrentDownloads,
		"max_retries", cfg.MaxRetries,
		"retry_delay", cfg.RetryDelay,
		"max_speed", cfg.MaxDownloadSpeed,
	)

	return &session{
		cfg:    cfg,
		runID:  runID,
		logger: logger,
		client: customhttp.NewClient(customhttp.ClientOptions{
			ConnectTimeout:  cfg.ConnectionTimeout,
			MaxConnsPerHost: cfg.MaxConcurrentDownloads,
		}),
		headers: customhttp.NewHeaders(cfg.UserAgent),
		agg:     stats.NewAggregator(cfg.Progress, logger, s.metrics),
		result:  &Result{RunID: runID},
	}
}

func (s *Scraper) schedule(ctx context.Context, sess *session, items []types.DownloadItem) {
	transferer := s.transferer
	if transferer == nil {
		limiter := customhttp.NewBandwidthLimiter(sess.cfg.MaxDownloadSpeed)
		transferer = downloader.NewHTTPTransferer(sess.client, sess.headers, limiter, sess.cfg)
	}

	sess.agg.SetTotal(len(items))
	rec := &recorder{runID: sess.runID.String(), agg: sess.agg, ledgers: s.ledgers, logger: sess.logger}
	sess.result.Outcomes = downloader.New(sess.cfg, transferer, rec, sess.logger).Schedule(ctx, items)
	sess.result.Stats = sess.agg.Finish()
	sess.agg.LogSummary()
	s.saveRun(sess)
}

// limit shuffles items and keeps at most n of them. n <= 0 keeps everything in order.
func (s *Scraper) limit(items []types.DownloadItem, n int) []types.DownloadItem {
	if n <= 0 || len(items) == 0 {
		return items
	}
	shuffle := rand.Shuffle
	if s.rng != nil {
		shuffle = s.rng.Shuffle
	}
	shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
	if n < len(items) {
		items = items[:n]
	}
	return items
}

func (s *Scraper) saveRun(sess *session) {
	targets := make([]string, 0, len(sess.cfg.Targets))
	for _, t := range sess.cfg.Targets {
		targets = append(targets, t.URL)
	}
	st := sess.result.Stats
	run := storage.Run{
		ID:         sess.runID.String(),
		Mode:       sess.cfg.Mode,
		Targets:    targets,
		StartedAt:  st.StartTime,
		FinishedAt: st.EndTime,
		Stats:      st,
	}
	for _, l := range s.ledgers {
		store, ok := l.(RunStore)
		if !ok {
			continue
		}
		if err := store.SaveRun(run); err != nil {
			sess.logger.Warn("could not save run summary", "error", err)
		}
	}
}

// recorder feeds the aggregator and every ledger from the scheduler's control loop
type recorder struct {
	runID   string
	agg     *stats.Aggregator
	ledgers []storage.Ledger
	logger  *slog.Logger
}

func (r *recorder) Record(o types.Outcome) {
	r.agg.Record(o)
	if len(r.ledgers) == 0 {
		return
	}
	record := storage.NewRecord(r.runID, o)
	for _, l := range r.ledgers {
		if err := l.SaveRecord(record); err != nil {
			r.logger.Warn("could not persist outcome", "file", o.Item.FileName, "error", err)
		}
	}
}
