package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	customhttp "github.com/tomgould/Scrape/internal/http"
	"github.com/tomgould/Scrape/internal/types"
)

const (
	dirMode = 0775

	// upper bound on how long the control loop blocks waiting for a completion
	defaultPollInterval = 500 * time.Millisecond
)

var (
	errPathTooLong = errors.New("destination path too long")
	errCancelled   = errors.New("cancelled")
)

// Recorder receives every terminal outcome, one call at a time
type Recorder interface {
	Record(types.Outcome)
}

// transferAttempt is the scheduler's state for one in-flight item
type transferAttempt struct {
	item         types.DownloadItem
	retries      int
	started      time.Time
	partialBytes int64
	bytes        int64
}

type completion struct {
	att       *transferAttempt
	result    TransferResult
	cancelled bool
}

// Scheduler drains download items with bounded concurrency
type Scheduler struct {
	config       types.Config
	transferer   *SafeTransferer
	recorder     Recorder
	logger       *slog.Logger
	retry        customhttp.RetryPolicy
	pollInterval time.Duration
}

// New creates a scheduler. config is expected to be normalized; recorder may be nil.
func New(config types.Config, transferer Transferer, recorder Recorder, logger *slog.Logger) *Scheduler {
	logger = types.LoggerOrDiscard(logger)
	return &Scheduler{
		config:       config,
		transferer:   NewSafeTransferer(transferer, logger),
		recorder:     recorder,
		logger:       logger,
		retry:        customhttp.RetryPolicy{MaxRetries: config.MaxRetries, Delay: config.RetryDelay},
		pollInterval: defaultPollInterval,
	}
}

// Schedule processes items in sequential batches and returns one outcome per
// item in completion order. Once ctx is cancelled no new transfer starts;
// in-flight transfers run to completion or timeout and everything not yet
// started is reported as skipped.
func (s *Scheduler) Schedule(ctx context.Context, items []types.DownloadItem) []types.Outcome {
	outcomes := make([]types.Outcome, 0, len(items))
	if s.config.Mode == types.ModeSearch {
		return outcomes
	}

	batchSize := s.config.BatchSize
	if batchSize <= 0 {
		batchSize = types.DefaultBatchSize
	}
	batches := (len(items) + batchSize - 1) / batchSize

	for b := 0; b < batches; b++ {
		start := b * batchSize
		end := min(start+batchSize, len(items))
		if batches > 1 {
			s.logger.Info("processing batch", "batch", b+1, "of", batches, "items", end-start)
		}
		outcomes = append(outcomes, s.runBatch(ctx, items[start:end])...)
	}
	if n := s.transferer.PanicCount(); n > 0 {
		s.logger.Warn("recovered panics during transfers", "count", n)
	}
	return outcomes
}

// runBatch is the control loop. It alone touches the active count and the
// outcome list; attempts report back over done.
func (s *Scheduler) runBatch(ctx context.Context, batch []types.DownloadItem) []types.Outcome {
	outcomes := make([]types.Outcome, 0, len(batch))
	emit := func(o types.Outcome) {
		o.FinishedAt = time.Now()
		outcomes = append(outcomes, o)
		if s.recorder != nil {
			s.recorder.Record(o)
		}
	}

	// in-flight transfers are allowed to finish after cancellation
	transferCtx := context.WithoutCancel(ctx)
	maxActive := max(s.config.MaxConcurrentDownloads, 1)
	done := make(chan completion, maxActive)
	active := 0
	next := 0

	timer := time.NewTimer(s.pollInterval)
	defer timer.Stop()

	for next < len(batch) || active > 0 {
		for active < maxActive && next < len(batch) && ctx.Err() == nil {
			item := batch[next]
			next++

			if o, ok := s.prepare(item); !ok {
				emit(o)
				continue
			}
			if s.config.Mode == types.ModeTest {
				emit(s.placeholder(item))
				continue
			}

			active++
			att := &transferAttempt{item: item}
			go s.attempt(transferCtx, att, done)
		}

		if ctx.Err() != nil {
			for ; next < len(batch); next++ {
				emit(types.Outcome{Item: batch[next], Status: types.StatusSkipped, Error: errCancelled.Error()})
			}
		}
		if active == 0 {
			continue
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.pollInterval)

		var ctxDone <-chan struct{}
		if ctx.Err() == nil {
			ctxDone = ctx.Done()
		}

		select {
		case c := <-done:
			if o, terminal := s.complete(ctx, transferCtx, c, done); terminal {
				active--
				emit(o)
			}
		case <-timer.C:
		case <-ctxDone:
		}
	}
	return outcomes
}

// prepare runs the checks that never warrant a retry
func (s *Scheduler) prepare(item types.DownloadItem) (types.Outcome, bool) {
	if s.config.MaxPathLength > 0 && len(item.LocalPath) > s.config.MaxPathLength {
		return types.Outcome{
			Item:   item,
			Status: types.StatusSkipped,
			Error:  fmt.Sprintf("%v: %d > %d", errPathTooLong, len(item.LocalPath), s.config.MaxPathLength),
		}, false
	}
	if err := os.MkdirAll(item.DestinationDir, dirMode); err != nil {
		return types.Outcome{
			Item:   item,
			Status: types.StatusFailed,
			Error:  fmt.Sprintf("create directory: %v", err),
		}, false
	}
	return types.Outcome{}, true
}

// placeholder creates an empty file in place of a transfer
func (s *Scheduler) placeholder(item types.DownloadItem) types.Outcome {
	start := time.Now()
	f, err := os.OpenFile(item.LocalPath, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return types.Outcome{Item: item, Status: types.StatusFailed, Error: fmt.Sprintf("create placeholder: %v", err)}
	}
	if err := f.Close(); err != nil {
		return types.Outcome{Item: item, Status: types.StatusFailed, Error: fmt.Sprintf("create placeholder: %v", err)}
	}
	return types.Outcome{Item: item, Status: types.StatusSuccess, Elapsed: time.Since(start)}
}

func (s *Scheduler) attempt(ctx context.Context, att *transferAttempt, done chan<- completion) {
	att.started = time.Now()
	res := s.transferer.Transfer(ctx, att.item)
	att.partialBytes = res.ResumedFrom
	att.bytes += res.Bytes
	done <- completion{att: att, result: res}
}

// complete folds one finished attempt. It returns the terminal outcome, or
// false when the item was handed to a retry and keeps its slot.
func (s *Scheduler) complete(ctx, transferCtx context.Context, c completion, done chan<- completion) (types.Outcome, bool) {
	att := c.att
	res := c.result
	elapsed := time.Since(att.started)

	o := types.Outcome{
		Item:             att.item,
		HTTPStatus:       res.HTTPStatus,
		BytesTransferred: res.Bytes,
		TotalBytes:       att.bytes,
		Elapsed:          elapsed,
		RetriesUsed:      att.retries,
	}

	if c.cancelled {
		o.Status = types.StatusSkipped
		o.Error = errCancelled.Error()
		return o, true
	}

	if res.Err == nil {
		o.Status = types.StatusSuccess
		if secs := elapsed.Seconds(); secs > 0 {
			o.Throughput = float64(res.Bytes) / secs
		}
		return o, true
	}

	if s.retry.ShouldRetry(att.retries, res.Err) {
		if ctx.Err() != nil {
			// keep the partial file so a later run can resume it
			o.Status = types.StatusSkipped
			o.Error = fmt.Sprintf("%v after: %v", errCancelled, res.Err)
			return o, true
		}
		att.retries++
		s.logger.Warn("transfer failed, retrying",
			"file", att.item.FileName,
			"url", att.item.SourceURL,
			"attempt", att.retries,
			"max_retries", s.retry.MaxRetries,
			"partial_bytes", res.ResumedFrom+res.Bytes,
			"error", res.Err,
		)
		go func() {
			if err := s.retry.Wait(ctx); err != nil {
				done <- completion{att: att, result: TransferResult{Err: err}, cancelled: true}
				return
			}
			s.attempt(transferCtx, att, done)
		}()
		return types.Outcome{}, false
	}

	if err := os.Remove(PartialPath(att.item.LocalPath)); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("could not remove partial file", "path", PartialPath(att.item.LocalPath), "error", err)
	}
	o.Status = types.StatusFailed
	o.Error = res.Err.Error()
	return o, true
}
