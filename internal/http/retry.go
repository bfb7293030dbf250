package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrLowSpeed marks a transfer aborted because throughput stayed under the
// configured floor for the whole window.
var ErrLowSpeed = errors.New("transfer speed below limit")

// RetryPolicy holds retry configuration
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// DefaultRetryPolicy returns default retry configuration
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		Delay:      2 * time.Second,
	}
}

// ShouldRetry reports whether a failed attempt may be tried again.
// attempt counts retries already used.
func (p RetryPolicy) ShouldRetry(attempt int, err error) bool {
	if err == nil || attempt >= p.MaxRetries {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var te *TransferError
	if errors.As(err, &te) {
		return te.Retryable()
	}
	return true
}

// Wait sleeps for the retry delay or until ctx is done
func (p RetryPolicy) Wait(ctx context.Context) error {
	if p.Delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// TransferError wraps a failed request with its HTTP status
type TransferError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransferError) Error() string {
	if e.Err != nil {
		if e.StatusCode != 0 {
			return fmt.Sprintf("%s: status %d: %v", e.URL, e.StatusCode, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("%s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is transient. Transport errors,
// timeouts, low-speed aborts and any non-2xx status qualify; cancellation
// by the caller does not.
func (e *TransferError) Retryable() bool {
	if e.Err != nil && errors.Is(e.Err, context.Canceled) {
		return false
	}
	return true
}
