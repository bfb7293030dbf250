package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	customhttp "github.com/tomgould/Scrape/internal/http"
	"github.com/tomgould/Scrape/internal/types"
	"golang.org/x/time/rate"
)

// PartialSuffix is appended to a file's final path while it is being transferred
const PartialSuffix = ".part"

// PartialPath returns where in-progress bytes for localPath are kept
func PartialPath(localPath string) string {
	return localPath + PartialSuffix
}

// TransferResult describes one attempt
type TransferResult struct {
	HTTPStatus  int
	Bytes       int64 // bytes written by this attempt
	ResumedFrom int64 // bytes already on disk when the attempt started
	Err         error
}

// Transferer moves one item from its source to its partial file and, on
// success, to its final path.
type Transferer interface {
	Transfer(ctx context.Context, item types.DownloadItem) TransferResult
}

// HTTPTransferer downloads over HTTP with resume, throttling and a low-speed abort
type HTTPTransferer struct {
	client         *http.Client
	headers        customhttp.Headers
	limiter        *rate.Limiter
	timeout        time.Duration
	lowSpeedLimit  int64
	lowSpeedWindow time.Duration
}

// NewHTTPTransferer builds a transferer from a normalized config. limiter may be nil.
func NewHTTPTransferer(client *http.Client, headers customhttp.Headers, limiter *rate.Limiter, config types.Config) *HTTPTransferer {
	return &HTTPTransferer{
		client:         client,
		headers:        headers,
		limiter:        limiter,
		timeout:        config.TransferTimeout,
		lowSpeedLimit:  config.LowSpeedLimit,
		lowSpeedWindow: config.LowSpeedWindow,
	}
}

// Transfer performs a single attempt. Existing partial bytes are resumed with
// a Range request; a server that ignores the range gets a fresh file.
func (t *HTTPTransferer) Transfer(ctx context.Context, item types.DownloadItem) TransferResult {
	partial := PartialPath(item.LocalPath)
	var offset int64
	if fi, err := os.Stat(partial); err == nil {
		offset = fi.Size()
	}
	res := TransferResult{ResumedFrom: offset}

	if t.timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, t.timeout)
		defer cancelTimeout()
	}
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.SourceURL, nil)
	if err != nil {
		res.Err = &customhttp.TransferError{URL: item.SourceURL, Err: err}
		return res
	}
	t.headers.Apply(req)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := t.client.Do(req)
	if err != nil {
		res.Err = t.failure(ctx, item.SourceURL, 0, err)
		return res
	}
	defer resp.Body.Close()
	res.HTTPStatus = resp.StatusCode

	flags := os.O_WRONLY | os.O_CREATE
	switch {
	case resp.StatusCode == http.StatusPartialContent && offset > 0:
		if start, ok := contentRangeStart(resp.Header.Get("Content-Range")); ok && start != offset {
			_ = os.Remove(partial)
			res.ResumedFrom = 0
			res.Err = &customhttp.TransferError{URL: item.SourceURL, StatusCode: resp.StatusCode,
				Err: fmt.Errorf("server resumed at byte %d, expected %d", start, offset)}
			return res
		}
		flags |= os.O_APPEND
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		flags |= os.O_TRUNC
		res.ResumedFrom = 0
	default:
		if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable {
			// partial is at least as long as the remote file; start over next time
			_ = os.Remove(partial)
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		res.Err = &customhttp.TransferError{URL: item.SourceURL, StatusCode: resp.StatusCode}
		return res
	}

	f, err := os.OpenFile(partial, flags, 0644)
	if err != nil {
		res.Err = &customhttp.TransferError{URL: item.SourceURL, StatusCode: resp.StatusCode, Err: err}
		return res
	}

	monitor := customhttp.NewSpeedMonitor(t.lowSpeedLimit, t.lowSpeedWindow)
	go monitor.Watch(ctx, cancel)

	body := monitor.Throttle(ctx, monitor.Reader(resp.Body), t.limiter)
	n, copyErr := io.Copy(f, body)
	closeErr := f.Close()
	res.Bytes = n

	if copyErr != nil {
		res.Err = t.failure(ctx, item.SourceURL, resp.StatusCode, copyErr)
		return res
	}
	if closeErr != nil {
		res.Err = &customhttp.TransferError{URL: item.SourceURL, StatusCode: resp.StatusCode, Err: closeErr}
		return res
	}
	if err := os.Rename(partial, item.LocalPath); err != nil {
		res.Err = &customhttp.TransferError{URL: item.SourceURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("finalize: %w", err)}
		return res
	}
	return res
}

// failure attributes context cancellation to the low-speed monitor when it fired
func (t *HTTPTransferer) failure(ctx context.Context, url string, status int, err error) error {
	if errors.Is(context.Cause(ctx), customhttp.ErrLowSpeed) {
		err = customhttp.ErrLowSpeed
	}
	return &customhttp.TransferError{URL: url, StatusCode: status, Err: err}
}

// contentRangeStart parses "bytes START-END/TOTAL"
func contentRangeStart(h string) (int64, bool) {
	h = strings.TrimSpace(h)
	if !strings.HasPrefix(h, "bytes ") {
		return 0, false
	}
	rng := strings.TrimPrefix(h, "bytes ")
	dash := strings.IndexByte(rng, '-')
	if dash <= 0 {
		return 0, false
	}
	start, err := strconv.ParseInt(rng[:dash], 10, 64)
	if err != nil {
		return 0, false
	}
	return start, true
}
