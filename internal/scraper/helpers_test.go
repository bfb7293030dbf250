package scraper

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"github.com/tomgould/Scrape/internal/downloader"
	"github.com/tomgould/Scrape/internal/types"
)

// staticLister returns the same body for every listing
type staticLister struct {
	body  []byte
	calls atomic.Int32
}

func (l *staticLister) FetchListing(ctx context.Context, rawURL string) ([]byte, error) {
	l.calls.Add(1)
	return l.body, nil
}

// slowTransferer writes a tiny file after delay and calls onStart before the first transfer
type slowTransferer struct {
	delay   time.Duration
	onStart func()
	started atomic.Bool
}

func (s *slowTransferer) Transfer(ctx context.Context, item types.DownloadItem) downloader.TransferResult {
	if s.started.CompareAndSwap(false, true) && s.onStart != nil {
		s.onStart()
	}
	time.Sleep(s.delay)
	if err := os.WriteFile(item.LocalPath, []byte("x"), 0644); err != nil {
		return downloader.TransferResult{Err: err}
	}
	return downloader.TransferResult{HTTPStatus: 200, Bytes: 1}
}
