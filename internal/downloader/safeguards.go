package downloader

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"

	"github.com/tomgould/Scrape/internal/types"
)

// SafeTransferer wraps a Transferer with panic recovery
type SafeTransferer struct {
	next       Transferer
	logger     *slog.Logger
	panicCount atomic.Int64
}

// NewSafeTransferer creates a safe transferer wrapper
func NewSafeTransferer(next Transferer, logger *slog.Logger) *SafeTransferer {
	return &SafeTransferer{
		next:   next,
		logger: types.LoggerOrDiscard(logger),
	}
}

// Transfer runs the wrapped transfer and turns a panic into a failed attempt
func (st *SafeTransferer) Transfer(ctx context.Context, item types.DownloadItem) (res TransferResult) {
	defer func() {
		if r := recover(); r != nil {
			st.panicCount.Add(1)
			st.logger.Error("panic during transfer",
				"url", item.SourceURL,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			res = TransferResult{Err: fmt.Errorf("panic during transfer: %v", r)}
		}
	}()

	if st.next == nil {
		return TransferResult{Err: fmt.Errorf("no transferer configured")}
	}
	return st.next.Transfer(ctx, item)
}

// PanicCount returns total number of panics recovered
func (st *SafeTransferer) PanicCount() int64 {
	return st.panicCount.Load()
}
