package http

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	minBurst = 4 << 10
	maxBurst = 1 << 20
)

// NewBandwidthLimiter returns a limiter shared by all transfers, or nil when
// bytesPerSecond is not positive.
func NewBandwidthLimiter(bytesPerSecond int64) *rate.Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	burst := bytesPerSecond
	if burst < minBurst {
		burst = minBurst
	}
	if burst > maxBurst {
		burst = maxBurst
	}
	return rate.NewLimiter(rate.Limit(bytesPerSecond), int(burst))
}

type throttledReader struct {
	ctx context.Context
	r   io.Reader
	lim *rate.Limiter
	mon *SpeedMonitor
}

// ThrottleReader makes reads from r wait on lim. A nil limiter returns r unchanged.
func ThrottleReader(ctx context.Context, r io.Reader, lim *rate.Limiter) io.Reader {
	if lim == nil {
		return r
	}
	return &throttledReader{ctx: ctx, r: r, lim: lim}
}

func (t *throttledReader) Read(p []byte) (int, error) {
	if burst := t.lim.Burst(); len(p) > burst {
		p = p[:burst]
	}
	n, err := t.r.Read(p)
	if n > 0 {
		if werr := t.wait(n); werr != nil {
			return n, werr
		}
	}
	return n, err
}

func (t *throttledReader) wait(n int) error {
	if t.mon == nil {
		return t.lim.WaitN(t.ctx, n)
	}
	start := time.Now()
	t.mon.waitStart.Store(start.UnixNano())
	err := t.lim.WaitN(t.ctx, n)
	t.mon.waited.Add(int64(time.Since(start)))
	t.mon.waitStart.Store(0)
	return err
}

// SpeedMonitor aborts a transfer whose throughput stays below a floor for a
// whole window.
type SpeedMonitor struct {
	limit  int64
	window time.Duration
	tick   time.Duration
	bytes  atomic.Int64

	// time spent blocked on a bandwidth limiter, in nanoseconds
	waited    atomic.Int64
	waitStart atomic.Int64
}

// NewSpeedMonitor watches for throughput under limit bytes/s sustained for window
func NewSpeedMonitor(limit int64, window time.Duration) *SpeedMonitor {
	tick := window / 10
	if tick > time.Second {
		tick = time.Second
	}
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	return &SpeedMonitor{limit: limit, window: window, tick: tick}
}

// Reader counts bytes read through r
func (m *SpeedMonitor) Reader(r io.Reader) io.Reader {
	return &countingReader{r: r, n: &m.bytes}
}

// Throttle is ThrottleReader for a monitored transfer. Time spent waiting on
// lim is not counted towards the low-speed window.
func (m *SpeedMonitor) Throttle(ctx context.Context, r io.Reader, lim *rate.Limiter) io.Reader {
	if lim == nil {
		return r
	}
	return &throttledReader{ctx: ctx, r: r, lim: lim, mon: m}
}

// waitedAt returns the limiter wait so far, including a wait still in progress
func (m *SpeedMonitor) waitedAt(now time.Time) time.Duration {
	w := m.waited.Load()
	if start := m.waitStart.Load(); start != 0 {
		if d := now.UnixNano() - start; d > 0 {
			w += d
		}
	}
	return time.Duration(w)
}

// Bytes returns the number of bytes seen so far
func (m *SpeedMonitor) Bytes() int64 {
	return m.bytes.Load()
}

// Watch samples throughput until ctx is done and calls cancel with
// ErrLowSpeed once the rate has been under the limit for the full window.
func (m *SpeedMonitor) Watch(ctx context.Context, cancel context.CancelCauseFunc) {
	if m.limit <= 0 || m.window <= 0 {
		return
	}
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	last := m.bytes.Load()
	lastAt := time.Now()
	lastWaited := m.waitedAt(lastAt)
	var slowFor time.Duration

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			cur := m.bytes.Load()
			waited := m.waitedAt(now)
			if waited < lastWaited {
				waited = lastWaited
			}
			active := now.Sub(lastAt) - (waited - lastWaited)
			delta := cur - last
			last, lastAt, lastWaited = cur, now, waited

			if active <= 0 {
				continue
			}
			if float64(delta)/active.Seconds() >= float64(m.limit) {
				slowFor = 0
				continue
			}
			slowFor += active
			if slowFor >= m.window {
				cancel(ErrLowSpeed)
				return
			}
		}
	}
}

type countingReader struct {
	r io.Reader
	n *atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}
