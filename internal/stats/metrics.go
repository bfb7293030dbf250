package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tomgould/Scrape/internal/types"
)

// Metrics exposes run counters to Prometheus
type Metrics struct {
	outcomes   *prometheus.CounterVec
	bytes      prometheus.Counter
	retries    prometheus.Counter
	discovered prometheus.Counter
	transfer   prometheus.Histogram
}

// NewMetrics registers the collectors on reg. Register once per registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scrape",
			Name:      "outcomes_total",
			Help:      "Terminal download outcomes by status.",
		}, []string{"status"}),
		bytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "scrape",
			Name:      "bytes_downloaded_total",
			Help:      "Bytes written by successful transfers.",
		}),
		retries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "scrape",
			Name:      "retries_total",
			Help:      "Transfer retries across all items.",
		}),
		discovered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "scrape",
			Name:      "files_discovered_total",
			Help:      "Files emitted by listing discovery.",
		}),
		transfer: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "scrape",
			Name:      "transfer_seconds",
			Help:      "Duration of the final attempt for each item.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		}),
	}
}

func (m *Metrics) observe(o types.Outcome) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(o.Status.String()).Inc()
	m.retries.Add(float64(o.RetriesUsed))
	if o.Status == types.StatusSuccess {
		m.bytes.Add(float64(o.TotalBytes))
		m.transfer.Observe(o.Elapsed.Seconds())
	}
}

func (m *Metrics) addDiscovered(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.discovered.Add(float64(n))
}
