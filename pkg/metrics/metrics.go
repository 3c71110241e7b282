package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	InstancesOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_instances_open",
			Help: "Number of live instances in this process",
		},
	)

	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_transactions_total",
			Help: "Total number of transactions begun, by write/read",
		},
		[]string{"mode"},
	)

	CommitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burrow_commit_duration_seconds",
			Help:    "Time spent in substrate commit, by write/read and outcome",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode", "outcome"},
	)

	CursorPoolIdle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_cursor_pool_idle",
			Help: "Number of idle pooled cursors across all active transactions",
		},
	)

	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burrow_query_duration_seconds",
			Help:    "Query planning and cursor execution duration, by driver",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"driver"},
	)

	WatcherDispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_watcher_dispatch_total",
			Help: "Total number of watcher events delivered or dropped",
		},
		[]string{"outcome"},
	)

	UniqueViolationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_unique_violations_total",
			Help: "Total number of unique-index insert/update collisions",
		},
	)

	CompactionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_compactions_total",
			Help: "Total number of hot-copy compactions performed at open",
		},
	)
)

func init() {
	prometheus.MustRegister(
		InstancesOpen,
		TransactionsTotal,
		CommitDuration,
		CursorPoolIdle,
		QueryDuration,
		WatcherDispatchTotal,
		UniqueViolationsTotal,
		CompactionsTotal,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
