package burrow

import (
	"time"

	"github.com/cuemby/burrow/pkg/metrics"
)

func txnMode(write bool) string {
	if write {
		return "write"
	}
	return "read"
}

func recordTxnBegin(write bool) {
	metrics.TransactionsTotal.WithLabelValues(txnMode(write)).Inc()
}

func recordCommit(write bool, d time.Duration, success bool) {
	outcome := "committed"
	if !success {
		outcome = "failed"
	}
	metrics.CommitDuration.WithLabelValues(txnMode(write), outcome).Observe(d.Seconds())
}

func recordQuery(driver string, d time.Duration) {
	metrics.QueryDuration.WithLabelValues(driver).Observe(d.Seconds())
}

func recordWatcherDispatch(delivered bool) {
	outcome := "delivered"
	if !delivered {
		outcome = "dropped"
	}
	metrics.WatcherDispatchTotal.WithLabelValues(outcome).Inc()
}

func recordUniqueViolation() {
	metrics.UniqueViolationsTotal.Inc()
}

func recordCompaction() {
	metrics.CompactionsTotal.Inc()
}

// InstanceMetrics is a point-in-time snapshot exposed through
// Instance.Metrics(), for any host process that wants engine-shaped
// numbers without scraping Prometheus.
type InstanceMetrics struct {
	ID              int32
	Name            string
	Dir             string
	CollectionCount int
	OpenedAt        time.Time
}
