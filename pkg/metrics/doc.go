/*
Package metrics provides Prometheus metrics collection and HTTP health/
readiness/liveness endpoints for a process embedding Burrow.

# Metrics

Unlike a long-running cluster daemon with a polling collector, Burrow has
no background manager to scrape: every metric here is pushed directly by
the code path that produces the measurement (OpenInstance increments
InstancesOpen, Txn.Commit observes CommitDuration, the watcher registry's
dispatch increments WatcherDispatchTotal). This matches an embedded
library's usage pattern — there is no separate collection goroutine to
start or stop.

Metric categories:

  - Instances: InstancesOpen (gauge)
  - Transactions: TransactionsTotal (counter, by mode), CommitDuration
    (histogram, by mode and outcome), CursorPoolIdle (gauge)
  - Queries: QueryDuration (histogram, by driver: "index" or "primary")
  - Watchers: WatcherDispatchTotal (counter, by outcome: "delivered" or
    "dropped")
  - Pipeline: UniqueViolationsTotal, CompactionsTotal (counters)

Handler() returns the standard promhttp.Handler() for mounting at
/metrics in a host process that chooses to expose one; the library
packages never start an HTTP server, only the CLI's serve command does.

# Health

HealthChecker tracks named components (whatever the embedding process
registers — typically "substrate" for the KV backend and "instance" for
OpenInstance having completed); GetHealth aggregates them for a
liveness-style check, GetReadiness additionally requires the critical
subset named via SetCriticalComponents to be present and healthy.
HealthHandler, ReadyHandler, and LivenessHandler wrap these as
http.HandlerFunc for a host process's own mux.
*/
package metrics
