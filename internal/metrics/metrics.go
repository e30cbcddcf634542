// Package metrics exposes Prometheus counters for runs, battles, matchmaking
// and the HTTP surface on a dedicated registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "runmatch"

// Custom registry to avoid default Go metrics.
var registry = prometheus.NewRegistry()

var (
	auto = promauto.With(registry)

	runsCreated = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "runs",
		Name:      "created_total",
		Help:      "Runs created, by faction",
	}, []string{"faction"})

	runsFinished = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "runs",
		Name:      "finished_total",
		Help:      "Runs that reached a terminal status",
	}, []string{"status"})

	battles = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "battles",
		Name:      "total",
		Help:      "Battles resolved, by result and opponent kind",
	}, []string{"result", "opponent"})

	replayFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "battles",
		Name:      "replay_failures_total",
		Help:      "Battle logs that could not be stored after all retries",
	})

	opponents = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "matchmaking",
		Name:      "opponents_total",
		Help:      "Opponents handed out, by kind and difficulty",
	}, []string{"kind", "difficulty"})

	snapshotsSaved = auto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "matchmaking",
		Name:      "snapshots_saved_total",
		Help:      "Snapshots added to the pool",
	})

	snapshotsEvicted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "matchmaking",
		Name:      "snapshots_evicted_total",
		Help:      "Snapshots evicted by the per-player cap",
	})

	snapshotsSwept = auto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "matchmaking",
		Name:      "snapshots_swept_total",
		Help:      "Snapshots removed by the TTL sweep",
	})

	httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests, by route, method and status code",
	}, []string{"route", "method", "code"})

	httpDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})
)

// RecordRunCreated counts a new run.
func RecordRunCreated(factionID string) {
	runsCreated.WithLabelValues(factionID).Inc()
}

// RecordRunFinished counts a run reaching won or lost.
func RecordRunFinished(status string) {
	runsFinished.WithLabelValues(status).Inc()
}

// RecordBattle counts a resolved battle.
func RecordBattle(result, opponentKind string) {
	battles.WithLabelValues(result, opponentKind).Inc()
}

// RecordReplayFailure counts a battle log that was dropped.
func RecordReplayFailure() {
	replayFailures.Inc()
}

// RecordOpponent counts a matchmaking result.
func RecordOpponent(kind, difficulty string) {
	opponents.WithLabelValues(kind, difficulty).Inc()
}

// RecordSnapshotSaved counts a snapshot insert and the evictions it caused.
func RecordSnapshotSaved(evicted int) {
	snapshotsSaved.Inc()
	if evicted > 0 {
		snapshotsEvicted.Add(float64(evicted))
	}
}

// RecordSnapshotsSwept counts snapshots removed by the TTL sweep.
func RecordSnapshotsSwept(n int) {
	if n > 0 {
		snapshotsSwept.Add(float64(n))
	}
}

// RecordHTTPRequest records one served request.
func RecordHTTPRequest(route, method, code string, seconds float64) {
	httpRequests.WithLabelValues(route, method, code).Inc()
	httpDuration.WithLabelValues(route, method).Observe(seconds)
}

// Registry returns the registry the metrics live on.
func Registry() *prometheus.Registry {
	return registry
}
