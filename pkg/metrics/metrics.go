// Package metrics exposes Prometheus series for the engine, worker pool,
// and network server, following the teacher's pkg/metrics idiom of
// package-level prometheus.NewCounterVec/NewGauge variables registered in
// an init() and served off promhttp.Handler().
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EngineOpsTotal counts completed engine operations by kind and result.
	EngineOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvs_engine_ops_total",
			Help: "Total number of engine operations by op and result",
		},
		[]string{"op", "result"},
	)

	// EngineOpDuration measures engine operation latency.
	EngineOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kvs_engine_op_duration_seconds",
			Help:    "Engine operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// EngineCompactionsTotal counts completed compactions.
	EngineCompactionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kvs_engine_compactions_total",
			Help: "Total number of compactions performed",
		},
	)

	// EngineUncompactedBytes reports the current uncompacted-bytes counter.
	EngineUncompactedBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kvs_engine_uncompacted_bytes",
			Help: "Current count of dead record bytes since the last compaction",
		},
	)

	// PoolQueueDepth reports the number of jobs currently queued per pool.
	PoolQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kvs_pool_queue_depth",
			Help: "Number of jobs queued in a worker pool",
		},
		[]string{"pool"},
	)

	// ServerConnectionsActive reports the number of live client connections.
	ServerConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kvs_server_connections_active",
			Help: "Number of currently open client connections",
		},
	)
)

func init() {
	prometheus.MustRegister(EngineOpsTotal)
	prometheus.MustRegister(EngineOpDuration)
	prometheus.MustRegister(EngineCompactionsTotal)
	prometheus.MustRegister(EngineUncompactedBytes)
	prometheus.MustRegister(PoolQueueDepth)
	prometheus.MustRegister(ServerConnectionsActive)
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer, recording the current time as its start.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the elapsed duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
