// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Tracker cycle metrics
	CyclesTotal         *prometheus.CounterVec
	CycleDuration       prometheus.Histogram
	ConsecutiveFailures prometheus.Gauge
	WalletErrors        prometheus.Counter
	SignaturesAnalyzed  prometheus.Counter
	EventsCommitted     *prometheus.CounterVec
	EventsDuplicate     prometheus.Counter
	SeenPersistErrors   prometheus.Counter
	WatchedWallets      prometheus.Gauge
	LastSuccessfulCycle prometheus.Gauge

	// RPC metrics
	RPCCallLatency      *prometheus.HistogramVec
	RPCCallFailures     *prometheus.CounterVec
	RPCEndpointFailures *prometheus.CounterVec

	// Feed metrics
	FeedSubscribers prometheus.Gauge
	FeedDropped     prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "wallet_tracker"
	}

	return &Metrics{
		CyclesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "cycles_total",
			Help:      "Total number of scan cycles by status",
		}, []string{"status"}),
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "cycle_duration_seconds",
			Help:      "Scan cycle duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		ConsecutiveFailures: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "consecutive_failed_cycles",
			Help:      "Number of consecutive failed scan cycles",
		}),
		WalletErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "wallet_errors_total",
			Help:      "Total number of per-wallet processing failures",
		}),
		SignaturesAnalyzed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "signatures_analyzed_total",
			Help:      "Total number of unseen signatures analyzed",
		}),
		EventsCommitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "events_committed_total",
			Help:      "Total number of new events committed by action",
		}, []string{"action"}),
		EventsDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "events_duplicate_total",
			Help:      "Total number of commits skipped because the event already existed",
		}),
		SeenPersistErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "seen_persist_errors_total",
			Help:      "Total number of failed seen-set snapshot writes",
		}),
		WatchedWallets: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "watched_wallets",
			Help:      "Number of wallets in the registry",
		}),
		LastSuccessfulCycle: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_cycle_timestamp",
			Help:      "Unix timestamp of last successful scan cycle",
		}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds, including failover and retries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCCallFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_failures_total",
			Help:      "Total number of RPC calls that failed on every endpoint",
		}, []string{"method"}),
		RPCEndpointFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_endpoint_failures_total",
			Help:      "Total number of failed single-endpoint attempts",
		}, []string{"endpoint"}),

		FeedSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "subscribers",
			Help:      "Number of live feed subscribers",
		}),
		FeedDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "events_dropped_total",
			Help:      "Total number of events dropped for slow subscribers",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordCycle records a finished scan cycle.
func RecordCycle(status string, durationSeconds float64, consecutiveFailures int) {
	DefaultMetrics.CyclesTotal.WithLabelValues(status).Inc()
	DefaultMetrics.CycleDuration.Observe(durationSeconds)
	DefaultMetrics.ConsecutiveFailures.Set(float64(consecutiveFailures))
}

// RecordSuccessfulCycle updates the last successful cycle timestamp.
func RecordSuccessfulCycle(unixSeconds int64) {
	DefaultMetrics.LastSuccessfulCycle.Set(float64(unixSeconds))
}

// RecordWalletError increments the per-wallet failure counter.
func RecordWalletError() {
	DefaultMetrics.WalletErrors.Inc()
}

// RecordSignatureAnalyzed increments the analyzed signatures counter.
func RecordSignatureAnalyzed() {
	DefaultMetrics.SignaturesAnalyzed.Inc()
}

// RecordEventCommitted increments the committed events counter.
func RecordEventCommitted(action string) {
	DefaultMetrics.EventsCommitted.WithLabelValues(action).Inc()
}

// RecordEventDuplicate increments the duplicate commit counter.
func RecordEventDuplicate() {
	DefaultMetrics.EventsDuplicate.Inc()
}

// RecordSeenPersistError increments the seen-set persistence failure counter.
func RecordSeenPersistError() {
	DefaultMetrics.SeenPersistErrors.Inc()
}

// UpdateWatchedWallets sets the registry size gauge.
func UpdateWatchedWallets(n int) {
	DefaultMetrics.WatchedWallets.Set(float64(n))
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordRPCFailure records an RPC call that exhausted all endpoints.
func RecordRPCFailure(method string) {
	DefaultMetrics.RPCCallFailures.WithLabelValues(method).Inc()
}

// RecordRPCEndpointFailure records one failed endpoint attempt.
func RecordRPCEndpointFailure(endpoint string) {
	DefaultMetrics.RPCEndpointFailures.WithLabelValues(endpoint).Inc()
}

// UpdateFeedSubscribers sets the live feed subscriber gauge.
func UpdateFeedSubscribers(n int) {
	DefaultMetrics.FeedSubscribers.Set(float64(n))
}

// RecordFeedDropped increments the dropped feed events counter.
func RecordFeedDropped() {
	DefaultMetrics.FeedDropped.Inc()
}
