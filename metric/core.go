package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the driver's core pipeline metrics.
type Metrics struct {
	// Streaming pipeline metrics.
	ChunksReceived       *prometheus.CounterVec
	EventsForwarded      *prometheus.CounterVec
	EventsDropped        *prometheus.CounterVec
	ErrorsTotal          *prometheus.CounterVec
	SnapshotLoadDuration prometheus.Histogram

	// Connection metrics.
	LastTxnTime   prometheus.Gauge
	ProbeFailures prometheus.Counter
	Reconnects    prometheus.Counter
}

// NewMetrics creates a Metrics instance with all driver metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		ChunksReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "docstream",
				Subsystem: "stream",
				Name:      "chunks_received_total",
				Help:      "Total transport chunks received and decoded",
			},
			[]string{"stage"},
		),

		EventsForwarded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "docstream",
				Subsystem: "stream",
				Name:      "events_forwarded_total",
				Help:      "Total events forwarded downstream",
			},
			[]string{"stage", "type"},
		),

		EventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "docstream",
				Subsystem: "stream",
				Name:      "events_dropped_total",
				Help:      "Total events dropped as stale against the snapshot watermark",
			},
			[]string{"stage"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "docstream",
				Subsystem: "stream",
				Name:      "errors_total",
				Help:      "Total fatal pipeline errors by class",
			},
			[]string{"stage", "class"},
		),

		SnapshotLoadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "docstream",
				Subsystem: "stream",
				Name:      "snapshot_load_seconds",
				Help:      "Snapshot loader call duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),

		LastTxnTime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "docstream",
				Subsystem: "connection",
				Name:      "last_txn_time",
				Help:      "Last-seen transaction timestamp observed on this connection",
			},
		),

		ProbeFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "docstream",
				Subsystem: "connection",
				Name:      "probe_failures_total",
				Help:      "Total health probe failures reported by the supervisor",
			},
		),

		Reconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "docstream",
				Subsystem: "connection",
				Name:      "reconnects_total",
				Help:      "Total stream transport dial attempts beyond the first",
			},
		),
	}
}
