// Package metrics exposes Prometheus instrumentation for the live tracking core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Race channel metrics
	UpdatesAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "regatta_updates_accepted_total",
			Help: "Position updates applied to a race channel",
		},
	)

	UpdatesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regatta_updates_rejected_total",
			Help: "Position updates rejected before mutation",
		},
		[]string{"reason"}, // "invalid", "malformed", "unauthorized", "throttled"
	)

	PersistenceFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "regatta_snapshot_persist_failures_total",
			Help: "Snapshot writes that failed after the in-memory mutation was applied",
		},
	)

	TrackAppendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "regatta_track_append_failures_total",
			Help: "Track log appends that failed",
		},
	)

	ActiveChannels = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "regatta_active_channels",
			Help: "Race channels currently resident in memory",
		},
	)

	// Subscriber metrics
	Subscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "regatta_subscribers",
			Help: "Live subscribers across all races",
		},
	)

	SubscriberDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "regatta_subscriber_drops_total",
			Help: "Subscribers removed after a failed send",
		},
	)

	// Replay metrics
	ReplayDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "regatta_replay_duration_seconds",
			Help:    "Time spent building replay frames",
			Buckets: prometheus.DefBuckets,
		},
	)
)
