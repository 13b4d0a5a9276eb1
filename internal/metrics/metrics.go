// Package metrics provides Prometheus metrics for the backup pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Notifications tracks Notify calls by outcome ("accepted" or "rejected").
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerbak_notifications_total",
		Help: "Total number of backup notifications received",
	}, []string{"outcome"})

	// Cycles tracks processed backup cycles by final status.
	Cycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgerbak_cycles_total",
		Help: "Total number of backup cycles processed",
	}, []string{"status"})

	// CycleDuration tracks the duration of backup phases.
	CycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledgerbak_cycle_duration_seconds",
		Help:    "Duration of backup cycle phases in seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
	}, []string{"phase"})

	// QueueDepth tracks the number of pending backup requests.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledgerbak_queue_depth",
		Help: "Number of backup requests waiting to be processed",
	})

	// SnapshotSize tracks the size of the last stored snapshot.
	SnapshotSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledgerbak_snapshot_size_bytes",
		Help: "Size of the last stored snapshot in bytes",
	})

	// LastSuccessTimestamp tracks when the last successful cycle finished.
	LastSuccessTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledgerbak_last_success_timestamp",
		Help: "Unix timestamp of the last successful backup cycle",
	})

	// Info provides static information about the service.
	Info = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ledgerbak_info",
		Help: "Information about the backup service",
	}, []string{"storage_type", "snapshot_method"})
)

// RecordNotification records a Notify call.
func RecordNotification(accepted bool) {
	outcome := "accepted"
	if !accepted {
		outcome = "rejected"
	}
	Notifications.WithLabelValues(outcome).Inc()
}

// RecordCycle records a finished cycle with its status and total duration.
func RecordCycle(status string, d time.Duration) {
	Cycles.WithLabelValues(status).Inc()
	CycleDuration.WithLabelValues("total").Observe(d.Seconds())
}

// ObservePhase records the duration of one phase ("snapshot" or "store").
func ObservePhase(phase string, d time.Duration) {
	CycleDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// RecordSuccess records the size and completion time of a stored snapshot.
func RecordSuccess(size int64, at time.Time) {
	SnapshotSize.Set(float64(size))
	LastSuccessTimestamp.Set(float64(at.Unix()))
}

// SetInfo publishes the configured storage type and snapshot method.
func SetInfo(storageType, snapshotMethod string) {
	Info.Reset()
	Info.WithLabelValues(storageType, snapshotMethod).Set(1)
}
