// Package metrics exposes Prometheus instrumentation for ingestion and the
// vessel importer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ais_records_total",
			Help: "Records read from input files by outcome",
		},
		[]string{"outcome"}, // "clean", "dirty", "invalid"
	)

	FilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ais_files_total",
			Help: "Input files processed by result",
		},
		[]string{"result"}, // "ingested", "skipped", "failed"
	)

	BatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ais_batch_size",
			Help:    "Messages per batched insert",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
		[]string{"partition"},
	)

	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ais_batch_duration_seconds",
			Help:    "Duration of batched inserts in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"partition"},
	)

	BatchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ais_batch_failures_total",
			Help: "Batched inserts that failed and were dropped",
		},
		[]string{"partition", "reason"}, // reason: "error", "circuit_open"
	)

	DroppedMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ais_dropped_messages_total",
			Help: "Messages lost in failed batches",
		},
		[]string{"partition"},
	)

	CircuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ais_circuit_breaker_state",
			Help: "Batch writer circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Vessel importer
	IntervalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ais_intervals_total",
			Help: "Reconciled ship intervals by result",
		},
		[]string{"result"}, // "imported", "empty", "skipped", "failed"
	)

	OutliersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ais_outliers_total",
			Help: "Position reports flagged as outliers",
		},
	)

	IMOsChecked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ais_imos_checked_total",
			Help: "IMO numbers checked by the reconciler by decision",
		},
		[]string{"decision"}, // "accepted", "rejected", "no_ranges"
	)
)

// RecordBatch records one batched insert. n is the batch size.
func RecordBatch(partition string, n int, duration time.Duration, err error) {
	BatchSize.WithLabelValues(partition).Observe(float64(n))
	BatchDuration.WithLabelValues(partition).Observe(duration.Seconds())
	if err != nil {
		RecordBatchFailure(partition, "error", n)
	}
}

// RecordBatchFailure counts a dropped batch and its messages.
func RecordBatchFailure(partition, reason string, n int) {
	BatchFailures.WithLabelValues(partition, reason).Inc()
	DroppedMessages.WithLabelValues(partition).Add(float64(n))
}
