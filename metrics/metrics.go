// Package metrics holds the Prometheus collectors of the attendance service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Submissions counts engine calls by outcome: accepted, invalid, forbidden.
	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_submissions_total",
		Help: "Attendance submissions by outcome",
	}, []string{"outcome"})

	// Marks counts per-record outcomes: ok, invalid, not_found, batch_mismatch, persistence.
	Marks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_marks_total",
		Help: "Per-record attendance marks by outcome",
	}, []string{"outcome"})

	// IndexRebuildFailures counts failed index window replacements.
	IndexRebuildFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_index_rebuild_failures_total",
		Help: "Failed (batch, day) index rebuilds",
	})

	// IndexRebuildDuration tracks delete+insert latency of a window rebuild.
	IndexRebuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "attendance_index_rebuild_duration_seconds",
		Help:    "Index window rebuild duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})
)
