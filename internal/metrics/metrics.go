// Package metrics holds the Prometheus collectors for save/export runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SavesTotal counts save operations by kind (primary, copy) and
	// status (ok, failed, skipped).
	SavesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "saver_saves_total",
		Help: "Save operations by kind and status.",
	}, []string{"kind", "status"})

	// SaveDuration observes end-to-end save/export workflow durations.
	SaveDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "saver_save_duration_seconds",
		Help:    "Duration of save/export workflow runs.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
)
