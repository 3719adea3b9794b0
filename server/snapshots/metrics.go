package snapshots

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSnapshotCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vizboard_snapshot_total",
			Help: "Total number of database snapshots",
		},
		[]string{"status"},
	)

	metricSnapshotDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vizboard_snapshot_duration_seconds",
			Help:    "Duration of database snapshots in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	metricArchiveCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vizboard_results_archive_total",
			Help: "Total number of results snapshots archived to S3",
		},
		[]string{"status"},
	)

	metricArchiveDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vizboard_results_archive_duration_seconds",
			Help:    "Duration of archiving a results snapshot in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	metricArchiveRestoreCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vizboard_results_archive_restore_total",
			Help: "Total number of results snapshots served from the S3 archive",
		},
	)
)
