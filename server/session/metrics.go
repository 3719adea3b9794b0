package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricJobsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vizboard_query_jobs_submitted_total",
			Help: "Total number of query job submissions",
		},
		[]string{"status"},
	)

	metricJobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vizboard_query_jobs_finished_total",
			Help: "Total number of query jobs that reached a terminal status",
		},
		[]string{"status"},
	)

	metricPollErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vizboard_job_poll_errors_total",
			Help: "Total number of failed job status reads",
		},
	)

	metricPollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vizboard_job_poll_duration_seconds",
			Help:    "Duration of a single job status read",
			Buckets: prometheus.DefBuckets,
		},
	)

	metricSnapshotPushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vizboard_results_snapshot_push_total",
			Help: "Total number of results snapshots persisted",
		},
		[]string{"status"},
	)

	metricCopilotJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vizboard_copilot_jobs_total",
			Help: "Total number of copilot requests by outcome",
		},
		[]string{"status"},
	)
)
