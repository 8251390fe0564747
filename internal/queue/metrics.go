package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsEnqueued counts jobs accepted into the queue.
	JobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_enqueued_total",
			Help: "Total number of jobs enqueued",
		},
		[]string{"kind"},
	)

	// JobsProcessed counts jobs that completed successfully.
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_processed_total",
			Help: "Total number of jobs processed successfully",
		},
		[]string{"kind"},
	)

	// JobsFailed counts permanently failed jobs (non-retryable outcomes).
	JobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_failed_total",
			Help: "Total number of jobs that failed permanently",
		},
		[]string{"kind"},
	)

	// JobsRetried counts transient failures that were rescheduled.
	JobsRetried = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_retried_total",
			Help: "Total number of job retries scheduled after transient failures",
		},
		[]string{"kind"},
	)

	// JobsDead counts jobs moved to the dead-letter state after exhausting retries.
	JobsDead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_dead_total",
			Help: "Total number of jobs dead-lettered after exhausting their retry budget",
		},
		[]string{"kind"},
	)

	// JobDuration observes handler execution time per job kind.
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_job_duration_seconds",
			Help:    "Duration of job handler execution in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)
)
