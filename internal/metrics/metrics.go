package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TasksEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tunefetch_tasks_enqueued_total",
		Help: "Total number of tasks enqueued",
	})

	TasksCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tunefetch_tasks_completed_total",
		Help: "Total number of tasks completed",
	})

	TasksFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tunefetch_tasks_failed_total",
		Help: "Total number of tasks failed, by reason",
	}, []string{"reason"})

	TasksCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tunefetch_tasks_cancelled_total",
		Help: "Total number of tasks cancelled",
	})

	ActiveByLane = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tunefetch_active_workers",
		Help: "Number of active workers per priority lane",
	}, []string{"lane"})

	Preemptions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tunefetch_preemptions_total",
		Help: "Total number of preemptions performed",
	})

	BufferRefills = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tunefetch_buffer_refills_total",
		Help: "Total number of working set refills",
	})

	TransferRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tunefetch_transfer_retries_total",
		Help: "Total number of transfer retry attempts",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tunefetch_events_dropped_total",
		Help: "Total number of events dropped due to slow subscribers",
	})

	DownloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tunefetch_download_duration_seconds",
		Help:    "Download duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	DownloadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tunefetch_download_bytes_total",
		Help: "Total bytes downloaded",
	})
)
