package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PipelineMetrics covers the charge front door and the settlement pipeline.
type PipelineMetrics struct {
	ChargeRequestsTotal *prometheus.CounterVec

	JobsEnqueuedTotal     prometheus.Counter
	JobsCompletedTotal    prometheus.Counter
	JobRetriesTotal       prometheus.Counter
	JobsDeadLetteredTotal prometheus.Counter

	JobProcessingDuration prometheus.Histogram
}

func NewPipelineMetrics() *PipelineMetrics {
	return &PipelineMetrics{
		ChargeRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confgive_charge_requests_total",
				Help: "Charge requests by outcome (authorized, declined, gateway_error, enqueue_error, invalid)",
			},
			[]string{"outcome"},
		),

		JobsEnqueuedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "confgive_jobs_enqueued_total",
			Help: "Settlement jobs accepted by the queue",
		}),

		JobsCompletedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "confgive_jobs_completed_total",
			Help: "Settlement jobs persisted and acknowledged",
		}),

		JobRetriesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "confgive_job_retries_total",
			Help: "Failed job attempts scheduled for retry",
		}),

		JobsDeadLetteredTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "confgive_jobs_dead_lettered_total",
			Help: "Jobs that exhausted their retry budget",
		}),

		JobProcessingDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "confgive_job_processing_seconds",
			Help:    "Duration of settlement job attempts",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
