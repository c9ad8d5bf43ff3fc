package batch

import "github.com/prometheus/client_golang/prometheus"

var (
	batchesStartedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carbonsvc_batches_started_total",
			Help: "Total number of batches started, by runner.",
		},
		[]string{"runner"},
	)

	batchesFinishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carbonsvc_batches_finished_total",
			Help: "Total number of batches finished, by outcome.",
		},
		[]string{"outcome"},
	)

	reportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carbonsvc_reports_total",
			Help: "Total number of batch reports run, by final state.",
		},
		[]string{"state"},
	)

	reportDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "carbonsvc_report_duration_seconds",
			Help:    "Time taken to generate one batch report.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	reportsRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "carbonsvc_reports_running",
		Help: "Number of batch reports currently running.",
	})

	batchesSweptTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "carbonsvc_batches_swept_total",
		Help: "Total number of stale batches removed without a completed poll.",
	})
)

func init() {
	prometheus.MustRegister(batchesStartedTotal)
	prometheus.MustRegister(batchesFinishedTotal)
	prometheus.MustRegister(reportsTotal)
	prometheus.MustRegister(reportDuration)
	prometheus.MustRegister(reportsRunning)
	prometheus.MustRegister(batchesSweptTotal)
}
