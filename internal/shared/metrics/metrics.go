package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	jobsSubmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gocr",
		Name:      "jobs_submitted_total",
		Help:      "Jobs accepted by the gateway.",
	}, []string{"model"})
	jobsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gocr",
		Name:      "jobs_completed_total",
		Help:      "Jobs that reached completed.",
	}, []string{"model"})
	jobsFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gocr",
		Name:      "jobs_failed_total",
		Help:      "Jobs that reached failed, by failure reason.",
	}, []string{"model", "reason"})
	jobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gocr",
		Name:      "job_duration_seconds",
		Help:      "Time from processing start to a terminal status.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"model", "status"})
	queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gocr",
		Name:      "queue_depth",
		Help:      "Jobs waiting for a worker.",
	})
	pollsRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gocr",
		Name:      "polls_rejected_total",
		Help:      "Status polls rejected by the per-job poll limiter.",
	})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		jobsSubmitted,
		jobsCompleted,
		jobsFailed,
		jobDuration,
		queueDepth,
		pollsRejected,
	)
}

// IncJobSubmitted counts an accepted job.
func IncJobSubmitted(model string) {
	jobsSubmitted.WithLabelValues(model).Inc()
}

// IncJobCompleted counts a completed job.
func IncJobCompleted(model string) {
	jobsCompleted.WithLabelValues(model).Inc()
}

// IncJobFailed counts a failed job.
func IncJobFailed(model, reason string) {
	jobsFailed.WithLabelValues(model, reason).Inc()
}

// ObserveJobDuration records processing time for a terminal job.
func ObserveJobDuration(model, status string, d time.Duration) {
	if d < 0 {
		d = 0
	}
	jobDuration.WithLabelValues(model, status).Observe(d.Seconds())
}

// SetQueueDepth reports the number of queued jobs.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

func IncPollRejected() {
	pollsRejected.Inc()
}

// Registry exposes the gateway registry for tests and embedding.
func Registry() *prometheus.Registry {
	return registry
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}
