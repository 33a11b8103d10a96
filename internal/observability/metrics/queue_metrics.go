package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// QueueMetrics tracks job flow through the recurring queue.
type QueueMetrics struct {
	enqueued    *prometheus.CounterVec
	completed   *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	claimErrors prometheus.Counter
}

var (
	queueMetricsOnce sync.Once
	queueMetrics     *QueueMetrics
)

func Queue() *QueueMetrics {
	return QueueWithConfig(Config{})
}

func QueueWithConfig(cfg Config) *QueueMetrics {
	queueMetricsOnce.Do(func() {
		queueMetrics = newQueueMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return queueMetrics
}

// ResetQueueMetricsForTest resets the queue metrics singleton for tests.
func ResetQueueMetricsForTest() {
	queueMetricsOnce = sync.Once{}
	queueMetrics = nil
}

func newQueueMetrics(registerer prometheus.Registerer, cfg Config) *QueueMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := constLabels(cfg)

	enqueued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "recurring_queue_jobs_enqueued_total",
		Help:        "Jobs placed on the queue by type.",
		ConstLabels: labels,
	}, []string{"type"})
	completed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "recurring_queue_jobs_completed_total",
		Help:        "Jobs finished by type and final state.",
		ConstLabels: labels,
	}, []string{"type", "state"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "recurring_queue_job_duration_seconds",
		Help:        "Handler latency by job type.",
		Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: labels,
	}, []string{"type"})
	claimErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "recurring_queue_claim_errors_total",
		Help:        "Failed attempts to claim the next job.",
		ConstLabels: labels,
	})

	registerer.MustRegister(enqueued, completed, duration, claimErrors)

	return &QueueMetrics{
		enqueued:    enqueued,
		completed:   completed,
		duration:    duration,
		claimErrors: claimErrors,
	}
}

func (m *QueueMetrics) IncEnqueued(jobType string) {
	if m == nil {
		return
	}
	m.enqueued.WithLabelValues(jobType).Inc()
}

func (m *QueueMetrics) IncCompleted(jobType, state string) {
	if m == nil {
		return
	}
	m.completed.WithLabelValues(jobType, state).Inc()
}

func (m *QueueMetrics) ObserveDuration(jobType string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(jobType).Observe(d.Seconds())
}

func (m *QueueMetrics) IncClaimError() {
	if m == nil {
		return
	}
	m.claimErrors.Inc()
}
