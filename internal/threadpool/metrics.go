package threadpool

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics はプールの Prometheus メトリクス
// nil のまま使うと全ての記録は何もしない
type Metrics struct {
	JobsSubmitted prometheus.Counter
	JobsCompleted prometheus.Counter
	JobsFailed    prometheus.Counter
	BusyWorkers   prometheus.Gauge
	QueueDepth    prometheus.Gauge
	JobDuration   prometheus.Histogram
}

// NewMetrics はメトリクスを作成して reg に登録する
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "threadpool",
			Name:      "jobs_submitted_total",
			Help:      "Total number of jobs submitted to the pool",
		}),
		JobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "threadpool",
			Name:      "jobs_completed_total",
			Help:      "Total number of jobs that returned normally",
		}),
		JobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "threadpool",
			Name:      "jobs_failed_total",
			Help:      "Total number of jobs that panicked",
		}),
		BusyWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "threadpool",
			Name:      "busy_workers",
			Help:      "Number of workers currently executing a job",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "threadpool",
			Name:      "queue_depth",
			Help:      "Number of submitted jobs not yet picked up by a worker",
		}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "threadpool",
			Name:      "job_duration_seconds",
			Help:      "Histogram of job execution time",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.JobsSubmitted,
		m.JobsCompleted,
		m.JobsFailed,
		m.BusyWorkers,
		m.QueueDepth,
		m.JobDuration,
	)
	return m
}

func (m *Metrics) submitted() {
	if m == nil {
		return
	}
	m.JobsSubmitted.Inc()
}

func (m *Metrics) setQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

func (m *Metrics) jobStarted() {
	if m == nil {
		return
	}
	m.BusyWorkers.Inc()
}

func (m *Metrics) jobFinished(elapsed time.Duration, panicked bool) {
	if m == nil {
		return
	}
	m.BusyWorkers.Dec()
	m.JobDuration.Observe(elapsed.Seconds())
	if panicked {
		m.JobsFailed.Inc()
	} else {
		m.JobsCompleted.Inc()
	}
}
