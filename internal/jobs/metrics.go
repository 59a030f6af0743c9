package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background tasks.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	retries     *prometheus.CounterVec
	queueLength *prometheus.GaugeVec
	alerts      *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the task metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single task run.
type Tracker struct {
	metrics *Metrics
	task    string
	start   time.Time
}

// Track spawns a tracker for the given task type.
func (m *Metrics) Track(task string) *Tracker {
	if m == nil {
		return &Tracker{task: task, start: time.Now()}
	}
	return &Tracker{metrics: m, task: task, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.task == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.task).Inc()
	}
	t.metrics.runs.WithLabelValues(t.task, status).Inc()
	t.metrics.duration.WithLabelValues(t.task).Observe(time.Since(t.start).Seconds())
	return err
}

// AddRetry increments the retry counter for a task type and queue.
func (m *Metrics) AddRetry(task, queue string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(task, queue).Inc()
}

// SetQueueLength records the pending size of a queue.
func (m *Metrics) SetQueueLength(queue string, length int) {
	if m == nil {
		return
	}
	m.queueLength.WithLabelValues(queue).Set(float64(length))
}

// AddAlerts increments the alert counter for the supplied severity and type.
func (m *Metrics) AddAlerts(severity, alertType string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.alerts.WithLabelValues(severity, alertType).Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "devx_tasks_total",
		Help: "Total task executions partitioned by task type and status.",
	}, []string{"task", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "devx_tasks_failures_total",
		Help: "Total failures observed for background tasks.",
	}, []string{"task"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "devx_task_duration_seconds",
		Help:    "Duration in seconds of background task executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"task"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "devx_task_retries_total",
		Help: "Total task retries partitioned by task type and queue.",
	}, []string{"task", "queue"})
	queueLength := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "devx_queue_length",
		Help: "Pending tasks per queue.",
	}, []string{"queue"})
	alerts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "devx_task_alerts_total",
		Help: "Alert conditions detected by the monitoring tasks.",
	}, []string{"severity", "type"})
	registerer.MustRegister(runs, failures, duration, retries, queueLength, alerts)
	return &Metrics{
		runs:        runs,
		failures:    failures,
		duration:    duration,
		retries:     retries,
		queueLength: queueLength,
		alerts:      alerts,
	}
}
