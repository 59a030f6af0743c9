package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	jobmetrics "github.com/marcuspat/devxplatform/internal/jobs"
)

// Alert severities.
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert types.
const (
	AlertQueueBacklog = "queue_backlog"
	AlertQueuePaused  = "queue_paused"
	AlertTaskFailures = "task_failures"
)

// DefaultAlertThresholds are used when an alert check payload leaves a
// threshold unset.
var DefaultAlertThresholds = AlertThresholds{
	MaxQueueLength:    1000,
	MaxFailedPerQueue: 100,
	MinActiveQueues:   1,
}

// Alert describes one threshold violation found by an alert check.
type Alert struct {
	Type      string `json:"type"`
	Severity  string `json:"severity"`
	Queue     string `json:"queue,omitempty"`
	Message   string `json:"message"`
	Current   int    `json:"current"`
	Threshold int    `json:"threshold"`
}

// QueueInspector is the subset of asynq.Inspector the monitoring tasks use.
type QueueInspector interface {
	Queues() ([]string, error)
	GetQueueInfo(qname string) (*asynq.QueueInfo, error)
	Servers() ([]*asynq.ServerInfo, error)
}

// MonitoringJob handles the monitoring queue task types.
type MonitoringJob struct {
	Redis     *redis.Client
	Inspector QueueInspector
	Metrics   *jobmetrics.Metrics
	Logger    *slog.Logger
	now       func() time.Time
}

func NewMonitoringJob(rdb *redis.Client, inspector QueueInspector, metrics *jobmetrics.Metrics, logger *slog.Logger) *MonitoringJob {
	return &MonitoringJob{Redis: rdb, Inspector: inspector, Metrics: metrics, Logger: logger, now: time.Now}
}

// HandleHealthCheck pings the broker and records the round trip time.
func (j *MonitoringJob) HandleHealthCheck(ctx context.Context, t *asynq.Task) error {
	track := j.Metrics.Track(TaskMonitoringHealth)
	start := j.now()
	status := "healthy"
	var pingErr error
	if pingErr = j.Redis.Ping(ctx).Err(); pingErr != nil {
		status = "unhealthy"
	}
	elapsed := j.now().Sub(start)

	writeResult(t, map[string]any{
		"status":           status,
		"broker":           "redis",
		"response_time_ms": elapsed.Milliseconds(),
		"checked_at":       start.UTC().Format(time.RFC3339),
	})
	if pingErr != nil {
		j.Logger.Error("broker health check failed", slog.Any("error", pingErr))
		return track.End(fmt.Errorf("broker ping: %w", pingErr))
	}
	j.Logger.Info("broker healthy", slog.Duration("response_time", elapsed))
	return track.End(nil)
}

// HandleQueueMetrics publishes per-queue backlog sizes as gauges.
func (j *MonitoringJob) HandleQueueMetrics(ctx context.Context, t *asynq.Task) error {
	track := j.Metrics.Track(TaskMonitoringQueues)
	stats, err := j.collectQueueStats()
	if err != nil {
		return track.End(err)
	}
	for _, q := range stats {
		j.Metrics.SetQueueLength(q.Queue, q.Pending)
	}
	writeResult(t, map[string]any{"queues": stats, "collected_at": j.now().UTC().Format(time.RFC3339)})
	j.Logger.Info("queue metrics collected", slog.Int("queues", len(stats)))
	return track.End(nil)
}

// HandleAlertCheck compares queue stats against thresholds and emits alerts.
func (j *MonitoringJob) HandleAlertCheck(ctx context.Context, t *asynq.Task) error {
	track := j.Metrics.Track(TaskMonitoringAlerts)
	var thresholds AlertThresholds
	if err := json.Unmarshal(t.Payload(), &thresholds); err != nil {
		return track.End(fmt.Errorf("decode payload: %w: %w", err, asynq.SkipRetry))
	}
	if thresholds.MaxQueueLength <= 0 {
		thresholds.MaxQueueLength = DefaultAlertThresholds.MaxQueueLength
	}
	if thresholds.MaxFailedPerQueue <= 0 {
		thresholds.MaxFailedPerQueue = DefaultAlertThresholds.MaxFailedPerQueue
	}
	if thresholds.MinActiveQueues <= 0 {
		thresholds.MinActiveQueues = DefaultAlertThresholds.MinActiveQueues
	}

	stats, err := j.collectQueueStats()
	if err != nil {
		return track.End(err)
	}
	alerts := evaluateAlerts(stats, thresholds)
	for _, a := range alerts {
		j.Metrics.AddAlerts(a.Severity, a.Type, 1)
		j.Logger.Warn("alert raised",
			slog.String("type", a.Type),
			slog.String("severity", a.Severity),
			slog.String("queue", a.Queue),
			slog.String("message", a.Message))
	}

	writeResult(t, map[string]any{
		"alerts":     alerts,
		"checked_at": j.now().UTC().Format(time.RFC3339),
	})
	return track.End(nil)
}

// HandleReport assembles a snapshot of all queues for the task result.
func (j *MonitoringJob) HandleReport(ctx context.Context, t *asynq.Task) error {
	track := j.Metrics.Track(TaskMonitoringReport)
	var p struct {
		ReportType string `json:"report_type"`
	}
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return track.End(fmt.Errorf("decode payload: %w: %w", err, asynq.SkipRetry))
	}
	if p.ReportType == "" {
		p.ReportType = "summary"
	}

	stats, err := j.collectQueueStats()
	if err != nil {
		return track.End(err)
	}
	var pending, active, failed, processed int
	for _, q := range stats {
		pending += q.Pending
		active += q.Active
		failed += q.Failed
		processed += q.Processed
	}
	writeResult(t, map[string]any{
		"report_type":     p.ReportType,
		"generated_at":    j.now().UTC().Format(time.RFC3339),
		"queues":          stats,
		"total_pending":   pending,
		"total_active":    active,
		"total_failed":    failed,
		"total_processed": processed,
	})
	j.Logger.Info("report generated",
		slog.String("report_type", p.ReportType),
		slog.Int("queues", len(stats)),
		slog.Int("pending", pending))
	return track.End(nil)
}

// HandleWorkerStats gathers per-server worker statistics from the inspector.
func (j *MonitoringJob) HandleWorkerStats(ctx context.Context, t *asynq.Task) error {
	track := j.Metrics.Track(TaskMonitoringWorkers)
	servers, err := j.Inspector.Servers()
	if err != nil {
		return track.End(fmt.Errorf("list servers: %w", err))
	}

	workers := make([]WorkerStats, 0, len(servers))
	totalActive := 0
	for _, srv := range servers {
		workers = append(workers, WorkerStats{
			ID:          srv.ID,
			Host:        srv.Host,
			PID:         srv.PID,
			Concurrency: srv.Concurrency,
			Queues:      srv.Queues,
			Status:      srv.Status,
			StartedAt:   srv.Started.UTC().Format(time.RFC3339),
			ActiveTasks: len(srv.ActiveWorkers),
		})
		totalActive += len(srv.ActiveWorkers)
	}

	writeResult(t, map[string]any{
		"workers":      workers,
		"summary":      map[string]int{"servers": len(workers), "active_tasks": totalActive},
		"collected_at": j.now().UTC().Format(time.RFC3339),
	})
	j.Logger.Info("worker stats collected",
		slog.Int("servers", len(workers)),
		slog.Int("active_tasks", totalActive))
	return track.End(nil)
}

// WorkerStats is the per-server slice of asynq.ServerInfo the reports expose.
type WorkerStats struct {
	ID          string         `json:"id"`
	Host        string         `json:"host"`
	PID         int            `json:"pid"`
	Concurrency int            `json:"concurrency"`
	Queues      map[string]int `json:"queues"`
	Status      string         `json:"status"`
	StartedAt   string         `json:"started_at"`
	ActiveTasks int            `json:"active_tasks"`
}

// QueueStats is the per-queue slice of asynq.QueueInfo the reports expose.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Failed    int    `json:"failed"`
	Processed int    `json:"processed"`
	Paused    bool   `json:"paused"`
}

func (j *MonitoringJob) collectQueueStats() ([]QueueStats, error) {
	names, err := j.Inspector.Queues()
	if err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	stats := make([]QueueStats, 0, len(names))
	for _, name := range names {
		info, err := j.Inspector.GetQueueInfo(name)
		if err != nil {
			j.Logger.Warn("queue info failed", slog.String("queue", name), slog.Any("error", err))
			continue
		}
		stats = append(stats, QueueStats{
			Queue:     info.Queue,
			Pending:   info.Pending,
			Active:    info.Active,
			Scheduled: info.Scheduled,
			Retry:     info.Retry,
			Failed:    info.Failed,
			Processed: info.Processed,
			Paused:    info.Paused,
		})
	}
	return stats, nil
}

func evaluateAlerts(stats []QueueStats, thresholds AlertThresholds) []Alert {
	alerts := make([]Alert, 0)
	activeQueues := 0
	for _, q := range stats {
		if !q.Paused {
			activeQueues++
		}
		if q.Paused {
			alerts = append(alerts, Alert{
				Type:     AlertQueuePaused,
				Severity: SeverityCritical,
				Queue:    q.Queue,
				Message:  fmt.Sprintf("queue %s is paused", q.Queue),
			})
		}
		if q.Pending > thresholds.MaxQueueLength {
			severity := SeverityWarning
			if q.Pending > thresholds.MaxQueueLength*2 {
				severity = SeverityCritical
			}
			alerts = append(alerts, Alert{
				Type:      AlertQueueBacklog,
				Severity:  severity,
				Queue:     q.Queue,
				Message:   fmt.Sprintf("queue %s backlog %d exceeds %d", q.Queue, q.Pending, thresholds.MaxQueueLength),
				Current:   q.Pending,
				Threshold: thresholds.MaxQueueLength,
			})
		}
		if q.Failed > thresholds.MaxFailedPerQueue {
			alerts = append(alerts, Alert{
				Type:      AlertTaskFailures,
				Severity:  SeverityWarning,
				Queue:     q.Queue,
				Message:   fmt.Sprintf("queue %s has %d failed tasks", q.Queue, q.Failed),
				Current:   q.Failed,
				Threshold: thresholds.MaxFailedPerQueue,
			})
		}
	}
	if activeQueues < thresholds.MinActiveQueues {
		alerts = append(alerts, Alert{
			Type:      AlertQueuePaused,
			Severity:  SeverityCritical,
			Message:   fmt.Sprintf("only %d active queues, expected at least %d", activeQueues, thresholds.MinActiveQueues),
			Current:   activeQueues,
			Threshold: thresholds.MinActiveQueues,
		})
	}
	return alerts
}
