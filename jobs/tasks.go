package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// Queue names. Weights are assigned in WorkerConfig.
const (
	QueueEmail       = "email"
	QueueProcessing  = "processing"
	QueueMaintenance = "maintenance"
	QueueMonitoring  = "monitoring"
)

// Task types, namespaced by queue.
const (
	TaskEmailSend     = "email:send"
	TaskEmailBulk     = "email:bulk"
	TaskEmailTemplate = "email:template"

	TaskProcessingRun   = "processing:run"
	TaskProcessingBatch = "processing:batch"
	TaskProcessingFetch = "processing:fetch"

	TaskMaintenanceCleanup = "maintenance:cleanup"
	TaskMaintenanceArchive = "maintenance:archive"

	TaskMonitoringHealth  = "monitoring:health"
	TaskMonitoringQueues  = "monitoring:queues"
	TaskMonitoringAlerts  = "monitoring:alerts"
	TaskMonitoringReport  = "monitoring:report"
	TaskMonitoringWorkers = "monitoring:workers"
)

// resultRetention keeps task results around long enough for inspection.
const resultRetention = 24 * time.Hour

// SendEmailPayload describes a single transactional email.
type SendEmailPayload struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	HTMLBody string `json:"html_body,omitempty"`
}

// BulkEmailPayload fans out one email per recipient in batches.
type BulkEmailPayload struct {
	Recipients []string `json:"recipients"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
	HTMLBody   string   `json:"html_body,omitempty"`
	BatchSize  int      `json:"batch_size,omitempty"`
}

// TemplateEmailPayload renders a named template before delivery.
type TemplateEmailPayload struct {
	To       string            `json:"to"`
	Template string            `json:"template"`
	Context  map[string]string `json:"context,omitempty"`
}

// ProcessPayload describes a single processing run.
type ProcessPayload struct {
	Data    map[string]any `json:"data"`
	Mode    string         `json:"mode,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

// BatchProcessPayload chunks items and processes them with progress reporting.
type BatchProcessPayload struct {
	Items     []map[string]any `json:"items"`
	Mode      string           `json:"mode,omitempty"`
	BatchSize int              `json:"batch_size,omitempty"`
	Parallel  bool             `json:"parallel,omitempty"`
}

// FetchProcessPayload fetches a URL and hands the body to a processing run.
type FetchProcessPayload struct {
	URL     string            `json:"url"`
	Mode    string            `json:"mode,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// CleanupPayload removes aged progress/result keys from Redis.
type CleanupPayload struct {
	Prefix      string `json:"prefix,omitempty"`
	MaxAgeHours int    `json:"max_age_hours,omitempty"`
	BatchSize   int    `json:"batch_size,omitempty"`
}

// ArchivePayload moves aged rows from a table into its archive twin.
type ArchivePayload struct {
	Table       string `json:"table"`
	ArchiveDays int    `json:"archive_days,omitempty"`
	BatchSize   int    `json:"batch_size,omitempty"`
}

// AlertThresholds configure the monitoring alert checks.
type AlertThresholds struct {
	MaxQueueLength    int `json:"max_queue_length,omitempty"`
	MaxFailedPerQueue int `json:"max_failed_per_queue,omitempty"`
	MinActiveQueues   int `json:"min_active_queues,omitempty"`
}

func newTask(taskType string, payload any, queue string) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body, asynq.Queue(queue), asynq.Retention(resultRetention)), nil
}

// NewSendEmailTask constructs an email:send task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	return newTask(TaskEmailSend, payload, QueueEmail)
}

// NewBulkEmailTask constructs an email:bulk task.
func NewBulkEmailTask(payload BulkEmailPayload) (*asynq.Task, error) {
	return newTask(TaskEmailBulk, payload, QueueEmail)
}

// NewTemplateEmailTask constructs an email:template task.
func NewTemplateEmailTask(payload TemplateEmailPayload) (*asynq.Task, error) {
	return newTask(TaskEmailTemplate, payload, QueueEmail)
}

// NewProcessTask constructs a processing:run task.
func NewProcessTask(payload ProcessPayload) (*asynq.Task, error) {
	return newTask(TaskProcessingRun, payload, QueueProcessing)
}

// NewBatchProcessTask constructs a processing:batch task.
func NewBatchProcessTask(payload BatchProcessPayload) (*asynq.Task, error) {
	return newTask(TaskProcessingBatch, payload, QueueProcessing)
}

// NewFetchProcessTask constructs a processing:fetch task.
func NewFetchProcessTask(payload FetchProcessPayload) (*asynq.Task, error) {
	return newTask(TaskProcessingFetch, payload, QueueProcessing)
}

// NewCleanupTask constructs a maintenance:cleanup task.
func NewCleanupTask(payload CleanupPayload) (*asynq.Task, error) {
	return newTask(TaskMaintenanceCleanup, payload, QueueMaintenance)
}

// NewArchiveTask constructs a maintenance:archive task.
func NewArchiveTask(payload ArchivePayload) (*asynq.Task, error) {
	return newTask(TaskMaintenanceArchive, payload, QueueMaintenance)
}

// NewHealthCheckTask constructs a monitoring:health task.
func NewHealthCheckTask() (*asynq.Task, error) {
	return newTask(TaskMonitoringHealth, struct{}{}, QueueMonitoring)
}

// NewQueueMetricsTask constructs a monitoring:queues task.
func NewQueueMetricsTask() (*asynq.Task, error) {
	return newTask(TaskMonitoringQueues, struct{}{}, QueueMonitoring)
}

// NewAlertCheckTask constructs a monitoring:alerts task.
func NewAlertCheckTask(thresholds AlertThresholds) (*asynq.Task, error) {
	return newTask(TaskMonitoringAlerts, thresholds, QueueMonitoring)
}

// NewReportTask constructs a monitoring:report task.
func NewReportTask(reportType string) (*asynq.Task, error) {
	return newTask(TaskMonitoringReport, map[string]string{"report_type": reportType}, QueueMonitoring)
}

// NewWorkerStatsTask constructs a monitoring:workers task.
func NewWorkerStatsTask() (*asynq.Task, error) {
	return newTask(TaskMonitoringWorkers, struct{}{}, QueueMonitoring)
}
