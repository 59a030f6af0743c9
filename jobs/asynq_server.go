package jobs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/marcuspat/devxplatform/internal/jobs"
	"github.com/marcuspat/devxplatform/internal/platform/httpx"
)

// defaultQueueWeights gives email and processing most of the worker capacity
// while keeping maintenance and monitoring from starving.
var defaultQueueWeights = map[string]int{
	QueueEmail:       3,
	QueueProcessing:  4,
	QueueMaintenance: 1,
	QueueMonitoring:  2,
}

// Worker wraps the Asynq server and optional scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// TaskHandler allows injecting custom Asynq handlers during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	Concurrency int
	Queues      map[string]int
	RetryPolicy RetryPolicy
	Handlers    []TaskHandler
	Cron        []CronRegistration
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	queues := cfg.Queues
	if len(queues) == 0 {
		queues = defaultQueueWeights
	}
	policy := cfg.RetryPolicy
	if policy.BaseDelay <= 0 {
		policy = NewRetryPolicy(time.Minute, 10*time.Minute)
	}

	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency:    concurrency,
		Queues:         queues,
		RetryDelayFunc: policy.RetryDelayFunc,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			queue, _ := asynq.GetQueueName(ctx)
			cfg.Metrics.AddRetry(task.Type(), queue)
			cfg.Logger.Error("task failed",
				slog.String("task", task.Type()),
				slog.String("queue", queue),
				slog.Any("error", err))
		}),
	})

	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, err
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: cfg.Logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}
}

// Client submits jobs to their queues.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	return &Client{client: asynq.NewClient(redisOpts)}, nil
}

// EnqueueContext submits a prepared task.
func (c *Client) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return c.client.EnqueueContext(ctx, task, opts...)
}

// EnqueueSendEmail enqueues a single email delivery.
func (c *Client) EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error) {
	task, err := NewSendEmailTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task)
}

// EnqueueBulkEmail enqueues a bulk email fan-out.
func (c *Client) EnqueueBulkEmail(ctx context.Context, payload BulkEmailPayload) (*asynq.TaskInfo, error) {
	task, err := NewBulkEmailTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task)
}

// EnqueueProcess enqueues a single processing run.
func (c *Client) EnqueueProcess(ctx context.Context, payload ProcessPayload) (*asynq.TaskInfo, error) {
	task, err := NewProcessTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task)
}

// EnqueueBatchProcess enqueues a chunked batch run.
func (c *Client) EnqueueBatchProcess(ctx context.Context, payload BatchProcessPayload) (*asynq.TaskInfo, error) {
	task, err := NewBatchProcessTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task)
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// Handler exposes HTTP endpoints for job observability.
type Handler struct {
	inspector QueueInspector
	progress  *ProgressStore
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints.
func NewHandler(inspector QueueInspector, progress *ProgressStore, logger *slog.Logger) *Handler {
	return &Handler{inspector: inspector, progress: progress, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/queues", h.queues)
	r.Get("/progress/{taskID}", h.taskProgress)
}

func (h *Handler) queues(w http.ResponseWriter, r *http.Request) {
	names, err := h.inspector.Queues()
	if err != nil {
		h.logger.Warn("jobs queues", slog.Any("error", err))
		httpx.RespondError(w, errors.Join(httpx.ErrUpstream, err))
		return
	}
	out := make([]map[string]any, 0, len(names))
	for _, name := range names {
		info, err := h.inspector.GetQueueInfo(name)
		if err != nil {
			continue
		}
		out = append(out, map[string]any{
			"queue":   info.Queue,
			"pending": info.Pending,
			"active":  info.Active,
			"failed":  info.Failed,
			"paused":  info.Paused,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"queues": out})
}

func (h *Handler) taskProgress(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	p, err := h.progress.Get(r.Context(), taskID)
	if errors.Is(err, ErrProgressNotFound) {
		httpx.RespondError(w, errors.Join(httpx.ErrNotFound, err))
		return
	}
	if err != nil {
		h.logger.Warn("jobs progress", slog.String("task_id", taskID), slog.Any("error", err))
		httpx.RespondError(w, errors.Join(httpx.ErrUpstream, err))
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}
