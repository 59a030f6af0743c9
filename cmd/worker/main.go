package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marcuspat/devxplatform/internal/app"
	jobmetrics "github.com/marcuspat/devxplatform/internal/jobs"
	"github.com/marcuspat/devxplatform/internal/mailer"
	"github.com/marcuspat/devxplatform/internal/platform/cache"
	"github.com/marcuspat/devxplatform/internal/platform/db"
	"github.com/marcuspat/devxplatform/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	metrics := jobmetrics.NewMetrics(nil)

	client, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init asynq client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	progress := jobs.NewProgressStore(redisClient)
	sender := mailer.FromConfig(cfg.SendGridAPIKey, cfg.EmailFromName, cfg.EmailFrom, logger)

	emailJob := &jobs.EmailJob{Sender: sender, Enqueuer: client, Metrics: metrics, Logger: logger}
	processingJob := &jobs.ProcessingJob{Enqueuer: client, Progress: progress, Metrics: metrics, Logger: logger}
	maintenanceJob := jobs.NewMaintenanceJob(redisClient, pool, metrics, logger)
	monitoringJob := jobs.NewMonitoringJob(redisClient, inspector, metrics, logger)

	healthTask, err := jobs.NewHealthCheckTask()
	if err != nil {
		logger.Error("build health task", slog.Any("error", err))
		os.Exit(1)
	}
	queueMetricsTask, err := jobs.NewQueueMetricsTask()
	if err != nil {
		logger.Error("build queue metrics task", slog.Any("error", err))
		os.Exit(1)
	}
	alertTask, err := jobs.NewAlertCheckTask(jobs.DefaultAlertThresholds)
	if err != nil {
		logger.Error("build alert task", slog.Any("error", err))
		os.Exit(1)
	}
	reportTask, err := jobs.NewReportTask("daily")
	if err != nil {
		logger.Error("build report task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewCleanupTask(jobs.CleanupPayload{})
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}
	workerStatsTask, err := jobs.NewWorkerStatsTask()
	if err != nil {
		logger.Error("build worker stats task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Metrics:     metrics,
		Concurrency: cfg.WorkerConcurrency,
		RetryPolicy: jobs.RetryPolicy{
			Strategy:  jobs.StrategyExponential,
			BaseDelay: cfg.TaskRetryBaseDelay,
			MaxDelay:  cfg.TaskRetryMaxDelay,
			Factor:    2,
			Jitter:    true,
		},
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskEmailSend, Handler: emailJob.HandleSend},
			{Type: jobs.TaskEmailBulk, Handler: emailJob.HandleBulk},
			{Type: jobs.TaskEmailTemplate, Handler: emailJob.HandleTemplate},
			{Type: jobs.TaskProcessingRun, Handler: processingJob.HandleRun},
			{Type: jobs.TaskProcessingBatch, Handler: processingJob.HandleBatch},
			{Type: jobs.TaskProcessingFetch, Handler: processingJob.HandleFetch},
			{Type: jobs.TaskMaintenanceCleanup, Handler: maintenanceJob.HandleCleanup},
			{Type: jobs.TaskMaintenanceArchive, Handler: maintenanceJob.HandleArchive},
			{Type: jobs.TaskMonitoringHealth, Handler: monitoringJob.HandleHealthCheck},
			{Type: jobs.TaskMonitoringQueues, Handler: monitoringJob.HandleQueueMetrics},
			{Type: jobs.TaskMonitoringAlerts, Handler: monitoringJob.HandleAlertCheck},
			{Type: jobs.TaskMonitoringReport, Handler: monitoringJob.HandleReport},
			{Type: jobs.TaskMonitoringWorkers, Handler: monitoringJob.HandleWorkerStats},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/1 * * * *", Task: healthTask, Options: []asynq.Option{asynq.MaxRetry(0)}},
			{Spec: "*/5 * * * *", Task: queueMetricsTask, Options: []asynq.Option{asynq.MaxRetry(0)}},
			{Spec: "*/5 * * * *", Task: alertTask, Options: []asynq.Option{asynq.MaxRetry(0)}},
			{Spec: "*/10 * * * *", Task: workerStatsTask, Options: []asynq.Option{asynq.MaxRetry(0)}},
			{Spec: "0 6 * * *", Task: reportTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
			{Spec: "0 3 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(cfg.TaskMaxRetries)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsSrv := &http.Server{
		Addr:        cfg.WorkerMetricsAddr,
		Handler:     promhttp.Handler(),
		ReadTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("worker metrics listening", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
