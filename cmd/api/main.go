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

	"github.com/marcuspat/devxplatform/internal/app"
	"github.com/marcuspat/devxplatform/internal/auth"
	"github.com/marcuspat/devxplatform/internal/health"
	"github.com/marcuspat/devxplatform/internal/observability"
	"github.com/marcuspat/devxplatform/internal/platform/cache"
	"github.com/marcuspat/devxplatform/internal/platform/db"
	"github.com/marcuspat/devxplatform/internal/users"
	"github.com/marcuspat/devxplatform/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping api startup")
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

	metrics := observability.NewMetrics()
	userCache := cache.NewCache(redisClient, cfg.CachePrefix, cfg.CacheTTL)

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo, userCache, logger)
	usersHandler := users.NewHandler(logger, usersService)

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)
	authService := auth.NewService(usersRepo, usersService, tokens)
	authHandler := auth.NewHandler(logger, authService, tokens)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, jobs.NewProgressStore(redisClient), logger)

	handler := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		TokenManager:  tokens,
		AuthHandler:   authHandler,
		UsersHandler:  usersHandler,
		HealthHandler: health.NewHandler(pool, redisClient),
		JobsHandler:   jobsHandler,
		Metrics:       metrics,
	})

	srv := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      handler,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("api stopped")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
