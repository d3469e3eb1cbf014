package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/vitrine-commerce/vitrine/internal/app"
	jobmetrics "github.com/vitrine-commerce/vitrine/internal/jobs"
	"github.com/vitrine-commerce/vitrine/internal/platform/cache"
	"github.com/vitrine-commerce/vitrine/internal/platform/db"
	"github.com/vitrine-commerce/vitrine/internal/rbac"
	"github.com/vitrine-commerce/vitrine/internal/rbac/pgstore"
	"github.com/vitrine-commerce/vitrine/internal/session"
	"github.com/vitrine-commerce/vitrine/internal/shared"
	"github.com/vitrine-commerce/vitrine/jobs"
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)
	handlers := []jobs.TaskHandler{}

	// Sweeping only matters for the shared Redis store; in-memory sessions die
	// with the API process.
	if cfg.SessionBackend == app.BackendRedis {
		guard := session.NewGuard(session.GuardConfig{
			Store:  session.NewRedisStore(redisClient),
			Logger: logger,
		})
		sweepJob := jobs.NewSessionSweepJob(guard, logger, metrics)
		handlers = append(handlers, jobs.TaskHandler{Type: jobs.TaskSessionSweep, Handler: sweepJob.Handle})
	}

	if cfg.RBACBackend == app.BackendPostgres {
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			logger.Error("connect database", slog.Any("error", err))
			os.Exit(1)
		}
		defer pool.Close()
		broker := rbac.NewBroker()
		go rbac.RecordChanges(ctx, broker.Subscribe(ctx), shared.NewAuditLogger(pool), logger)
		notifier := rbac.NewRedisNotifier(redisClient, cfg.RBACNotifyChannel, broker, logger)
		registry := rbac.NewRegistry(pgstore.New(pool), nil, notifier)
		presetJob := jobs.NewPresetSyncJob(registry, logger, metrics)
		handlers = append(handlers, jobs.TaskHandler{Type: jobs.TaskPresetSync, Handler: presetJob.Handle})
	}

	sweepTask, err := jobs.NewSessionSweepTask(time.Time{})
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}
	var cron []jobs.CronRegistration
	if cfg.SessionBackend == app.BackendRedis && cfg.SessionSweepCron != "" {
		cron = append(cron, jobs.CronRegistration{Spec: cfg.SessionSweepCron, Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers:  handlers,
		Cron:      cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker started", slog.Int("handlers", len(handlers)), slog.Int("cron", len(cron)))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
