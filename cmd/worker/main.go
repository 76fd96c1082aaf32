package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/mealdesk/mealdesk/internal/app"
	"github.com/mealdesk/mealdesk/internal/authz"
	"github.com/mealdesk/mealdesk/internal/platform/cache"
	"github.com/mealdesk/mealdesk/internal/platform/db"
	"github.com/mealdesk/mealdesk/internal/roles"
	"github.com/mealdesk/mealdesk/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	registry := authz.DefaultRegistry()
	rolesRepo := roles.NewRepository(pool)
	rolesService := roles.NewService(rolesRepo, registry, nil, nil)

	snapshotStore := authz.NewSnapshotStore(redisClient, cfg.SnapshotKey)
	snapshotJob := jobs.NewSnapshotRefreshJob(rolesService, snapshotStore, logger, nil)

	rebuildTask, err := jobs.NewSnapshotRebuildTask("scheduled")
	if err != nil {
		logger.Error("build rebuild task", slog.Any("error", err))
		os.Exit(1)
	}
	verifyTask, err := jobs.NewSnapshotVerifyTask(true)
	if err != nil {
		logger.Error("build verify task", slog.Any("error", err))
		os.Exit(1)
	}

	cronSpec := "@every " + cfg.SnapshotInterval.String()
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSnapshotRebuild, Handler: snapshotJob.HandleRebuild},
			{Type: jobs.TaskSnapshotVerify, Handler: snapshotJob.HandleVerify},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cronSpec, Task: rebuildTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 1 * * *", Task: verifyTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
