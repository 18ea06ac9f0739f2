package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/cbes-platform/cbes-api/internal/app"
	jobmetrics "github.com/cbes-platform/cbes-api/internal/jobs"
	"github.com/cbes-platform/cbes-api/internal/platform/db"
	"github.com/cbes-platform/cbes-api/internal/shared"
	"github.com/cbes-platform/cbes-api/jobs"
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
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	auditLogger := shared.NewAuditLogger(pool)
	metrics := jobmetrics.NewMetrics(nil)

	retentionTask, err := jobs.NewAuditRetentionTask(jobs.AuditRetentionPayload{RetainDays: cfg.AuditRetentionDays})
	if err != nil {
		logger.Error("build retention task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAuditRetention, Handler: jobs.NewAuditRetentionHandler(auditLogger, metrics, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.AuditRetentionCron, Task: retentionTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
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
