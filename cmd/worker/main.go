package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rukundowilson/smartflow/internal/accessrequests"
	"github.com/rukundowilson/smartflow/internal/app"
	jobmetrics "github.com/rukundowilson/smartflow/internal/jobs"
	"github.com/rukundowilson/smartflow/internal/platform/cache"
	"github.com/rukundowilson/smartflow/internal/requisitions"
	"github.com/rukundowilson/smartflow/internal/tickets"
	"github.com/rukundowilson/smartflow/internal/users"
	"github.com/rukundowilson/smartflow/jobs"
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

	dbpool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	// The notify dedupe keys live in Redis, so the worker refuses to
	// start without it.
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

	usersService := users.NewService(users.NewRepository(dbpool))
	metrics := jobmetrics.NewMetrics(nil)

	mailer := &jobs.SMTPMailer{
		Addr: fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort),
		From: cfg.SMTPFrom,
	}
	notifyWorker := jobs.NewNotifyWorker(logger, usersService, redisClient, mailer).WithMetrics(metrics)

	scanner := jobs.NewStaleScanner(logger, jobs.StaleSources{
		AccessRequests: accessrequests.NewRepository(dbpool),
		Tickets:        tickets.NewRepository(dbpool),
		Requisitions:   requisitions.NewRepository(dbpool),
	}).WithMetrics(metrics)

	staleTask, err := jobs.NewStaleScanTask(jobs.StaleScanPayload{
		OlderThanHours: int(cfg.StalePendingAfter.Hours()),
	})
	if err != nil {
		logger.Error("build stale scan task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskWorkflowTransitionNotify, Handler: notifyWorker.Handle},
			{Type: jobs.TaskWorkflowStaleScan, Handler: scanner.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 2 * * *", Task: staleTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting background worker")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
