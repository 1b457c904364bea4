package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/rukundowilson/smartflow/internal/accessrequests"
	"github.com/rukundowilson/smartflow/internal/app"
	"github.com/rukundowilson/smartflow/internal/audit"
	"github.com/rukundowilson/smartflow/internal/auth"
	"github.com/rukundowilson/smartflow/internal/comments"
	"github.com/rukundowilson/smartflow/internal/observability"
	"github.com/rukundowilson/smartflow/internal/rbac"
	"github.com/rukundowilson/smartflow/internal/requisitions"
	"github.com/rukundowilson/smartflow/internal/shared"
	"github.com/rukundowilson/smartflow/internal/tickets"
	"github.com/rukundowilson/smartflow/internal/users"
	"github.com/rukundowilson/smartflow/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "smartflow_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	metrics := observability.NewMetrics()

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	rbacService := rbac.NewService(dbpool)
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}
	permissionsHandler := rbac.NewPermissionsHandler(logger, rbacService, rbacMiddleware)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo)
	usersHandler := users.NewHandler(logger, usersService, rbacMiddleware)

	notifyClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := notifyClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	accessRepo := accessrequests.NewRepository(dbpool)
	accessService := accessrequests.NewService(accessrequests.ServiceParams{
		Logger:    logger,
		Repo:      accessRepo,
		Directory: usersService,
		Audit:     auditLogger,
		Idem:      idempotencyStore,
		Notifier:  notifyClient,
		Metrics:   metrics,
		Timeout:   cfg.TransitionTimeout,
	})
	accessHandler := accessrequests.NewHandler(logger, accessService, rbacMiddleware)

	ticketsRepo := tickets.NewRepository(dbpool)
	ticketsService := tickets.NewService(tickets.ServiceParams{
		Logger:    logger,
		Repo:      ticketsRepo,
		Directory: usersService,
		Audit:     auditLogger,
		Notifier:  notifyClient,
		Metrics:   metrics,
		Timeout:   cfg.TransitionTimeout,
	})
	ticketsHandler := tickets.NewHandler(logger, ticketsService, rbacMiddleware)

	requisitionsRepo := requisitions.NewRepository(dbpool)
	requisitionsService := requisitions.NewService(requisitions.ServiceParams{
		Logger:    logger,
		Repo:      requisitionsRepo,
		Directory: usersService,
		Audit:     auditLogger,
		Idem:      idempotencyStore,
		Notifier:  notifyClient,
		Metrics:   metrics,
		Timeout:   cfg.TransitionTimeout,
	})
	requisitionsHandler := requisitions.NewHandler(logger, requisitionsService, rbacMiddleware)

	commentsRepo := comments.NewRepository(dbpool)
	commentsService := comments.NewService(commentsRepo)
	commentsHandler := comments.NewHandler(logger, commentsService, rbacMiddleware)

	auditService := audit.NewService(dbpool)
	auditHandler := audit.NewHandler(logger, auditService, rbacMiddleware)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:                logger,
		Config:                cfg,
		SessionManager:        sessionManager,
		CSRFManager:           csrfManager,
		AuthHandler:           authHandler,
		UsersHandler:          usersHandler,
		AccessRequestsHandler: accessHandler,
		TicketsHandler:        ticketsHandler,
		RequisitionsHandler:   requisitionsHandler,
		CommentsHandler:       commentsHandler,
		AuditHandler:          auditHandler,
		PermissionsHandler:    permissionsHandler,
		JobHandler:            jobHandler,
		Metrics:               metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
