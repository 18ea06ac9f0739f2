package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/cbes-platform/cbes-api/internal/app"
	"github.com/cbes-platform/cbes-api/internal/auth"
	"github.com/cbes-platform/cbes-api/internal/cbes"
	"github.com/cbes-platform/cbes-api/internal/observability"
	"github.com/cbes-platform/cbes-api/internal/permissions"
	"github.com/cbes-platform/cbes-api/internal/platform/cache"
	"github.com/cbes-platform/cbes-api/internal/platform/db"
	"github.com/cbes-platform/cbes-api/internal/roles"
	"github.com/cbes-platform/cbes-api/internal/shared"
	"github.com/cbes-platform/cbes-api/internal/users"
	"github.com/cbes-platform/cbes-api/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	sessionManager := shared.NewSessionManager(redisClient, "cbes_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	validate := validator.New()

	auditLogger := shared.NewAuditLogger(dbpool)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo, logger)
	usersHandler := users.NewHandler(logger, usersService)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(usersService, authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager, validate)

	permissionsRepo := permissions.NewRepository(dbpool)
	permissionsCache := permissions.NewCache(redisClient, cfg.PermissionCacheTTL)
	permissionsService := permissions.NewService(permissionsRepo, permissionsCache, logger)
	permissionsHandler := permissions.NewHandler(logger, permissionsService)

	rolesRepo := roles.NewRepository(dbpool)
	rolesService := roles.NewService(rolesRepo, usersService, auditLogger, logger)
	rolesHandler := roles.NewHandler(logger, rolesService, validate)

	cbeRepo := cbes.NewRepository(dbpool)
	cbeService := cbes.NewService(cbeRepo, auditLogger, logger)
	cbeHandler := cbes.NewHandler(logger, cbeService, validate)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		AuthHandler:        authHandler,
		RolesHandler:       rolesHandler,
		UsersHandler:       usersHandler,
		PermissionsHandler: permissionsHandler,
		CBEHandler:         cbeHandler,
		JobHandler:         jobHandler,
		Metrics:            metrics,
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
