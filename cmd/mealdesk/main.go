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

	"github.com/mealdesk/mealdesk/internal/app"
	"github.com/mealdesk/mealdesk/internal/auth"
	"github.com/mealdesk/mealdesk/internal/authz"
	"github.com/mealdesk/mealdesk/internal/observability"
	"github.com/mealdesk/mealdesk/internal/platform/cache"
	"github.com/mealdesk/mealdesk/internal/platform/db"
	"github.com/mealdesk/mealdesk/internal/roles"
	"github.com/mealdesk/mealdesk/internal/shared"
	"github.com/mealdesk/mealdesk/internal/users"
	"github.com/mealdesk/mealdesk/jobs"
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

	sessionManager := shared.NewSessionManager(redisClient, "mealdesk_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	auditLogger := shared.NewAuditLogger(dbpool)

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	registry := authz.DefaultRegistry()
	rolesRepo := roles.NewRepository(dbpool)
	rolesService := roles.NewService(rolesRepo, registry, auditLogger, jobsClient)

	builder := authz.NewBuilder(rolesService)
	routeTable := authz.DefaultRouteTable(registry)
	authzRouter := authz.NewRouter(builder, routeTable)
	metrics := observability.NewMetrics()
	guard := authz.Guard{
		Builder:   builder,
		Registry:  registry,
		Logger:    logger,
		Decisions: metrics,
	}

	// The snapshot artifact backs the sync evaluation path. Seed it from the
	// store at boot and keep the in-process copy fresh in the background.
	snapshotStore := authz.NewSnapshotStore(redisClient, cfg.SnapshotKey)
	holder := authz.NewSnapshotHolder(nil)
	snap, err := snapshotStore.Load(ctx)
	if err != nil {
		logger.Warn("load permission snapshot", slog.Any("error", err))
	}
	if snap == nil {
		if snap, err = authz.BuildSnapshot(ctx, rolesService); err != nil {
			logger.Error("build initial permission snapshot", slog.Any("error", err))
			os.Exit(1)
		}
		if err := snapshotStore.Save(ctx, snap); err != nil {
			logger.Warn("save initial permission snapshot", slog.Any("error", err))
		}
	}
	holder.Replace(snap)
	go refreshSnapshot(ctx, logger, snapshotStore, holder, cfg.SnapshotInterval)

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, rolesService, authzRouter, sessionManager)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo, rolesService)
	usersHandler := users.NewHandler(logger, usersService, guard)

	rolesHandler := roles.NewHandler(logger, rolesService, guard)
	permissionsHandler := authz.NewPermissionsHandler(logger, guard, authzRouter, holder)

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
		CSRFManager:        csrfManager,
		Guard:              guard,
		AuthzRouter:        authzRouter,
		AuthHandler:        authHandler,
		RolesHandler:       rolesHandler,
		UsersHandler:       usersHandler,
		PermissionsHandler: permissionsHandler,
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

func refreshSnapshot(ctx context.Context, logger *slog.Logger, store *authz.SnapshotStore, holder *authz.SnapshotHolder, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap, err := store.Load(ctx)
			if err != nil {
				logger.Warn("refresh permission snapshot", slog.Any("error", err))
				continue
			}
			if snap != nil {
				holder.Replace(snap)
			}
		}
	}
}
