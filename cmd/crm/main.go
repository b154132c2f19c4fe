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

	"github.com/odyssey-erp/odyssey-crm/internal/app"
	"github.com/odyssey-erp/odyssey-crm/internal/auth"
	"github.com/odyssey-erp/odyssey-crm/internal/identity"
	"github.com/odyssey-erp/odyssey-crm/internal/observability"
	"github.com/odyssey-erp/odyssey-crm/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-crm/internal/platform/db"
	"github.com/odyssey-erp/odyssey-crm/internal/rbac"
	"github.com/odyssey-erp/odyssey-crm/internal/shared"
	"github.com/odyssey-erp/odyssey-crm/internal/shell"
	"github.com/odyssey-erp/odyssey-crm/internal/view"
	"github.com/odyssey-erp/odyssey-crm/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN, "odyssey-crm")
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := cache.New(cfg.RedisAddr)
	if err := cache.Ping(ctx, redisClient); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "crm_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()

	permissions := rbac.NewCachedStore(rbac.NewPGStore(dbpool), redisClient, cfg.PermissionsCacheTTL, logger)
	rbacMetrics := rbac.NewMetrics(metrics.Registerer())
	registry := rbac.NewRegistry(cfg.AccessResolverCacheSize, cfg.SessionTTL, func() *rbac.Resolver {
		return rbac.NewResolver(permissions, rbac.ResolverOptions{
			Policy:       rbac.Policy(cfg.AccessDefaultPolicy),
			FetchTimeout: cfg.AccessFetchTimeout,
			Logger:       logger,
			Metrics:      rbacMetrics,
		})
	})
	go func() {
		if err := permissions.Subscribe(ctx, registry.InvalidateAll); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("rbac invalidation subscription", slog.Any("error", err))
		}
	}()

	guard := shell.NewGuard(shell.Config{
		Identity:   identity.SessionSource{},
		Registry:   registry,
		Templates:  templates,
		CSRF:       csrfManager,
		Logger:     logger,
		Metrics:    shell.NewMetrics(metrics.Registerer()),
		DeniedMode: shell.DeniedMode(cfg.AccessDeniedMode),
		AccessWait: cfg.AccessWait,
	})

	authHandler := auth.NewHandler(logger, auth.NewService(auth.NewRepository(dbpool)), templates, sessionManager, csrfManager, registry)
	accessMiddleware := rbac.Middleware{Registry: registry, Identity: identity.SessionSource{}, Logger: logger}
	accessHandler := rbac.NewAccessHandler(logger, accessMiddleware, cfg.AccessWait)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	if _, err := jobClient.EnqueuePermissionsWarm(ctx, "startup", time.Minute); err != nil {
		logger.Warn("enqueue permissions warm", slog.Any("error", err))
	}

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		Guard:          guard,
		AuthHandler:    authHandler,
		AccessHandler:  accessHandler,
		JobHandler:     jobHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
