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

	"github.com/ticketslave/ticketslave/internal/app"
	"github.com/ticketslave/ticketslave/internal/audit"
	"github.com/ticketslave/ticketslave/internal/auth"
	"github.com/ticketslave/ticketslave/internal/observability"
	"github.com/ticketslave/ticketslave/internal/platform/cache"
	"github.com/ticketslave/ticketslave/internal/platform/db"
	"github.com/ticketslave/ticketslave/internal/rbac"
	"github.com/ticketslave/ticketslave/internal/roles"
	"github.com/ticketslave/ticketslave/internal/shared"
	"github.com/ticketslave/ticketslave/internal/users"
	"github.com/ticketslave/ticketslave/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{ConnectTimeout: 5 * time.Second})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		// Permission sets still resolve from the local tier and the store.
		logger.Warn("redis unavailable, shared permission cache disabled", slog.Any("error", err))
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	rbacMetrics := rbac.NewMetrics(metrics.Registerer())
	auditLogger := shared.NewAuditLogger(dbpool)

	var permissionCache *rbac.PermissionCache
	opts := rbac.CacheOptions{
		TTL:       cfg.RBACCacheTTL,
		LocalTTL:  cfg.RBACLocalCacheTTL,
		LocalSize: cfg.RBACLocalCacheSize,
	}
	if redisClient != nil {
		permissionCache = rbac.NewPermissionCache(redisClient, opts, rbacMetrics, logger)
		go func() {
			if err := permissionCache.ListenForInvalidation(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("rbac invalidation listener", slog.Any("error", err))
			}
		}()
	} else {
		permissionCache = rbac.NewPermissionCache(nil, opts, rbacMetrics, logger)
	}

	rbacStore := rbac.NewRepository(dbpool)
	rbacService := rbac.NewService(rbacStore, rbac.ServiceOptions{
		Cache:   permissionCache,
		Audit:   auditLogger,
		Logger:  logger,
		Metrics: rbacMetrics,
	})
	gate := rbac.NewGate(rbac.NewClaimsSource(rbacService), cfg.RBACResolveTimeout, rbacMetrics)
	rbacMiddleware := rbac.Middleware{Gate: gate, Logger: logger}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
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

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL, cfg.PasswordResetTTL)
	authService := auth.NewService(auth.NewRepository(dbpool), tokens, jobClient)

	rolesService := roles.NewService(roles.NewRepository(dbpool), rbacService, auditLogger, logger)
	usersService := users.NewService(users.NewRepository(dbpool), rbacStore, rbacService, auditLogger, logger)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("asynq inspector close", slog.Any("error", err))
		}
	}()

	if n, err := rbacService.Warm(ctx); err != nil {
		logger.Warn("rbac warmup", slog.Any("error", err))
	} else {
		logger.Info("rbac warmup", slog.Int("roles", n))
	}

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Metrics:        metrics,
		Authenticator:  &auth.Authenticator{Tokens: tokens, Logger: logger},
		RBACMiddleware: rbacMiddleware,
		AuthHandler:    auth.NewHandler(logger, authService),
		RBACHandler:    rbac.NewHandler(logger, rbacService, rbacMiddleware),
		RolesHandler:   roles.NewHandler(logger, rolesService, rbacMiddleware),
		UsersHandler:   users.NewHandler(logger, usersService, rbacMiddleware),
		AuditHandler:   audit.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool)), rbacMiddleware),
		JobHandler:     jobs.NewHandler(inspector, logger),
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
