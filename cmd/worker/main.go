package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ticketslave/ticketslave/internal/app"
	jobmetrics "github.com/ticketslave/ticketslave/internal/jobs"
	"github.com/ticketslave/ticketslave/internal/platform/cache"
	"github.com/ticketslave/ticketslave/internal/platform/db"
	"github.com/ticketslave/ticketslave/internal/rbac"
	"github.com/ticketslave/ticketslave/jobs"
)

const warmupCron = "*/10 * * * *"

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

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 4})
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

	rbacMetrics := rbac.NewMetrics(prometheus.DefaultRegisterer)
	permissionCache := rbac.NewPermissionCache(redisClient, rbac.CacheOptions{
		TTL:       cfg.RBACCacheTTL,
		LocalTTL:  cfg.RBACLocalCacheTTL,
		LocalSize: cfg.RBACLocalCacheSize,
	}, rbacMetrics, logger)
	rbacService := rbac.NewService(rbac.NewRepository(pool), rbac.ServiceOptions{
		Cache:   permissionCache,
		Logger:  logger,
		Metrics: rbacMetrics,
	})

	jobMetrics := jobmetrics.NewMetrics(nil)
	warmupJob := jobs.NewRBACWarmupJob(rbacService, logger, jobMetrics)
	warmupTask, err := jobs.NewRBACWarmupTask(jobs.RBACWarmupPayload{Reason: "scheduled"})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	var sender jobs.MailSender = jobs.LogSender{Logger: logger}
	if cfg.SMTPHost != "" {
		sender = jobs.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom)
	} else {
		logger.Warn("SMTP_HOST not set, password reset mail is logged instead of sent")
	}
	resetMailJob := jobs.NewPasswordResetMailJob(sender, cfg.ResetPasswordURL, logger, jobMetrics)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRBACWarmup, Handler: warmupJob.Handle},
			{Type: jobs.TaskPasswordResetMail, Handler: resetMailJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: warmupCron, Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
