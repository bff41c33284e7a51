package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/ticketslave/ticketslave/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// PermissionWarmer is the part of rbac.Service the warmup job drives.
type PermissionWarmer interface {
	Invalidate(ctx context.Context) error
	Warm(ctx context.Context) (int, error)
}

// RBACWarmupJob pre-populates the role permission cache.
type RBACWarmupJob struct {
	Warmer  PermissionWarmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Timeout time.Duration
}

// NewRBACWarmupJob wires dependencies for the warmup handler.
func NewRBACWarmupJob(warmer PermissionWarmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *RBACWarmupJob {
	return &RBACWarmupJob{Warmer: warmer, Logger: logger, Metrics: metrics, Timeout: 30 * time.Second}
}

// Handle processes rbac warmup tasks.
func (j *RBACWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Warmer == nil {
		return errors.New("rbac warmup: handler not configured")
	}
	var payload RBACWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("rbac warmup: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	if payload.Reason == "" {
		payload.Reason = "scheduled"
	}

	tracker := j.metrics().Track(TaskRBACWarmup)
	logger := j.logger().With(slog.String("reason", payload.Reason))

	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	start := time.Now()
	if payload.Invalidate {
		if err := j.Warmer.Invalidate(ctx); err != nil {
			logger.Warn("rbac warmup invalidate", slog.Any("error", err))
		}
	}
	roles, err := j.Warmer.Warm(ctx)
	if err != nil {
		logger.Error("rbac warmup", slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics().SetWarmedRoles(roles)
	logger.Info("completed rbac warmup", slog.Int("roles", roles), slog.Duration("duration", time.Since(start)))
	return tracker.End(nil)
}

func (j *RBACWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskRBACWarmup))
	}
	return slog.Default().With(slog.String("job", TaskRBACWarmup))
}

func (j *RBACWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
