package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-crm/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// PermissionsWarmer reloads the permission table cache.
type PermissionsWarmer interface {
	Warm(ctx context.Context) (int, error)
}

// PermissionsWarmJob keeps the page permission cache populated.
type PermissionsWarmJob struct {
	Cache   PermissionsWarmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Timeout time.Duration
}

// NewPermissionsWarmJob wires dependencies for the warm handler.
func NewPermissionsWarmJob(cache PermissionsWarmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *PermissionsWarmJob {
	return &PermissionsWarmJob{Cache: cache, Logger: logger, Metrics: metrics, Timeout: 30 * time.Second}
}

// Handle processes permission warm tasks.
func (j *PermissionsWarmJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Cache == nil {
		return errors.New("permissions warm: handler not configured")
	}
	var payload PermissionsWarmPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Reason == "" {
		payload.Reason = "schedule"
	}

	tracker := j.metrics().Track(TaskPermissionsWarm)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	logger := j.logger().With(slog.String("reason", payload.Reason))
	start := time.Now()
	count, err := j.Cache.Warm(ctx)
	if err != nil {
		resultErr = err
		logger.Error("warm permissions", slog.Any("error", err))
		return resultErr
	}
	j.metrics().AddItems(TaskPermissionsWarm, count)
	logger.Info("warmed permissions", slog.Int("pages", count), slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *PermissionsWarmJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPermissionsWarm))
	}
	return slog.Default().With(slog.String("job", TaskPermissionsWarm))
}

func (j *PermissionsWarmJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
