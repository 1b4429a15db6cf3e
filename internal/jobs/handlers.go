package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/matchpoint/notify-engine/internal/dispatch"
	"github.com/matchpoint/notify-engine/internal/domain"
	"github.com/matchpoint/notify-engine/internal/executor"
	"github.com/matchpoint/notify-engine/internal/repository"
)

// NewDispatchHandler adapts the delivery pipeline to the job contract.
func NewDispatchHandler(d *dispatch.Dispatcher) executor.Handler {
	return func(ctx context.Context, _ *domain.JobDefinition) (*domain.JobResult, error) {
		return d.Run(ctx)
	}
}

// NewRetentionHandler purges terminal queue rows and old tracking events.
// The cutoff defaults to defaultDays and can be overridden per job through
// the retention_days parameter.
func NewRetentionHandler(
	queue repository.QueueRepository,
	tracking repository.TrackingRepository,
	defaultDays int,
	logger *zap.Logger,
) executor.Handler {
	return func(ctx context.Context, job *domain.JobDefinition) (*domain.JobResult, error) {
		days := defaultDays
		if v, ok := paramInt(job.Parameters, "retention_days"); ok && v > 0 {
			days = v
		}
		before := time.Now().UTC().AddDate(0, 0, -days)

		items, err := queue.PurgeTerminal(ctx, before)
		if err != nil {
			return nil, fmt.Errorf("purge queue items: %w", err)
		}
		events, err := tracking.PurgeOld(ctx, before)
		if err != nil {
			return nil, fmt.Errorf("purge tracking events: %w", err)
		}

		logger.Info("retention sweep complete",
			zap.Int("retention_days", days),
			zap.Int64("queue_items_deleted", items),
			zap.Int64("tracking_events_deleted", events))

		total := int(items + events)
		return &domain.JobResult{RecordsProcessed: total, RecordsAffected: total}, nil
	}
}

// NewDigestHandler logs an engagement summary over a trailing window,
// defaulting to 24h and overridable via the window_hours parameter.
func NewDigestHandler(queue repository.QueueRepository, logger *zap.Logger) executor.Handler {
	return func(ctx context.Context, job *domain.JobDefinition) (*domain.JobResult, error) {
		hours := 24
		if v, ok := paramInt(job.Parameters, "window_hours"); ok && v > 0 {
			hours = v
		}
		to := time.Now().UTC()
		from := to.Add(-time.Duration(hours) * time.Hour)

		stats, err := queue.Stats(ctx, from, to)
		if err != nil {
			return nil, fmt.Errorf("engagement stats: %w", err)
		}

		logger.Info("engagement digest",
			zap.Int("window_hours", hours),
			zap.Int("sent", stats.TotalSent),
			zap.Int("failed", stats.TotalFailed),
			zap.Int("skipped", stats.TotalSkipped),
			zap.Int("opens", stats.TotalOpens),
			zap.Int("clicks", stats.TotalClicks),
			zap.Float64("open_rate", stats.OpenRate),
			zap.Float64("click_rate", stats.ClickRate))

		processed := stats.TotalSent + stats.TotalFailed + stats.TotalSkipped
		return &domain.JobResult{RecordsProcessed: processed}, nil
	}
}

// paramInt reads an integer job parameter. JSON round-trips numbers as
// float64, so both forms are accepted.
func paramInt(params map[string]any, key string) (int, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	}
	return 0, false
}
