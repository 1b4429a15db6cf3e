package jobs

import (
	"time"

	"github.com/matchpoint/notify-engine/internal/domain"
)

// StaticDefinitions returns the jobs the engine always runs. They are
// upserted at boot; operators can tune them through the database but the
// admin API refuses to modify or disable them.
func StaticDefinitions(dispatchInterval time.Duration, retentionDays int) []*domain.JobDefinition {
	return []*domain.JobDefinition{
		{
			Name: "notification_dispatch",
			Kind: domain.JobKindDispatch,
			Schedule: domain.Schedule{
				Kind:            domain.ScheduleInterval,
				IntervalSeconds: int(dispatchInterval.Seconds()),
			},
			Enabled:        true,
			Static:         true,
			TimeoutSeconds: 300,
			Retry:          domain.RetryPolicy{MaxRetries: 0},
		},
		{
			Name: "queue_retention",
			Kind: domain.JobKindRetention,
			Schedule: domain.Schedule{
				Kind:           domain.ScheduleCron,
				CronExpression: "0 3 * * *",
				Timezone:       "UTC",
			},
			Enabled:        true,
			Static:         true,
			TimeoutSeconds: 600,
			Retry:          domain.RetryPolicy{MaxRetries: 2, RetryDelaySeconds: 60},
			Parameters:     map[string]any{"retention_days": retentionDays},
		},
	}
}
