package repository

import (
	"context"
	"time"

	"github.com/matchpoint/notify-engine/internal/domain"
)

// JobRepository persists job definitions and their execution history.
// The pgx implementation is in pg_job_repo.go; tests use the hand-written
// mock in mock_repos.go.
type JobRepository interface {
	// Register inserts a job or, for static jobs, updates the stored
	// schedule/timeout/retry fields while preserving run bookkeeping.
	Register(ctx context.Context, job *domain.JobDefinition) error
	Get(ctx context.Context, name string) (*domain.JobDefinition, error)
	List(ctx context.Context) ([]*domain.JobDefinition, error)
	// ListDue returns enabled jobs with next_run_at <= now.
	ListDue(ctx context.Context, now time.Time) ([]*domain.JobDefinition, error)
	Update(ctx context.Context, job *domain.JobDefinition) error
	// MarkExecuted records the run that just happened and the recomputed
	// next run time.
	MarkExecuted(ctx context.Context, name string, lastRun, nextRun time.Time) error

	AppendExecution(ctx context.Context, exec *domain.JobExecution) error
	FinishExecution(ctx context.Context, exec *domain.JobExecution) error
	ListExecutions(ctx context.Context, jobName string, limit int) ([]*domain.JobExecution, error)
}

// QueueRepository persists notification queue items.
type QueueRepository interface {
	Enqueue(ctx context.Context, item *domain.QueueItem) error
	Get(ctx context.Context, id string) (*domain.QueueItem, error)

	// ClaimDue atomically transitions up to limit due pending items to
	// processing (incrementing attempts) and returns them ordered by
	// priority then scheduled_for. Rows claimed by a concurrent pass are
	// skipped, never double-claimed.
	ClaimDue(ctx context.Context, now time.Time, limit, maxAttempts int) ([]*domain.QueueItem, error)

	// ForceFailExhausted marks still-pending items whose attempts reached
	// maxAttempts as failed so they are excluded from future passes.
	ForceFailExhausted(ctx context.Context, maxAttempts int) (int64, error)

	// Finalize writes the terminal (or released-for-retry) status and the
	// per-channel outcomes of one dispatch pass.
	Finalize(ctx context.Context, id string, status domain.Status, results []domain.ChannelResult) error

	IncrementOpen(ctx context.Context, id string) error
	IncrementClick(ctx context.Context, id string) error

	// PurgeTerminal deletes terminal rows older than before; audit rows
	// with recorded engagement are kept.
	PurgeTerminal(ctx context.Context, before time.Time) (int64, error)

	Stats(ctx context.Context, from, to time.Time) (*domain.EngagementStats, error)
}

// TemplateRepository reads message templates. Dispatch only ever calls
// GetEnabled; Upsert/List serve the administrative workflow.
type TemplateRepository interface {
	GetEnabled(ctx context.Context, trigger string, channel domain.Channel) (*domain.Template, error)
	List(ctx context.Context) ([]*domain.Template, error)
	Upsert(ctx context.Context, tpl *domain.Template) error
}

// TrackingRepository appends engagement events.
type TrackingRepository interface {
	// InsertOpen records an open event unless the same
	// (tracking_id, ip, user_agent) triple was already recorded.
	// Returns true when the event was newly inserted.
	InsertOpen(ctx context.Context, ev *domain.TrackingEvent) (bool, error)
	// InsertClick always appends; repeat clicks are meaningful.
	InsertClick(ctx context.Context, ev *domain.TrackingEvent) error
	PurgeOld(ctx context.Context, before time.Time) (int64, error)
}

// SubscriptionRepository manages push device registrations.
type SubscriptionRepository interface {
	Upsert(ctx context.Context, sub *domain.PushSubscription) error
	Deactivate(ctx context.Context, deviceToken string) error
	ActiveTokens(ctx context.Context, recipient string) ([]string, error)
}
