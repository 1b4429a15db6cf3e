package domain

import "time"

// JobKind identifies the handler that executes a job. The set of kinds is
// closed: registration rejects kinds without a handler, so dispatch never
// resolves an unknown kind at run time.
type JobKind string

const (
	JobKindDispatch  JobKind = "notification_dispatch"
	JobKindRetention JobKind = "queue_retention"
	JobKindDigest    JobKind = "engagement_digest"
)

// ScheduleKind selects how the next run time is computed.
type ScheduleKind string

const (
	ScheduleInterval ScheduleKind = "interval"
	ScheduleCron     ScheduleKind = "cron"
)

// Schedule describes when a job runs. Interval schedules anchor on the
// start of the previous run; cron schedules evaluate the expression in
// the configured timezone.
type Schedule struct {
	Kind            ScheduleKind `json:"kind"`
	IntervalSeconds int          `json:"interval_seconds,omitempty"`
	CronExpression  string       `json:"cron_expression,omitempty"`
	Timezone        string       `json:"timezone,omitempty"`
}

// RetryPolicy bounds executor-level retries of a failing job handler.
type RetryPolicy struct {
	MaxRetries        int `json:"max_retries"`
	RetryDelaySeconds int `json:"retry_delay_seconds"`
}

// JobDefinition is one scheduled job, static (code-registered at boot) or
// dynamic (admin-created). Static jobs are never deleted; dynamic jobs are
// soft-disabled rather than removed.
type JobDefinition struct {
	Name           string         `json:"name"`
	Kind           JobKind        `json:"kind"`
	Schedule       Schedule       `json:"schedule"`
	Enabled        bool           `json:"enabled"`
	Static         bool           `json:"static"`
	TimeoutSeconds int            `json:"timeout_seconds"`
	Retry          RetryPolicy    `json:"retry_policy"`
	Parameters     map[string]any `json:"parameters,omitempty"`
	LastRunAt      *time.Time     `json:"last_run_at,omitempty"`
	NextRunAt      time.Time      `json:"next_run_at"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (j *JobDefinition) Timeout() time.Duration {
	return time.Duration(j.TimeoutSeconds) * time.Second
}

func (j *JobDefinition) RetryDelay() time.Duration {
	return time.Duration(j.Retry.RetryDelaySeconds) * time.Second
}

// ExecutionStatus is the terminal state of one job run attempt.
type ExecutionStatus string

const (
	ExecutionRunning ExecutionStatus = "running"
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailed  ExecutionStatus = "failed"
	ExecutionTimeout ExecutionStatus = "timeout"
)

// JobExecution is one attempt of one job run. Append-only.
type JobExecution struct {
	ID               string          `json:"id"`
	JobName          string          `json:"job_name"`
	Status           ExecutionStatus `json:"status"`
	Attempt          int             `json:"attempt"`
	StartedAt        time.Time       `json:"started_at"`
	FinishedAt       *time.Time      `json:"finished_at,omitempty"`
	RecordsProcessed int             `json:"records_processed"`
	RecordsAffected  int             `json:"records_affected"`
	Error            string          `json:"error,omitempty"`
}

// JobResult is what a handler reports back on success.
type JobResult struct {
	RecordsProcessed int
	RecordsAffected  int
}

// CreateJobRequest is the admin payload for a new dynamic job.
type CreateJobRequest struct {
	Name           string         `json:"name"`
	Kind           JobKind        `json:"kind"`
	Schedule       Schedule       `json:"schedule"`
	Enabled        *bool          `json:"enabled,omitempty"`
	TimeoutSeconds int            `json:"timeout_seconds,omitempty"`
	Retry          *RetryPolicy   `json:"retry_policy,omitempty"`
	Parameters     map[string]any `json:"parameters,omitempty"`
}

func (r *CreateJobRequest) Validate() error {
	if r.Name == "" {
		return ErrInvalidJobName
	}
	switch r.Schedule.Kind {
	case ScheduleInterval:
		if r.Schedule.IntervalSeconds <= 0 {
			return ErrInvalidSchedule
		}
	case ScheduleCron:
		if r.Schedule.CronExpression == "" {
			return ErrInvalidSchedule
		}
	default:
		return ErrInvalidSchedule
	}
	return nil
}

// UpdateJobRequest carries partial admin edits to a dynamic job.
type UpdateJobRequest struct {
	Enabled        *bool          `json:"enabled,omitempty"`
	Schedule       *Schedule      `json:"schedule,omitempty"`
	TimeoutSeconds *int           `json:"timeout_seconds,omitempty"`
	Retry          *RetryPolicy   `json:"retry_policy,omitempty"`
	Parameters     map[string]any `json:"parameters,omitempty"`
}
