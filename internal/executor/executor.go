// Package executor runs one job handler under its definition's timeout and
// retry policy, recording an execution row per attempt.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matchpoint/notify-engine/internal/domain"
	"github.com/matchpoint/notify-engine/internal/metrics"
	"github.com/matchpoint/notify-engine/internal/repository"
)

// Handler is the body of a job. It must honor ctx cancellation; the
// executor enforces the definition's timeout through ctx.
type Handler func(ctx context.Context, job *domain.JobDefinition) (*domain.JobResult, error)

type Executor struct {
	jobs    repository.JobRepository
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func New(jobs repository.JobRepository, m *metrics.Metrics, logger *zap.Logger) *Executor {
	return &Executor{jobs: jobs, metrics: m, logger: logger}
}

type outcome struct {
	res *domain.JobResult
	err error
}

// Execute runs the handler, retrying per the job's retry policy. Every
// attempt gets its own execution record; the history shows each failure,
// not just the final state. Returns the successful result or the last
// attempt's error.
func (e *Executor) Execute(ctx context.Context, job *domain.JobDefinition, handler Handler) (*domain.JobResult, error) {
	attempts := 1 + job.Retry.MaxRetries
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		res, status, err := e.runOnce(ctx, job, handler, attempt)
		if status == domain.ExecutionSuccess {
			return res, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			// Shutdown in progress; do not burn the remaining retries.
			return nil, ctx.Err()
		}
		if attempt < attempts {
			e.logger.Warn("job attempt failed, retrying",
				zap.String("job", job.Name),
				zap.Int("attempt", attempt),
				zap.Duration("delay", job.RetryDelay()),
				zap.Error(err))
			select {
			case <-time.After(job.RetryDelay()):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return nil, fmt.Errorf("job %s failed after %d attempts: %w", job.Name, attempts, lastErr)
}

func (e *Executor) runOnce(ctx context.Context, job *domain.JobDefinition, handler Handler, attempt int) (*domain.JobResult, domain.ExecutionStatus, error) {
	exec := &domain.JobExecution{
		ID:        uuid.NewString(),
		JobName:   job.Name,
		Status:    domain.ExecutionRunning,
		Attempt:   attempt,
		StartedAt: time.Now().UTC(),
	}
	if err := e.jobs.AppendExecution(ctx, exec); err != nil {
		e.logger.Warn("failed to record execution start",
			zap.String("job", job.Name), zap.Error(err))
	}

	runCtx := ctx
	cancel := context.CancelFunc(func() {})
	if job.TimeoutSeconds > 0 {
		runCtx, cancel = context.WithTimeout(ctx, job.Timeout())
	}
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("job handler panicked: %v", r)}
			}
		}()
		res, err := handler(runCtx, job)
		done <- outcome{res: res, err: err}
	}()

	var (
		res    *domain.JobResult
		status domain.ExecutionStatus
		runErr error
	)
	select {
	case o := <-done:
		res, runErr = o.res, o.err
		switch {
		case runErr == nil:
			status = domain.ExecutionSuccess
		case errors.Is(runErr, context.DeadlineExceeded) && ctx.Err() == nil:
			// Handler observed the deadline itself and returned ctx.Err().
			status = domain.ExecutionTimeout
		default:
			status = domain.ExecutionFailed
		}
	case <-runCtx.Done():
		// The handler goroutine keeps running until it observes ctx; its
		// late result is dropped via the buffered channel.
		runErr = runCtx.Err()
		if errors.Is(runErr, context.DeadlineExceeded) && ctx.Err() == nil {
			status = domain.ExecutionTimeout
		} else {
			status = domain.ExecutionFailed
		}
	}

	now := time.Now().UTC()
	exec.Status = status
	exec.FinishedAt = &now
	if res != nil {
		exec.RecordsProcessed = res.RecordsProcessed
		exec.RecordsAffected = res.RecordsAffected
	}
	if runErr != nil {
		exec.Error = runErr.Error()
	}
	if err := e.jobs.FinishExecution(ctx, exec); err != nil {
		e.logger.Warn("failed to record execution finish",
			zap.String("job", job.Name), zap.Error(err))
	}

	e.metrics.ObserveJob(job.Name, status, now.Sub(exec.StartedAt))
	return res, status, runErr
}
