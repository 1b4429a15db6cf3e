// Package scheduler owns the job control loop: a single ticker polls for
// due jobs, marks their next run, and hands each one to the executor in
// its own goroutine.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/matchpoint/notify-engine/internal/domain"
	"github.com/matchpoint/notify-engine/internal/executor"
	"github.com/matchpoint/notify-engine/internal/jobs"
	"github.com/matchpoint/notify-engine/internal/repository"
	"github.com/matchpoint/notify-engine/internal/schedule"
)

const (
	defaultJobTimeoutSeconds = 300
)

type Scheduler struct {
	repo     repository.JobRepository
	registry *jobs.Registry
	executor *executor.Executor
	logger   *zap.Logger

	tick    time.Duration
	backoff time.Duration

	wg sync.WaitGroup
}

func New(
	repo repository.JobRepository,
	registry *jobs.Registry,
	exec *executor.Executor,
	tick, backoff time.Duration,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		repo:     repo,
		registry: registry,
		executor: exec,
		logger:   logger,
		tick:     tick,
		backoff:  backoff,
	}
}

// RegisterStatic upserts the boot-time job definitions. Each definition's
// next run is computed fresh; for static jobs the repository preserves
// existing run bookkeeping across restarts.
func (s *Scheduler) RegisterStatic(ctx context.Context, defs []*domain.JobDefinition) error {
	now := time.Now().UTC()
	for _, def := range defs {
		if !s.registry.Has(def.Kind) {
			return fmt.Errorf("static job %s: %w: %s", def.Name, domain.ErrUnknownJobKind, def.Kind)
		}
		if err := schedule.Validate(def.Schedule); err != nil {
			return fmt.Errorf("static job %s: %w", def.Name, err)
		}
		next, err := schedule.NextRun(def.Schedule, now, now)
		if err != nil {
			return fmt.Errorf("static job %s: %w", def.Name, err)
		}
		def.NextRunAt = next
		if def.CreatedAt.IsZero() {
			def.CreatedAt = now
		}
		def.UpdatedAt = now
		if err := s.repo.Register(ctx, def); err != nil {
			return fmt.Errorf("register static job %s: %w", def.Name, err)
		}
		s.logger.Info("registered static job",
			zap.String("job", def.Name),
			zap.String("kind", string(def.Kind)),
			zap.Time("next_run", next))
	}
	return nil
}

// CreateJob registers an admin-defined dynamic job.
func (s *Scheduler) CreateJob(ctx context.Context, req *domain.CreateJobRequest) (*domain.JobDefinition, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !s.registry.Has(req.Kind) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownJobKind, req.Kind)
	}
	if err := schedule.Validate(req.Schedule); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSchedule, err)
	}

	now := time.Now().UTC()
	next, err := schedule.NextRun(req.Schedule, now, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSchedule, err)
	}

	def := &domain.JobDefinition{
		Name:           req.Name,
		Kind:           req.Kind,
		Schedule:       req.Schedule,
		Enabled:        true,
		TimeoutSeconds: defaultJobTimeoutSeconds,
		Parameters:     req.Parameters,
		NextRunAt:      next,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.Enabled != nil {
		def.Enabled = *req.Enabled
	}
	if req.TimeoutSeconds > 0 {
		def.TimeoutSeconds = req.TimeoutSeconds
	}
	if req.Retry != nil {
		def.Retry = *req.Retry
	}

	if err := s.repo.Register(ctx, def); err != nil {
		return nil, err
	}
	s.logger.Info("created dynamic job",
		zap.String("job", def.Name), zap.Time("next_run", def.NextRunAt))
	return def, nil
}

// UpdateJob applies partial edits to a dynamic job. Static jobs are
// refused; changing the schedule recomputes the next run from now.
func (s *Scheduler) UpdateJob(ctx context.Context, name string, req *domain.UpdateJobRequest) (*domain.JobDefinition, error) {
	job, err := s.repo.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if job.Static {
		return nil, domain.ErrStaticJob
	}

	if req.Enabled != nil {
		job.Enabled = *req.Enabled
	}
	if req.Schedule != nil {
		if err := schedule.Validate(*req.Schedule); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSchedule, err)
		}
		now := time.Now().UTC()
		next, err := schedule.NextRun(*req.Schedule, now, now)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSchedule, err)
		}
		job.Schedule = *req.Schedule
		job.NextRunAt = next
	}
	if req.TimeoutSeconds != nil {
		job.TimeoutSeconds = *req.TimeoutSeconds
	}
	if req.Retry != nil {
		job.Retry = *req.Retry
	}
	if req.Parameters != nil {
		job.Parameters = req.Parameters
	}
	job.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// TriggerJob runs a job immediately, outside its schedule. The run still
// goes through the executor so it shows up in the execution history; the
// stored next run time is untouched.
func (s *Scheduler) TriggerJob(ctx context.Context, name string) (*domain.JobResult, error) {
	job, err := s.repo.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	handler, err := s.registry.Resolve(job.Kind)
	if err != nil {
		return nil, err
	}
	return s.executor.Execute(ctx, job, handler)
}

// Run is the control loop. It polls every tick for due jobs and blocks
// until ctx is cancelled, then waits for in-flight jobs to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started",
		zap.Duration("tick", s.tick), zap.Duration("error_backoff", s.backoff))

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping, waiting for running jobs")
			s.wg.Wait()
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			if err := s.pass(ctx); err != nil {
				s.logger.Error("scheduler pass failed, backing off", zap.Error(err))
				select {
				case <-time.After(s.backoff):
				case <-ctx.Done():
				}
			}
		}
	}
}

// pass claims every due job for this tick. The next run is recorded
// before the handler starts so a slow job is not re-claimed by the
// following tick; interval anchoring on run start follows from that.
func (s *Scheduler) pass(ctx context.Context) error {
	now := time.Now().UTC()
	due, err := s.repo.ListDue(ctx, now)
	if err != nil {
		return fmt.Errorf("list due jobs: %w", err)
	}

	for _, job := range due {
		next, err := schedule.NextRun(job.Schedule, now, now)
		if err != nil {
			s.logger.Error("cannot compute next run, job stalls until edited",
				zap.String("job", job.Name), zap.Error(err))
			continue
		}
		if err := s.repo.MarkExecuted(ctx, job.Name, now, next); err != nil {
			s.logger.Error("failed to mark job executed",
				zap.String("job", job.Name), zap.Error(err))
			continue
		}

		handler, err := s.registry.Resolve(job.Kind)
		if err != nil {
			s.logger.Error("job has no handler", zap.String("job", job.Name), zap.Error(err))
			continue
		}

		s.wg.Add(1)
		go func(job *domain.JobDefinition) {
			defer s.wg.Done()
			res, err := s.executor.Execute(ctx, job, handler)
			if err != nil {
				s.logger.Error("job run failed",
					zap.String("job", job.Name), zap.Error(err))
				return
			}
			s.logger.Info("job run complete",
				zap.String("job", job.Name),
				zap.Int("records_processed", res.RecordsProcessed),
				zap.Int("records_affected", res.RecordsAffected))
		}(job)
	}
	return nil
}
