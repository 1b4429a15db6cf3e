package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/matchpoint/notify-engine/internal/domain"
	"github.com/matchpoint/notify-engine/internal/metrics"
	"github.com/matchpoint/notify-engine/internal/repository"
)

func newTestExecutor() (*Executor, *repository.MockJobRepository) {
	repo := repository.NewMockJobRepository()
	return New(repo, metrics.New(prometheus.NewRegistry()), zap.NewNop()), repo
}

func testJob(timeoutSeconds, maxRetries int) *domain.JobDefinition {
	return &domain.JobDefinition{
		Name:           "test_job",
		Kind:           domain.JobKindRetention,
		TimeoutSeconds: timeoutSeconds,
		Retry:          domain.RetryPolicy{MaxRetries: maxRetries, RetryDelaySeconds: 0},
	}
}

func executions(t *testing.T, repo *repository.MockJobRepository, name string) []*domain.JobExecution {
	t.Helper()
	execs, err := repo.ListExecutions(context.Background(), name, 50)
	if err != nil {
		t.Fatalf("list executions: %v", err)
	}
	return execs
}

func TestExecuteSuccess(t *testing.T) {
	e, repo := newTestExecutor()

	res, err := e.Execute(context.Background(), testJob(30, 2), func(context.Context, *domain.JobDefinition) (*domain.JobResult, error) {
		return &domain.JobResult{RecordsProcessed: 5, RecordsAffected: 3}, nil
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.RecordsProcessed != 5 || res.RecordsAffected != 3 {
		t.Fatalf("result = %+v", res)
	}

	execs := executions(t, repo, "test_job")
	if len(execs) != 1 {
		t.Fatalf("executions = %d, want 1", len(execs))
	}
	exec := execs[0]
	if exec.Status != domain.ExecutionSuccess {
		t.Fatalf("status = %s", exec.Status)
	}
	if exec.FinishedAt == nil {
		t.Fatal("finished_at not set")
	}
	if exec.RecordsProcessed != 5 || exec.RecordsAffected != 3 {
		t.Fatalf("recorded counts = %d/%d", exec.RecordsProcessed, exec.RecordsAffected)
	}
}

func TestExecuteTimeout(t *testing.T) {
	e, repo := newTestExecutor()

	_, err := e.Execute(context.Background(), testJob(1, 0), func(ctx context.Context, _ *domain.JobDefinition) (*domain.JobResult, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return &domain.JobResult{}, nil
		}
	})
	if err == nil {
		t.Fatal("expected error for timed-out job")
	}

	execs := executions(t, repo, "test_job")
	if len(execs) != 1 {
		t.Fatalf("executions = %d, want 1", len(execs))
	}
	if execs[0].Status != domain.ExecutionTimeout {
		t.Fatalf("status = %s, want timeout", execs[0].Status)
	}
	if execs[0].Error == "" {
		t.Fatal("timeout execution must carry an error")
	}
}

func TestExecuteRetriesUntilSuccess(t *testing.T) {
	e, repo := newTestExecutor()

	calls := 0
	res, err := e.Execute(context.Background(), testJob(30, 2), func(context.Context, *domain.JobDefinition) (*domain.JobResult, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("transient db error")
		}
		return &domain.JobResult{RecordsProcessed: 1}, nil
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.RecordsProcessed != 1 {
		t.Fatalf("result = %+v", res)
	}
	if calls != 3 {
		t.Fatalf("handler called %d times, want 3", calls)
	}

	execs := executions(t, repo, "test_job")
	if len(execs) != 3 {
		t.Fatalf("executions = %d, want one per attempt", len(execs))
	}
	// Newest first.
	if execs[0].Status != domain.ExecutionSuccess || execs[0].Attempt != 3 {
		t.Fatalf("latest execution = %+v", execs[0])
	}
	if execs[1].Status != domain.ExecutionFailed || execs[2].Status != domain.ExecutionFailed {
		t.Fatal("earlier attempts must be recorded as failed")
	}
}

func TestExecuteExhaustsRetries(t *testing.T) {
	e, repo := newTestExecutor()

	_, err := e.Execute(context.Background(), testJob(30, 1), func(context.Context, *domain.JobDefinition) (*domain.JobResult, error) {
		return nil, errors.New("broken")
	})
	if err == nil {
		t.Fatal("expected terminal error")
	}

	execs := executions(t, repo, "test_job")
	if len(execs) != 2 {
		t.Fatalf("executions = %d, want 2", len(execs))
	}
	for _, exec := range execs {
		if exec.Status != domain.ExecutionFailed {
			t.Fatalf("status = %s, want failed", exec.Status)
		}
	}
}

func TestExecuteStopsOnParentCancel(t *testing.T) {
	e, _ := newTestExecutor()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Execute(ctx, testJob(30, 5), func(ctx context.Context, _ *domain.JobDefinition) (*domain.JobResult, error) {
		return nil, errors.New("should not retry after cancel")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
