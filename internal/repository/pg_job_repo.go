package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/matchpoint/notify-engine/internal/domain"
)

type pgJobRepository struct {
	pool *pgxpool.Pool
}

// NewPgJobRepository returns a JobRepository backed by PostgreSQL.
func NewPgJobRepository(pool *pgxpool.Pool) JobRepository {
	return &pgJobRepository{pool: pool}
}

const jobColumns = `name, kind, schedule, enabled, static, timeout_seconds,
	retry_policy, parameters, last_run_at, next_run_at, created_at, updated_at`

func (r *pgJobRepository) Register(ctx context.Context, job *domain.JobDefinition) error {
	schedule, retry, params, err := marshalJobFields(job)
	if err != nil {
		return err
	}

	if job.Static {
		// Static jobs survive restarts: re-registration refreshes the
		// definition but keeps last_run_at/next_run_at bookkeeping.
		_, err = r.pool.Exec(ctx, `
			INSERT INTO job_definitions (`+jobColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			ON CONFLICT (name) DO UPDATE SET
				kind = EXCLUDED.kind,
				schedule = EXCLUDED.schedule,
				static = EXCLUDED.static,
				timeout_seconds = EXCLUDED.timeout_seconds,
				retry_policy = EXCLUDED.retry_policy,
				parameters = EXCLUDED.parameters,
				updated_at = NOW()`,
			job.Name, job.Kind, schedule, job.Enabled, job.Static,
			job.TimeoutSeconds, retry, params,
			job.LastRunAt, job.NextRunAt, job.CreatedAt, job.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("register static job: %w", err)
		}
		return nil
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO job_definitions (`+jobColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		job.Name, job.Kind, schedule, job.Enabled, job.Static,
		job.TimeoutSeconds, retry, params,
		job.LastRunAt, job.NextRunAt, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "job_definitions_pkey") {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *pgJobRepository) Get(ctx context.Context, name string) (*domain.JobDefinition, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM job_definitions WHERE name = $1`, name)

	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return job, err
}

func (r *pgJobRepository) List(ctx context.Context) ([]*domain.JobDefinition, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM job_definitions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (r *pgJobRepository) ListDue(ctx context.Context, now time.Time) ([]*domain.JobDefinition, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM job_definitions
		WHERE enabled AND next_run_at <= $1
		ORDER BY next_run_at`, now)
	if err != nil {
		return nil, fmt.Errorf("list due jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (r *pgJobRepository) Update(ctx context.Context, job *domain.JobDefinition) error {
	schedule, retry, params, err := marshalJobFields(job)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE job_definitions
		SET schedule = $1, enabled = $2, timeout_seconds = $3,
		    retry_policy = $4, parameters = $5, next_run_at = $6,
		    updated_at = NOW()
		WHERE name = $7`,
		schedule, job.Enabled, job.TimeoutSeconds, retry, params,
		job.NextRunAt, job.Name,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *pgJobRepository) MarkExecuted(ctx context.Context, name string, lastRun, nextRun time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE job_definitions
		SET last_run_at = $1, next_run_at = $2, updated_at = NOW()
		WHERE name = $3`, lastRun, nextRun, name)
	return err
}

func (r *pgJobRepository) AppendExecution(ctx context.Context, exec *domain.JobExecution) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO job_executions
			(id, job_name, status, attempt, started_at, finished_at,
			 records_processed, records_affected, error)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		exec.ID, exec.JobName, exec.Status, exec.Attempt, exec.StartedAt,
		exec.FinishedAt, exec.RecordsProcessed, exec.RecordsAffected,
		nullable(exec.Error),
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

func (r *pgJobRepository) FinishExecution(ctx context.Context, exec *domain.JobExecution) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE job_executions
		SET status = $1, finished_at = $2, records_processed = $3,
		    records_affected = $4, error = $5
		WHERE id = $6`,
		exec.Status, exec.FinishedAt, exec.RecordsProcessed,
		exec.RecordsAffected, nullable(exec.Error), exec.ID,
	)
	return err
}

func (r *pgJobRepository) ListExecutions(ctx context.Context, jobName string, limit int) ([]*domain.JobExecution, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, job_name, status, attempt, started_at, finished_at,
		       records_processed, records_affected, COALESCE(error, '')
		FROM job_executions
		WHERE job_name = $1
		ORDER BY started_at DESC
		LIMIT $2`, jobName, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var execs []*domain.JobExecution
	for rows.Next() {
		var e domain.JobExecution
		if err := rows.Scan(
			&e.ID, &e.JobName, &e.Status, &e.Attempt, &e.StartedAt,
			&e.FinishedAt, &e.RecordsProcessed, &e.RecordsAffected, &e.Error,
		); err != nil {
			return nil, err
		}
		execs = append(execs, &e)
	}
	return execs, rows.Err()
}

// ---- helpers ----

func marshalJobFields(job *domain.JobDefinition) (schedule, retry, params []byte, err error) {
	if schedule, err = json.Marshal(job.Schedule); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal schedule: %w", err)
	}
	if retry, err = json.Marshal(job.Retry); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal retry policy: %w", err)
	}
	if job.Parameters == nil {
		params = []byte("{}")
		return schedule, retry, params, nil
	}
	if params, err = json.Marshal(job.Parameters); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal parameters: %w", err)
	}
	return schedule, retry, params, nil
}

func scanJob(row pgx.Row) (*domain.JobDefinition, error) {
	var (
		j                       domain.JobDefinition
		schedule, retry, params []byte
	)
	err := row.Scan(
		&j.Name, &j.Kind, &schedule, &j.Enabled, &j.Static,
		&j.TimeoutSeconds, &retry, &params,
		&j.LastRunAt, &j.NextRunAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(schedule, &j.Schedule); err != nil {
		return nil, fmt.Errorf("unmarshal schedule: %w", err)
	}
	if err := json.Unmarshal(retry, &j.Retry); err != nil {
		return nil, fmt.Errorf("unmarshal retry policy: %w", err)
	}
	if err := json.Unmarshal(params, &j.Parameters); err != nil {
		return nil, fmt.Errorf("unmarshal parameters: %w", err)
	}
	return &j, nil
}

func scanJobs(rows pgx.Rows) ([]*domain.JobDefinition, error) {
	var result []*domain.JobDefinition
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, j)
	}
	return result, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
