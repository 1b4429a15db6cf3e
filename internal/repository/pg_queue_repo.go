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

type pgQueueRepository struct {
	pool *pgxpool.Pool
}

// NewPgQueueRepository returns a QueueRepository backed by PostgreSQL.
func NewPgQueueRepository(pool *pgxpool.Pool) QueueRepository {
	return &pgQueueRepository{pool: pool}
}

const queueColumns = `id, recipient, trigger, priority, channels, template_data,
	status, attempts, channel_results, scheduled_for, open_count, click_count,
	created_at, updated_at`

// priorityWeight is the SQL mirror of domain.Priority.Weight.
const priorityWeight = `CASE priority
	WHEN 'critical' THEN 4 WHEN 'high' THEN 3 WHEN 'medium' THEN 2 ELSE 1 END`

func (r *pgQueueRepository) Enqueue(ctx context.Context, item *domain.QueueItem) error {
	data, results, err := marshalQueueFields(item)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO notification_queue (`+queueColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		item.ID, item.Recipient, item.Trigger, item.Priority,
		channelStrings(item.Channels), data, item.Status, item.Attempts,
		results, item.ScheduledFor, item.OpenCount, item.ClickCount,
		item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert queue item: %w", err)
	}
	return nil
}

func (r *pgQueueRepository) Get(ctx context.Context, id string) (*domain.QueueItem, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+queueColumns+` FROM notification_queue WHERE id = $1`, id)

	item, err := scanQueueItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return item, err
}

// ClaimDue is the one place requiring true mutual exclusion: the
// pending -> processing transition is a single statement over rows locked
// with SKIP LOCKED, so an overlapping pass (or a second process) claims a
// disjoint set instead of double-sending. attempts is incremented here,
// once per pass, whatever the per-channel outcomes turn out to be.
func (r *pgQueueRepository) ClaimDue(ctx context.Context, now time.Time, limit, maxAttempts int) ([]*domain.QueueItem, error) {
	rows, err := r.pool.Query(ctx, `
		WITH due AS (
			SELECT id FROM notification_queue
			WHERE status = 'pending'
			  AND scheduled_for <= $1
			  AND attempts < $3
			ORDER BY `+priorityWeight+` DESC, scheduled_for ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE notification_queue q
		SET status = 'processing', attempts = q.attempts + 1, updated_at = NOW()
		FROM due
		WHERE q.id = due.id
		RETURNING `+prefixed("q", queueColumns),
		now, limit, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("claim due items: %w", err)
	}
	defer rows.Close()

	items, err := scanQueueItems(rows)
	if err != nil {
		return nil, err
	}
	// UPDATE ... RETURNING gives no ordering guarantee; restore the
	// priority-then-schedule order the pass must process in.
	sortByPriority(items)
	return items, nil
}

func (r *pgQueueRepository) ForceFailExhausted(ctx context.Context, maxAttempts int) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notification_queue
		SET status = 'failed', updated_at = NOW()
		WHERE status = 'pending' AND attempts >= $1`, maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("force-fail exhausted items: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *pgQueueRepository) Finalize(ctx context.Context, id string, status domain.Status, results []domain.ChannelResult) error {
	encoded, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal channel results: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		UPDATE notification_queue
		SET status = $1, channel_results = $2, updated_at = NOW()
		WHERE id = $3`, status, encoded, id)
	return err
}

func (r *pgQueueRepository) IncrementOpen(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notification_queue
		SET open_count = open_count + 1, updated_at = NOW()
		WHERE id = $1`, id)
	return err
}

func (r *pgQueueRepository) IncrementClick(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notification_queue
		SET click_count = click_count + 1, updated_at = NOW()
		WHERE id = $1`, id)
	return err
}

// PurgeTerminal deletes old terminal rows. Rows with recorded engagement
// are audit history and survive the purge.
func (r *pgQueueRepository) PurgeTerminal(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM notification_queue
		WHERE status IN ('sent','failed','skipped')
		  AND updated_at < $1
		  AND open_count = 0 AND click_count = 0`, before)
	if err != nil {
		return 0, fmt.Errorf("purge terminal items: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *pgQueueRepository) Stats(ctx context.Context, from, to time.Time) (*domain.EngagementStats, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'sent'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'skipped'),
			COALESCE(SUM(open_count), 0),
			COALESCE(SUM(click_count), 0)
		FROM notification_queue
		WHERE created_at >= $1 AND created_at <= $2`, from, to)

	var s domain.EngagementStats
	if err := row.Scan(&s.TotalSent, &s.TotalFailed, &s.TotalSkipped,
		&s.TotalOpens, &s.TotalClicks); err != nil {
		return nil, fmt.Errorf("aggregate stats: %w", err)
	}
	if s.TotalSent > 0 {
		s.OpenRate = float64(s.TotalOpens) / float64(s.TotalSent) * 100
		s.ClickRate = float64(s.TotalClicks) / float64(s.TotalSent) * 100
	}
	return &s, nil
}

// ---- helpers ----

func marshalQueueFields(item *domain.QueueItem) (data, results []byte, err error) {
	if item.TemplateData == nil {
		data = []byte("{}")
	} else if data, err = json.Marshal(item.TemplateData); err != nil {
		return nil, nil, fmt.Errorf("marshal template data: %w", err)
	}
	if item.ChannelResults == nil {
		results = []byte("[]")
	} else if results, err = json.Marshal(item.ChannelResults); err != nil {
		return nil, nil, fmt.Errorf("marshal channel results: %w", err)
	}
	return data, results, nil
}

func scanQueueItem(row pgx.Row) (*domain.QueueItem, error) {
	var (
		item          domain.QueueItem
		channels      []string
		data, results []byte
	)
	err := row.Scan(
		&item.ID, &item.Recipient, &item.Trigger, &item.Priority,
		&channels, &data, &item.Status, &item.Attempts, &results,
		&item.ScheduledFor, &item.OpenCount, &item.ClickCount,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	for _, ch := range channels {
		item.Channels = append(item.Channels, domain.Channel(ch))
	}
	if err := json.Unmarshal(data, &item.TemplateData); err != nil {
		return nil, fmt.Errorf("unmarshal template data: %w", err)
	}
	if err := json.Unmarshal(results, &item.ChannelResults); err != nil {
		return nil, fmt.Errorf("unmarshal channel results: %w", err)
	}
	return &item, nil
}

func scanQueueItems(rows pgx.Rows) ([]*domain.QueueItem, error) {
	var result []*domain.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

func channelStrings(channels []domain.Channel) []string {
	out := make([]string, len(channels))
	for i, ch := range channels {
		out[i] = string(ch)
	}
	return out
}

func sortByPriority(items []*domain.QueueItem) {
	// Insertion sort: claimed batches are small and mostly ordered already.
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && less(items[j], items[j-1]); j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}

func less(a, b *domain.QueueItem) bool {
	if a.Priority.Weight() != b.Priority.Weight() {
		return a.Priority.Weight() > b.Priority.Weight()
	}
	return a.ScheduledFor.Before(b.ScheduledFor)
}

// prefixed qualifies every column in a comma-separated list with a table
// alias for use in UPDATE ... RETURNING.
func prefixed(alias, columns string) string {
	cols := strings.Split(columns, ",")
	for i, col := range cols {
		cols[i] = alias + "." + strings.TrimSpace(col)
	}
	return strings.Join(cols, ", ")
}
