package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/matchpoint/notify-engine/internal/domain"
)

type pgTrackingRepository struct {
	pool *pgxpool.Pool
}

// NewPgTrackingRepository returns a TrackingRepository backed by PostgreSQL.
func NewPgTrackingRepository(pool *pgxpool.Pool) TrackingRepository {
	return &pgTrackingRepository{pool: pool}
}

// InsertOpen relies on the partial unique index over
// (tracking_id, ip, user_agent) WHERE event_type = 'open': a repeat open
// from the same device hits ON CONFLICT DO NOTHING and reports false.
func (r *pgTrackingRepository) InsertOpen(ctx context.Context, ev *domain.TrackingEvent) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO tracking_events
			(id, tracking_id, event_type, link_type, destination, ip, user_agent, created_at)
		VALUES ($1,$2,'open','','',$3,$4,$5)
		ON CONFLICT DO NOTHING`,
		ev.ID, ev.TrackingID, ev.IP, ev.UserAgent, ev.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert open event: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *pgTrackingRepository) InsertClick(ctx context.Context, ev *domain.TrackingEvent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO tracking_events
			(id, tracking_id, event_type, link_type, destination, ip, user_agent, created_at)
		VALUES ($1,$2,'click',$3,$4,$5,$6,$7)`,
		ev.ID, ev.TrackingID, ev.LinkType, ev.Destination, ev.IP,
		ev.UserAgent, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert click event: %w", err)
	}
	return nil
}

func (r *pgTrackingRepository) PurgeOld(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM tracking_events WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge tracking events: %w", err)
	}
	return tag.RowsAffected(), nil
}
