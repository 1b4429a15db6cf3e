package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/matchpoint/notify-engine/internal/domain"
)

type pgSubscriptionRepository struct {
	pool *pgxpool.Pool
}

// NewPgSubscriptionRepository returns a SubscriptionRepository backed by PostgreSQL.
func NewPgSubscriptionRepository(pool *pgxpool.Pool) SubscriptionRepository {
	return &pgSubscriptionRepository{pool: pool}
}

// Upsert re-registers a known device token, reactivating it and moving it
// to the current recipient if the device changed hands.
func (r *pgSubscriptionRepository) Upsert(ctx context.Context, sub *domain.PushSubscription) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO channel_subscriptions
			(id, recipient, device_token, platform, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,TRUE,NOW(),NOW())
		ON CONFLICT (device_token) DO UPDATE SET
			recipient = EXCLUDED.recipient,
			platform = EXCLUDED.platform,
			active = TRUE,
			updated_at = NOW()`,
		sub.ID, sub.Recipient, sub.DeviceToken, sub.Platform,
	)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

func (r *pgSubscriptionRepository) Deactivate(ctx context.Context, deviceToken string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE channel_subscriptions
		SET active = FALSE, updated_at = NOW()
		WHERE device_token = $1`, deviceToken)
	if err != nil {
		return fmt.Errorf("deactivate subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *pgSubscriptionRepository) ActiveTokens(ctx context.Context, recipient string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT device_token FROM channel_subscriptions
		WHERE recipient = $1 AND active`, recipient)
	if err != nil {
		return nil, fmt.Errorf("list active tokens: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}
