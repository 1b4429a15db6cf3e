package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/matchpoint/notify-engine/internal/domain"
)

type pgTemplateRepository struct {
	pool *pgxpool.Pool
}

// NewPgTemplateRepository returns a TemplateRepository backed by PostgreSQL.
func NewPgTemplateRepository(pool *pgxpool.Pool) TemplateRepository {
	return &pgTemplateRepository{pool: pool}
}

func (r *pgTemplateRepository) GetEnabled(ctx context.Context, trigger string, channel domain.Channel) (*domain.Template, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, trigger, channel, subject, body, enabled, version, updated_at
		FROM notification_templates
		WHERE trigger = $1 AND channel = $2 AND enabled`, trigger, channel)

	var t domain.Template
	err := row.Scan(&t.ID, &t.Trigger, &t.Channel, &t.Subject, &t.Body,
		&t.Enabled, &t.Version, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return &t, nil
}

func (r *pgTemplateRepository) List(ctx context.Context) ([]*domain.Template, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, trigger, channel, subject, body, enabled, version, updated_at
		FROM notification_templates
		ORDER BY trigger, channel`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var templates []*domain.Template
	for rows.Next() {
		var t domain.Template
		if err := rows.Scan(&t.ID, &t.Trigger, &t.Channel, &t.Subject,
			&t.Body, &t.Enabled, &t.Version, &t.UpdatedAt); err != nil {
			return nil, err
		}
		templates = append(templates, &t)
	}
	return templates, rows.Err()
}

func (r *pgTemplateRepository) Upsert(ctx context.Context, tpl *domain.Template) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notification_templates
			(id, trigger, channel, subject, body, enabled, version, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,1,NOW())
		ON CONFLICT (trigger, channel) DO UPDATE SET
			subject = EXCLUDED.subject,
			body = EXCLUDED.body,
			enabled = EXCLUDED.enabled,
			version = notification_templates.version + 1,
			updated_at = NOW()`,
		tpl.ID, tpl.Trigger, tpl.Channel, tpl.Subject, tpl.Body, tpl.Enabled,
	)
	if err != nil {
		return fmt.Errorf("upsert template: %w", err)
	}
	return nil
}
