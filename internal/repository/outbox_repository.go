package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aryan0dhankhar/datingapp/internal/domain"
	"github.com/google/uuid"
)

// PostgresOutboxRepository manages the outbox table
type PostgresOutboxRepository struct {
	db *sql.DB
}

// NewPostgresOutboxRepository returns an outbox repository backed by the given DB
func NewPostgresOutboxRepository(db *sql.DB) *PostgresOutboxRepository {
	return &PostgresOutboxRepository{db: db}
}

// Add inserts a new unpublished event
func (r *PostgresOutboxRepository) Add(ctx context.Context, topic, key string, payload []byte) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO outbox (id, topic, key, payload) VALUES ($1, $2, $3, $4)`,
		uuid.NewString(), topic, key, payload)
	if err != nil {
		return fmt.Errorf("failed to add outbox event: %w", err)
	}
	return nil
}

// FetchUnpublished returns up to limit unpublished events, oldest first
func (r *PostgresOutboxRepository) FetchUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, topic, key, payload, created_at FROM outbox WHERE published_at IS NULL ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch outbox: %w", err)
	}
	defer rows.Close()

	var out []*domain.OutboxEvent
	for rows.Next() {
		ev := &domain.OutboxEvent{}
		if err := rows.Scan(&ev.ID, &ev.Topic, &ev.Key, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// MarkPublished stamps published_at on the event
func (r *PostgresOutboxRepository) MarkPublished(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE outbox SET published_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox event published: %w", err)
	}
	return nil
}
