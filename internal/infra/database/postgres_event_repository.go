// internal/infra/database/postgres_event_repository.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"poidh_notification_service/internal/domain/event"
)

// ErrEventNotFound is returned when an acknowledgment targets a row that does
// not exist or was already acknowledged.
var ErrEventNotFound = fmt.Errorf("notification event not found or already acknowledged")

// PostgresEventRepository reads pending activity events from the indexer's
// "Notifications" table and writes the send_at acknowledgment.
type PostgresEventRepository struct {
	db *sql.DB
}

func NewPostgresEventRepository(db *sql.DB) *PostgresEventRepository {
	return &PostgresEventRepository{db: db}
}

func (r *PostgresEventRepository) ListPending(ctx context.Context, createdAfter time.Time) ([]*event.Event, error) {
	query := `SELECT id, created_at, event, data, send_at
               FROM "Notifications"
               WHERE send_at IS NULL AND created_at > $1
               ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, query, createdAfter)
	if err != nil {
		return nil, fmt.Errorf("error querying pending events: %w", err)
	}
	defer rows.Close()

	events := make([]*event.Event, 0)
	for rows.Next() {
		ev := event.Event{}
		if err := rows.Scan(&ev.ID, &ev.CreatedAt, &ev.Kind, &ev.Data, &ev.SentAt); err != nil {
			return nil, fmt.Errorf("error scanning event row: %w", err)
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}
	return events, nil
}

func (r *PostgresEventRepository) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	// The send_at IS NULL guard keeps the pending -> processed transition
	// one-way even if two ticks double-read the same row.
	query := `UPDATE "Notifications"
               SET send_at = $2
               WHERE id = $1 AND send_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, sentAt)
	if err != nil {
		return fmt.Errorf("error acknowledging event %d: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error checking acknowledgment of event %d: %w", id, err)
	}
	if affected == 0 {
		return ErrEventNotFound
	}
	return nil
}
