// internal/domain/event/repository.go
package event

import (
	"context"
	"time"
)

// Repository defines the store operations the dispatcher needs. The store is
// append-only from its side; the dispatcher only reads pending rows and writes
// the send_at acknowledgment.
type Repository interface {
	// ListPending returns events with a null send_at created after the given
	// cutoff, ordered by creation time ascending.
	ListPending(ctx context.Context, createdAfter time.Time) ([]*Event, error)

	// MarkSent sets send_at for the event, guarding against a second write so
	// the pending -> processed transition happens at most once.
	MarkSent(ctx context.Context, id int64, sentAt time.Time) error
}
