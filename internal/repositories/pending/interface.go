package pending

import (
	"context"

	"ticketkeeper/internal/models"
)

// Repository is the durable pending-operation queue: an ordered log of the
// latest unsynced intent per ticket id.
//
// Enqueue collapses entries: a newer intent for the same ticket id replaces
// the older one, except a delete following a still-unsynced create removes
// the entry entirely (the remote side never saw the record, so there is
// nothing to delete there).
type Repository interface {
	// Enqueue records the intent for the given ticket, applying the
	// collapsing rule above. The payload is a snapshot of the record at
	// enqueue time.
	Enqueue(ctx context.Context, t *models.Ticket, op models.Op) error

	// Drain returns the current queue in insertion order without removing
	// anything.
	Drain(ctx context.Context) ([]models.QueueEntry, error)

	// Remove deletes the given entries.
	Remove(ctx context.Context, ids []int64) error

	// Clear empties the queue.
	Clear(ctx context.Context) error

	// Bump increments the attempt counter of the given entries.
	Bump(ctx context.Context, ids []int64) error

	// DropExhausted removes entries whose attempt counter reached maxRetries
	// and returns how many were dropped. Dropping is a best-effort data-loss
	// boundary: callers log it, they do not fail on it.
	DropExhausted(ctx context.Context, maxRetries int) (int, error)

	// Len returns the number of queued entries.
	Len(ctx context.Context) (int, error)
}
