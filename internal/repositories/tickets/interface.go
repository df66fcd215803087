package tickets

import (
	"context"
	"time"

	"ticketkeeper/internal/models"
)

// Repository is the local record store for ticket records.
//
// Save is a full-record upsert: callers must supply the complete record they
// want stored, no field-level merging happens here. Lookups return a nil
// record (not an error) when nothing matches.
type Repository interface {
	// GetAll returns every record, tombstones included.
	GetAll(ctx context.Context) ([]models.Ticket, error)

	// GetByID returns a record by identity, or nil when absent.
	GetByID(ctx context.Context, id string) (*models.Ticket, error)

	// GetByNumber returns a non-deleted record by its natural key, or nil.
	GetByNumber(ctx context.Context, number string) (*models.Ticket, error)

	// GetByDateRange returns non-deleted records whose travel date falls in
	// [from, to], ordered by travel date.
	GetByDateRange(ctx context.Context, from, to time.Time) ([]models.Ticket, error)

	// Save atomically upserts the full record by id.
	Save(ctx context.Context, t *models.Ticket) error

	// SetSyncStatus flips the sync status of the given records.
	SetSyncStatus(ctx context.Context, ids []string, status models.SyncStatus) error

	// Purge hard-removes a record. Used only for true purges, never for
	// user-facing deletion (which is a soft delete via Save).
	Purge(ctx context.Context, id string) error

	// Count returns the number of records, tombstones included.
	Count(ctx context.Context) (int, error)
}
