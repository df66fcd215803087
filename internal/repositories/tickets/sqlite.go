package tickets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ticketkeeper/internal/common"
	"ticketkeeper/internal/dbx"
	"ticketkeeper/internal/models"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const ticketColumns = `id, number, travel_date, from_station, to_station, notes,
	image_data, image_ref, created_at, updated_at, sync_status, deleted, deleted_at`

func scanTicket(row interface{ Scan(...any) error }) (*models.Ticket, error) {
	var t models.Ticket
	var travelDate, createdAt, updatedAt int64
	var deletedAt sql.NullInt64
	var deleted int
	var status string

	err := row.Scan(&t.ID, &t.Number, &travelDate, &t.FromStation, &t.ToStation,
		&t.Notes, &t.ImageData, &t.ImageRef, &createdAt, &updatedAt, &status,
		&deleted, &deletedAt)
	if err != nil {
		return nil, err
	}

	t.TravelDate = time.UnixMilli(travelDate).UTC()
	t.CreatedAt = time.UnixMilli(createdAt).UTC()
	t.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	t.SyncStatus = models.SyncStatus(status)
	t.Deleted = deleted != 0
	if deletedAt.Valid {
		d := time.UnixMilli(deletedAt.Int64).UTC()
		t.DeletedAt = &d
	}
	return &t, nil
}

func (r *SQLiteRepository) queryTickets(ctx context.Context, query string, args ...any) ([]models.Ticket, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to select tickets: %w", common.ErrStorageRead, err)
	}
	defer rows.Close()

	var result []models.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", common.ErrStorageRead, err)
		}
		result = append(result, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrStorageRead, err)
	}
	return result, nil
}

// GetAll lists every record, tombstones included, ordered by id for
// deterministic output.
func (r *SQLiteRepository) GetAll(ctx context.Context) ([]models.Ticket, error) {
	return r.queryTickets(ctx, `SELECT `+ticketColumns+` FROM tickets ORDER BY id`)
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Ticket, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=?`, id)
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrStorageRead, err)
	}
	return t, nil
}

func (r *SQLiteRepository) GetByNumber(ctx context.Context, number string) (*models.Ticket, error) {
	if strings.TrimSpace(number) == "" {
		return nil, nil
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE number=? AND deleted=0 LIMIT 1`, number)
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrStorageRead, err)
	}
	return t, nil
}

func (r *SQLiteRepository) GetByDateRange(ctx context.Context, from, to time.Time) ([]models.Ticket, error) {
	return r.queryTickets(ctx, `SELECT `+ticketColumns+` FROM tickets
		WHERE deleted=0 AND travel_date BETWEEN ? AND ? ORDER BY travel_date`,
		from.UnixMilli(), to.UnixMilli())
}

// Save upserts the full record by id in a single statement, so a failed Save
// applies nothing.
func (r *SQLiteRepository) Save(ctx context.Context, t *models.Ticket) error {
	var deletedAt any
	if t.DeletedAt != nil {
		deletedAt = t.DeletedAt.UnixMilli()
	}

	query := `INSERT INTO tickets (id, number, travel_date, from_station, to_station,
			notes, image_data, image_ref, created_at, updated_at, sync_status, deleted, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			number = excluded.number,
			travel_date = excluded.travel_date,
			from_station = excluded.from_station,
			to_station = excluded.to_station,
			notes = excluded.notes,
			image_data = excluded.image_data,
			image_ref = excluded.image_ref,
			updated_at = excluded.updated_at,
			sync_status = excluded.sync_status,
			deleted = excluded.deleted,
			deleted_at = excluded.deleted_at
	`
	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.Number, t.TravelDate.UnixMilli(), t.FromStation, t.ToStation,
		t.Notes, t.ImageData, t.ImageRef, t.CreatedAt.UnixMilli(), t.UpdatedAt.UnixMilli(),
		string(t.SyncStatus), boolToInt(t.Deleted), deletedAt)
	if err != nil {
		return fmt.Errorf("%w: failed to upsert ticket: %w", common.ErrStorageWrite, err)
	}
	return nil
}

func (r *SQLiteRepository) SetSyncStatus(ctx context.Context, ids []string, status models.SyncStatus) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(ids)+1)
	args = append(args, string(status))
	for _, id := range ids {
		args = append(args, id)
	}

	_, err := r.db.ExecContext(ctx,
		`UPDATE tickets SET sync_status=? WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("%w: failed to update sync status: %w", common.ErrStorageWrite, err)
	}
	return nil
}

func (r *SQLiteRepository) Purge(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM tickets WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("%w: failed to purge ticket: %w", common.ErrStorageWrite, err)
	}
	return nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: failed to count tickets: %w", common.ErrStorageRead, err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
