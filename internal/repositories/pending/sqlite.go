package pending

import (
	"context"
	"database/sql"
	"encoding/json"
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
	db  dbx.DBTX
	now func() time.Time
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Enqueue upserts the latest intent for t.ID. The collapsing rule:
//
//	existing=create + new=delete  -> entry removed (remote never saw it)
//	existing=create + new=update  -> stays a create with the fresh payload
//	anything else                 -> replaced by the new intent
func (r *SQLiteRepository) Enqueue(ctx context.Context, t *models.Ticket, op models.Op) error {
	var existing models.Op
	err := r.db.QueryRowContext(ctx,
		`SELECT op FROM pending_ops WHERE ticket_id=?`, t.ID).Scan(&existing)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		existing = ""
	case err != nil:
		return fmt.Errorf("%w: failed to inspect queue: %w", common.ErrStorageRead, err)
	}

	if existing == models.OpCreate {
		if op == models.OpDelete {
			_, err := r.db.ExecContext(ctx, `DELETE FROM pending_ops WHERE ticket_id=?`, t.ID)
			if err != nil {
				return fmt.Errorf("%w: failed to collapse create+delete: %w", common.ErrStorageWrite, err)
			}
			return nil
		}
		// the remote side has not seen the record yet, keep announcing a create
		op = models.OpCreate
	}

	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to snapshot ticket: %w", err)
	}

	// INSERT OR REPLACE rather than ON CONFLICT DO UPDATE: replacing the row
	// assigns a fresh id, so a sync pass that drained the old entry cannot
	// remove an intent enqueued after its snapshot was taken
	_, err = r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO pending_ops (ticket_id, op, payload, attempts, queued_at)
		VALUES (?, ?, ?, 0, ?)
	`, t.ID, string(op), payload, r.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("%w: failed to enqueue operation: %w", common.ErrStorageWrite, err)
	}
	return nil
}

func (r *SQLiteRepository) Drain(ctx context.Context) ([]models.QueueEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ticket_id, op, payload, attempts, queued_at
		FROM pending_ops ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read queue: %w", common.ErrStorageRead, err)
	}
	defer rows.Close()

	var result []models.QueueEntry
	for rows.Next() {
		var e models.QueueEntry
		var op string
		var queuedAt int64
		if err := rows.Scan(&e.ID, &e.TicketID, &op, &e.Payload, &e.Attempts, &queuedAt); err != nil {
			return nil, fmt.Errorf("%w: %w", common.ErrStorageRead, err)
		}
		e.Op = models.Op(op)
		e.QueuedAt = time.UnixMilli(queuedAt).UTC()
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrStorageRead, err)
	}
	return result, nil
}

func (r *SQLiteRepository) Remove(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args := inClause(`DELETE FROM pending_ops WHERE id IN (%s)`, ids)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: failed to remove queue entries: %w", common.ErrStorageWrite, err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM pending_ops`); err != nil {
		return fmt.Errorf("%w: failed to clear queue: %w", common.ErrStorageWrite, err)
	}
	return nil
}

func (r *SQLiteRepository) Bump(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args := inClause(`UPDATE pending_ops SET attempts = attempts + 1 WHERE id IN (%s)`, ids)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: failed to bump attempts: %w", common.ErrStorageWrite, err)
	}
	return nil
}

func (r *SQLiteRepository) DropExhausted(ctx context.Context, maxRetries int) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM pending_ops WHERE attempts >= ?`, maxRetries)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to drop exhausted entries: %w", common.ErrStorageWrite, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", common.ErrStorageWrite, err)
	}
	return int(n), nil
}

func (r *SQLiteRepository) Len(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_ops`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: failed to count queue: %w", common.ErrStorageRead, err)
	}
	return n, nil
}

func inClause(format string, ids []int64) (string, []any) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return fmt.Sprintf(format, placeholders), args
}
