package pending

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketkeeper/internal/models"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE pending_ops (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  ticket_id TEXT NOT NULL UNIQUE,
  op TEXT NOT NULL,
  payload BLOB NOT NULL,
  attempts INTEGER NOT NULL DEFAULT 0,
  queued_at INTEGER NOT NULL
);
`)
	require.NoError(t, err)

	return db
}

func ticket(id string, notes string) *models.Ticket {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	return &models.Ticket{ID: id, Notes: notes, CreatedAt: now, UpdatedAt: now}
}

func TestEnqueue_ReplacesSameID(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Enqueue(ctx, ticket("a", "v1"), models.OpUpdate))
	require.NoError(t, r.Enqueue(ctx, ticket("a", "v2"), models.OpUpdate))

	entries, err := r.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.OpUpdate, entries[0].Op)

	var snap models.Ticket
	require.NoError(t, json.Unmarshal(entries[0].Payload, &snap))
	assert.Equal(t, "v2", snap.Notes)
}

func TestEnqueue_CreateThenDeleteCollapsesToNothing(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Enqueue(ctx, ticket("a", ""), models.OpCreate))
	require.NoError(t, r.Enqueue(ctx, ticket("a", ""), models.OpDelete))

	n, err := r.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestEnqueue_CreateThenUpdateStaysCreate(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Enqueue(ctx, ticket("a", "v1"), models.OpCreate))
	require.NoError(t, r.Enqueue(ctx, ticket("a", "v2"), models.OpUpdate))

	entries, err := r.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.OpCreate, entries[0].Op)

	var snap models.Ticket
	require.NoError(t, json.Unmarshal(entries[0].Payload, &snap))
	assert.Equal(t, "v2", snap.Notes)
}

func TestUpdateThenDeleteStaysDelete(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Enqueue(ctx, ticket("a", ""), models.OpUpdate))
	require.NoError(t, r.Enqueue(ctx, ticket("a", ""), models.OpDelete))

	entries, err := r.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.OpDelete, entries[0].Op)
}

func TestDrainIsNonDestructive(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Enqueue(ctx, ticket("a", ""), models.OpCreate))
	require.NoError(t, r.Enqueue(ctx, ticket("b", ""), models.OpCreate))

	_, err := r.Drain(ctx)
	require.NoError(t, err)

	n, err := r.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRemoveAndClear(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Enqueue(ctx, ticket("a", ""), models.OpCreate))
	require.NoError(t, r.Enqueue(ctx, ticket("b", ""), models.OpCreate))

	entries, err := r.Drain(ctx)
	require.NoError(t, err)
	require.NoError(t, r.Remove(ctx, []int64{entries[0].ID}))
	require.NoError(t, r.Remove(ctx, nil)) // no-op

	n, err := r.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, r.Clear(ctx))
	n, err = r.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestBumpAndDropExhausted(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Enqueue(ctx, ticket("a", ""), models.OpUpdate))
	require.NoError(t, r.Enqueue(ctx, ticket("b", ""), models.OpUpdate))

	entries, err := r.Drain(ctx)
	require.NoError(t, err)

	// only "a" fails three times
	for i := 0; i < 3; i++ {
		require.NoError(t, r.Bump(ctx, []int64{entries[0].ID}))
	}

	dropped, err := r.DropExhausted(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)

	left, err := r.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "b", left[0].TicketID)
}

func TestEnqueue_ReplaceResetsAttempts(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Enqueue(ctx, ticket("a", "v1"), models.OpUpdate))
	entries, err := r.Drain(ctx)
	require.NoError(t, err)
	require.NoError(t, r.Bump(ctx, []int64{entries[0].ID}))

	// a fresh intent starts its retry budget over
	require.NoError(t, r.Enqueue(ctx, ticket("a", "v2"), models.OpUpdate))
	entries, err = r.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 0, entries[0].Attempts)
}

func TestEnqueue_ReplacedIntentGetsNewID(t *testing.T) {
	db := setupDB(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Enqueue(ctx, ticket("a", "v1"), models.OpUpdate))
	entries, err := r.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	drainedID := entries[0].ID

	// a fresh intent enqueued after the drain must not share the drained id
	require.NoError(t, r.Enqueue(ctx, ticket("a", "v2"), models.OpUpdate))
	entries, err = r.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Greater(t, entries[0].ID, drainedID)

	// removing the drained id leaves the fresh intent in place
	require.NoError(t, r.Remove(ctx, []int64{drainedID}))
	n, err := r.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
