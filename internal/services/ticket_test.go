package services

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketkeeper/internal/common"
	"ticketkeeper/internal/logging"
	"ticketkeeper/internal/models"
	"ticketkeeper/internal/repositories/metadata"
	"ticketkeeper/internal/repositories/pending"
	"ticketkeeper/internal/repositories/tickets"

	_ "modernc.org/sqlite"
)

type fakeBlobStore struct {
	presignErr error
	blobID     string
}

func (f *fakeBlobStore) EnsureContainer(ctx context.Context) (string, error) { return "c", nil }
func (f *fakeBlobStore) FindByName(ctx context.Context, name string) (string, error) {
	return "", nil
}
func (f *fakeBlobStore) FindAllByName(ctx context.Context, name string) ([]string, error) {
	return nil, nil
}
func (f *fakeBlobStore) Create(ctx context.Context, containerID, name string, body []byte) (string, error) {
	return "", nil
}
func (f *fakeBlobStore) Update(ctx context.Context, fileID string, body []byte) error { return nil }
func (f *fakeBlobStore) Delete(ctx context.Context, fileID string) error              { return nil }
func (f *fakeBlobStore) Read(ctx context.Context, fileID string) ([]byte, error)      { return nil, nil }
func (f *fakeBlobStore) PresignPut(ctx context.Context) (string, string, error) {
	if f.presignErr != nil {
		return "", "", f.presignErr
	}
	return f.blobID, "http://remote.test/put", nil
}

type fixture struct {
	svc      TicketService
	store    *tickets.SQLiteRepository
	queue    *pending.SQLiteRepository
	meta     *metadata.SQLiteRepository
	blobs    *fakeBlobStore
	uploaded [][]byte
	upErr    error
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE tickets (
  id TEXT PRIMARY KEY,
  number TEXT NOT NULL DEFAULT '',
  travel_date INTEGER NOT NULL DEFAULT 0,
  from_station TEXT NOT NULL DEFAULT '',
  to_station TEXT NOT NULL DEFAULT '',
  notes TEXT NOT NULL DEFAULT '',
  image_data TEXT NOT NULL DEFAULT '',
  image_ref TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  sync_status TEXT NOT NULL DEFAULT 'local',
  deleted INTEGER NOT NULL DEFAULT 0,
  deleted_at INTEGER
);
CREATE TABLE pending_ops (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  ticket_id TEXT NOT NULL UNIQUE,
  op TEXT NOT NULL,
  payload BLOB NOT NULL,
  attempts INTEGER NOT NULL DEFAULT 0,
  queued_at INTEGER NOT NULL
);
CREATE TABLE metadata (key TEXT PRIMARY KEY, value BLOB);
`)
	require.NoError(t, err)

	f := &fixture{
		store: tickets.NewSQLiteRepository(db),
		queue: pending.NewSQLiteRepository(db),
		meta:  metadata.NewSQLiteRepository(db),
		blobs: &fakeBlobStore{blobID: "images/blob-1"},
	}

	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.svc = NewTicketService(db, f.store, f.meta, f.blobs, log,
		func(ctx context.Context, url string, payload []byte) error {
			if f.upErr != nil {
				return f.upErr
			}
			f.uploaded = append(f.uploaded, payload)
			return nil
		})
	return f
}

func validRequest() TicketRequest {
	return TicketRequest{
		Number:      "TK-001",
		TravelDate:  time.Date(2025, 7, 3, 0, 0, 0, 0, time.UTC),
		FromStation: "Riga",
		ToStation:   "Sigulda",
		Notes:       "return trip",
	}
}

func TestAdd(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	tk, err := f.svc.Add(ctx, validRequest())
	require.NoError(t, err)
	require.NotEmpty(t, tk.ID)
	assert.Equal(t, models.SyncStatusPending, tk.SyncStatus)

	entries, err := f.queue.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.OpCreate, entries[0].Op)

	// mirror refreshed as a side effect of the mutation
	mirror, err := f.meta.Get(ctx, metadata.KeyMirror)
	require.NoError(t, err)
	assert.NotEmpty(t, mirror)
}

func TestAdd_ValidationError(t *testing.T) {
	f := setup(t)

	req := validRequest()
	req.FromStation = ""
	_, err := f.svc.Add(context.Background(), req)
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestAdd_DuplicateNumberRejected(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Add(ctx, validRequest())
	require.NoError(t, err)

	_, err = f.svc.Add(ctx, validRequest())
	assert.ErrorIs(t, err, common.ErrDuplicateNumber)
}

func TestUpdate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	tk, err := f.svc.Add(ctx, validRequest())
	require.NoError(t, err)
	created := tk.UpdatedAt

	req := validRequest()
	req.Notes = "changed"
	got, err := f.svc.Update(ctx, tk.ID, req)
	require.NoError(t, err)
	assert.Equal(t, "changed", got.Notes)
	assert.True(t, got.UpdatedAt.After(created), "UpdatedAt must advance")

	// create followed by update keeps announcing a create
	entries, err := f.queue.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.OpCreate, entries[0].Op)
}

func TestUpdate_Missing(t *testing.T) {
	f := setup(t)
	_, err := f.svc.Update(context.Background(), "ghost", validRequest())
	assert.True(t, IsNotFound(err))
}

func TestDelete_SoftDeleteWithTombstone(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	req := validRequest()
	tk, err := f.svc.Add(ctx, req)
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, tk.ID))

	// invisible to user-facing reads
	_, err = f.svc.Get(ctx, tk.ID)
	assert.True(t, IsNotFound(err))

	// but the tombstone is still in the store
	raw, err := f.store.GetByID(ctx, tk.ID)
	require.NoError(t, err)
	require.NotNil(t, raw)
	assert.True(t, raw.Deleted)
	require.NotNil(t, raw.DeletedAt)

	// create+delete before any sync pass collapses to nothing
	n, err := f.queue.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestList_HidesTombstones(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	a, err := f.svc.Add(ctx, validRequest())
	require.NoError(t, err)

	req := validRequest()
	req.Number = "TK-002"
	_, err = f.svc.Add(ctx, req)
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, a.ID))

	visible, err := f.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "TK-002", visible[0].Number)
}

func TestAttachAndUploadImage(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	tk, err := f.svc.Add(ctx, validRequest())
	require.NoError(t, err)

	image := []byte{0xff, 0xd8, 0xff, 0xe0} // jpeg magic
	require.NoError(t, f.svc.AttachImage(ctx, tk.ID, image))

	got, err := f.svc.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString(image), got.ImageData)
	assert.Empty(t, got.ImageRef)

	require.NoError(t, f.svc.UploadImage(ctx, tk.ID))
	require.Len(t, f.uploaded, 1)
	assert.Equal(t, image, f.uploaded[0])

	got, err = f.svc.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "images/blob-1", got.ImageRef)

	// a second call is a no-op: the blob already has a reference
	require.NoError(t, f.svc.UploadImage(ctx, tk.ID))
	assert.Len(t, f.uploaded, 1)
}

func TestUploadImage_NoInlineImageIsNoOp(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	tk, err := f.svc.Add(ctx, validRequest())
	require.NoError(t, err)

	require.NoError(t, f.svc.UploadImage(ctx, tk.ID))
	assert.Empty(t, f.uploaded)
}

func TestUploadImage_TransferFailureIsNonFatal(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	tk, err := f.svc.Add(ctx, validRequest())
	require.NoError(t, err)
	require.NoError(t, f.svc.AttachImage(ctx, tk.ID, []byte{1, 2, 3}))

	f.upErr = errors.New("link dropped")
	err = f.svc.UploadImage(ctx, tk.ID)
	require.ErrorIs(t, err, common.ErrRemoteUnavailable)

	// the record keeps its inline copy and no dangling reference
	got, getErr := f.svc.Get(ctx, tk.ID)
	require.NoError(t, getErr)
	assert.NotEmpty(t, got.ImageData)
	assert.Empty(t, got.ImageRef)
}

func TestListByDateRange(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	early := validRequest()
	early.TravelDate = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	_, err := f.svc.Add(ctx, early)
	require.NoError(t, err)

	late := validRequest()
	late.Number = "TK-002"
	late.TravelDate = time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	_, err = f.svc.Add(ctx, late)
	require.NoError(t, err)

	got, err := f.svc.ListByDateRange(ctx,
		time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 7, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "TK-001", got[0].Number)
}
