// Package services implements the user-facing operations: every local
// mutation is a record-store write plus a pending-queue append in one
// transaction, so a change always "succeeds" immediately from the local
// perspective and syncs later.
package services

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"ticketkeeper/internal/common"
	"ticketkeeper/internal/dbx"
	"ticketkeeper/internal/logging"
	"ticketkeeper/internal/models"
	"ticketkeeper/internal/remote"
	"ticketkeeper/internal/repositories/metadata"
	"ticketkeeper/internal/repositories/pending"
	"ticketkeeper/internal/repositories/tickets"
)

// TicketRequest carries the user-supplied fields of a ticket.
type TicketRequest struct {
	Number      string    `validate:"omitempty,max=64"`
	TravelDate  time.Time `validate:"required"`
	FromStation string    `validate:"required,max=128"`
	ToStation   string    `validate:"required,max=128"`
	Notes       string    `validate:"max=2048"`
}

// TicketService is the mutation and query surface the CLI talks to.
type TicketService interface {
	Add(ctx context.Context, req TicketRequest) (*models.Ticket, error)
	Update(ctx context.Context, id string, req TicketRequest) (*models.Ticket, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*models.Ticket, error)
	List(ctx context.Context) ([]models.Ticket, error)
	ListByDateRange(ctx context.Context, from, to time.Time) ([]models.Ticket, error)
	AttachImage(ctx context.Context, id string, image []byte) error
	UploadImage(ctx context.Context, id string) error
}

type ticketService struct {
	db       *sql.DB
	store    tickets.Repository
	meta     metadata.Repository
	remote   remote.Adapter
	log      logging.Logger
	validate *validator.Validate
	now      func() time.Time
	upload   func(ctx context.Context, url string, payload []byte) error
}

// NewTicketService wires the service. The upload func performs the presigned
// PUT for image blobs (see netx.UploadToPresignedURL); injected so tests can
// fake the transfer.
func NewTicketService(
	db *sql.DB,
	store tickets.Repository,
	meta metadata.Repository,
	rem remote.Adapter,
	log logging.Logger,
	upload func(ctx context.Context, url string, payload []byte) error,
) TicketService {
	return &ticketService{
		db:       db,
		store:    store,
		meta:     meta,
		remote:   rem,
		log:      log.With("component", "tickets"),
		validate: validator.New(),
		now:      time.Now,
		upload:   upload,
	}
}

func (s *ticketService) Add(ctx context.Context, req TicketRequest) (*models.Ticket, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrValidation, err)
	}

	// natural-key uniqueness is checked at creation time only, never
	// during merge
	if req.Number != "" {
		existing, err := s.store.GetByNumber(ctx, req.Number)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, fmt.Errorf("%w: %s", common.ErrDuplicateNumber, req.Number)
		}
	}

	now := s.now().UTC()
	t := &models.Ticket{
		ID:          uuid.NewString(),
		Number:      req.Number,
		TravelDate:  req.TravelDate,
		FromStation: req.FromStation,
		ToStation:   req.ToStation,
		Notes:       req.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
		SyncStatus:  models.SyncStatusPending,
	}

	if err := s.commitMutation(ctx, t, models.OpCreate); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *ticketService) Update(ctx context.Context, id string, req TicketRequest) (*models.Ticket, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrValidation, err)
	}

	t, err := s.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}

	t.Number = req.Number
	t.TravelDate = req.TravelDate
	t.FromStation = req.FromStation
	t.ToStation = req.ToStation
	t.Notes = req.Notes
	s.touch(t)

	if err := s.commitMutation(ctx, t, models.OpUpdate); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *ticketService) Delete(ctx context.Context, id string) error {
	t, err := s.mustGet(ctx, id)
	if err != nil {
		return err
	}

	s.touch(t)
	deletedAt := t.UpdatedAt
	t.Deleted = true
	t.DeletedAt = &deletedAt

	return s.commitMutation(ctx, t, models.OpDelete)
}

func (s *ticketService) Get(ctx context.Context, id string) (*models.Ticket, error) {
	return s.mustGet(ctx, id)
}

func (s *ticketService) List(ctx context.Context) ([]models.Ticket, error) {
	all, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	visible := all[:0]
	for _, t := range all {
		if !t.Deleted {
			visible = append(visible, t)
		}
	}
	return visible, nil
}

func (s *ticketService) ListByDateRange(ctx context.Context, from, to time.Time) ([]models.Ticket, error) {
	return s.store.GetByDateRange(ctx, from, to)
}

// AttachImage stores the scanned image inline on the record and queues the
// change. The remote reference is obtained separately by UploadImage.
func (s *ticketService) AttachImage(ctx context.Context, id string, image []byte) error {
	t, err := s.mustGet(ctx, id)
	if err != nil {
		return err
	}

	t.ImageData = base64.StdEncoding.EncodeToString(image)
	s.touch(t)

	return s.commitMutation(ctx, t, models.OpUpdate)
}

// UploadImage pushes the record's inline image to the blob store and queues
// an update carrying the obtained reference id. Best-effort and decoupled
// from the metadata sync loop: a failure here never blocks record sync.
func (s *ticketService) UploadImage(ctx context.Context, id string) error {
	t, err := s.mustGet(ctx, id)
	if err != nil {
		return err
	}
	if !t.HasInlineImage() {
		return nil
	}
	if t.ImageRef != "" {
		return nil
	}

	payload, err := base64.StdEncoding.DecodeString(t.ImageData)
	if err != nil {
		return fmt.Errorf("decoding inline image: %w", err)
	}

	blobID, url, err := s.remote.PresignPut(ctx)
	if err != nil {
		return err
	}
	if err := s.upload(ctx, url, payload); err != nil {
		return fmt.Errorf("%w: image upload: %w", common.ErrRemoteUnavailable, err)
	}

	t.ImageRef = blobID
	s.touch(t)

	s.log.Info(ctx, "image uploaded", "ticket", t.ID, "blob", blobID)
	return s.commitMutation(ctx, t, models.OpUpdate)
}

func (s *ticketService) mustGet(ctx context.Context, id string) (*models.Ticket, error) {
	t, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil || t.Deleted {
		return nil, fmt.Errorf("%w: ticket %s", common.ErrNotFound, id)
	}
	return t, nil
}

// touch advances UpdatedAt, keeping it monotonic even against clock skew.
func (s *ticketService) touch(t *models.Ticket) {
	now := s.now().UTC()
	if !now.After(t.UpdatedAt) {
		now = t.UpdatedAt.Add(time.Millisecond)
	}
	t.UpdatedAt = now
}

// commitMutation applies the store write and the queue append atomically,
// then refreshes the offline mirror. A storage failure here is fatal to the
// triggering user action; nothing is partially applied.
func (s *ticketService) commitMutation(ctx context.Context, t *models.Ticket, op models.Op) error {
	t.SyncStatus = models.SyncStatusPending

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := tickets.NewSQLiteRepository(tx).Save(ctx, t); err != nil {
			return err
		}
		return pending.NewSQLiteRepository(tx).Enqueue(ctx, t, op)
	})
	if err != nil {
		return err
	}

	if err := s.refreshMirror(ctx); err != nil {
		// the mirror is a convenience cache, not a source of truth
		s.log.Warn(ctx, "failed to refresh offline mirror", "error", err)
	}
	return nil
}

func (s *ticketService) refreshMirror(ctx context.Context) error {
	visible, err := s.List(ctx)
	if err != nil {
		return err
	}
	if visible == nil {
		visible = []models.Ticket{}
	}
	body, err := json.Marshal(visible)
	if err != nil {
		return err
	}
	return s.meta.Set(ctx, metadata.KeyMirror, body)
}

// IsNotFound reports whether err means the record does not exist (or is
// soft-deleted, which looks the same to callers).
func IsNotFound(err error) bool {
	return errors.Is(err, common.ErrNotFound)
}
