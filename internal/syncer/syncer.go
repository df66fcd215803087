package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"ticketkeeper/internal/auth"
	"ticketkeeper/internal/logging"
	"ticketkeeper/internal/models"
	"ticketkeeper/internal/remote"
	"ticketkeeper/internal/repositories/metadata"
	"ticketkeeper/internal/repositories/pending"
	"ticketkeeper/internal/repositories/tickets"
)

// DefaultMaxRetries is how many failed passes a queue entry survives before
// it is dropped.
const DefaultMaxRetries = 3

// OnlineFunc reports current network connectivity.
type OnlineFunc func(ctx context.Context) bool

// Config tunes a Syncer.
type Config struct {
	// ArtifactName is the logical name of the canonical remote artifact.
	ArtifactName string

	// MaxRetries is the per-entry retry ceiling (DefaultMaxRetries when <= 0).
	MaxRetries int
}

// Syncer drives sync passes. One pass attempts full consistency between the
// local store and the remote artifact, then stops; callers re-invoke it on an
// interval, on reconnect, or on explicit user action.
//
// The embedded mutex is the upload lock: at most one upload sequence is in
// flight per process. It does not protect against another device racing
// against the remote store — that race is tolerated and corrected after the
// fact by the duplicate cleanup step of the next pass.
type Syncer struct {
	store  tickets.Repository
	queue  pending.Repository
	meta   metadata.Repository
	remote remote.Adapter
	creds  auth.Source
	online OnlineFunc
	log    logging.Logger
	now    func() time.Time

	artifact   string
	maxRetries int

	mu sync.Mutex
}

// New wires a Syncer from explicitly constructed dependencies so tests can
// substitute fakes for the remote store and the credential source.
func New(
	store tickets.Repository,
	queue pending.Repository,
	meta metadata.Repository,
	rem remote.Adapter,
	creds auth.Source,
	online OnlineFunc,
	log logging.Logger,
	cfg Config,
) *Syncer {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Syncer{
		store:      store,
		queue:      queue,
		meta:       meta,
		remote:     rem,
		creds:      creds,
		online:     online,
		log:        log.With("component", "syncer"),
		now:        time.Now,
		artifact:   cfg.ArtifactName,
		maxRetries: maxRetries,
	}
}

// Sync runs one pass. Absent connectivity or an absent/expired credential is
// an expected steady state, not a failure: the pass is then a no-op returning
// nil. A failed pass leaves the queue intact (minus entries that exhausted
// their retry budget) and never marks anything synced.
func (s *Syncer) Sync(ctx context.Context) error {
	if !s.creds.IsAuthorized(ctx) {
		s.log.Debug(ctx, "sync pass skipped", "reason", "no valid credential")
		return nil
	}
	if !s.online(ctx) {
		s.log.Debug(ctx, "sync pass skipped", "reason", "offline")
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.queue.Drain(ctx)
	if err != nil {
		return fmt.Errorf("sync pass: %w", err)
	}

	containerID, err := s.remote.EnsureContainer(ctx)
	if err != nil {
		return s.fail(ctx, entries, err)
	}

	fileIDs, err := s.remote.FindAllByName(ctx, s.artifact)
	if err != nil {
		return s.fail(ctx, entries, err)
	}

	remoteSet, err := s.fetchArtifact(ctx, fileIDs)
	if err != nil {
		return s.fail(ctx, entries, err)
	}

	remoteSet = s.applyIntents(ctx, remoteSet, entries)

	local, err := s.store.GetAll(ctx)
	if err != nil {
		return s.fail(ctx, entries, err)
	}

	// defensive re-merge: catches local records the queue did not cover
	merged, stats := Merge(remoteSet, local)
	if stats.TieBreaks > 0 {
		s.log.Info(ctx, "merge tie-break to remote applied", "count", stats.TieBreaks)
	}

	if err := s.upload(ctx, containerID, fileIDs, merged); err != nil {
		return s.fail(ctx, entries, err)
	}

	if err := s.commit(ctx, entries, merged); err != nil {
		return fmt.Errorf("sync pass: %w", err)
	}

	s.log.Info(ctx, "sync pass finished",
		"records", len(merged), "applied", len(entries),
		"localWins", stats.LocalWins, "remoteWins", stats.RemoteWins)
	return nil
}

// fetchArtifact reads and decodes the freshest canonical artifact, or returns
// an empty set when none exists yet. An undecodable artifact is treated as
// empty so the pass rebuilds it from local state instead of wedging forever.
func (s *Syncer) fetchArtifact(ctx context.Context, fileIDs []string) ([]models.Ticket, error) {
	if len(fileIDs) == 0 {
		return nil, nil
	}

	body, err := s.remote.Read(ctx, fileIDs[0])
	if err != nil {
		return nil, err
	}

	var set []models.Ticket
	if err := json.Unmarshal(body, &set); err != nil {
		s.log.Warn(ctx, "remote artifact unreadable, rebuilding from local state", "error", err)
		return nil, nil
	}
	return set, nil
}

// applyIntents replays queued local intents onto the fetched remote set in
// memory: create/update upsert by id using LWW, delete removes by id (the
// local tombstone re-enters through the merge and propagates the deletion).
func (s *Syncer) applyIntents(ctx context.Context, set []models.Ticket, entries []models.QueueEntry) []models.Ticket {
	byID := make(map[string]int, len(set))
	for i, t := range set {
		byID[t.ID] = i
	}

	for _, e := range entries {
		switch e.Op {
		case models.OpDelete:
			if i, ok := byID[e.TicketID]; ok {
				set[i] = set[len(set)-1]
				set = set[:len(set)-1]
				delete(byID, e.TicketID)
				if i < len(set) {
					byID[set[i].ID] = i
				}
			}
		case models.OpCreate, models.OpUpdate:
			var snap models.Ticket
			if err := json.Unmarshal(e.Payload, &snap); err != nil {
				s.log.Warn(ctx, "skipping undecodable queue entry", "ticket", e.TicketID, "error", err)
				continue
			}
			if i, ok := byID[snap.ID]; ok {
				// equal timestamps keep the fetched copy, the same tie
				// direction the merge applies
				if snap.UpdatedAt.After(set[i].UpdatedAt) {
					set[i] = snap
				}
			} else {
				set = append(set, snap)
				byID[snap.ID] = len(set) - 1
			}
		}
	}
	return set
}

// upload writes the merged set as the canonical artifact. When several remote
// files share the canonical name — a race from before this process's upload
// lock, or another device — the freshest one is updated and the rest are
// deleted (self-healing duplicate cleanup).
func (s *Syncer) upload(ctx context.Context, containerID string, fileIDs []string, merged []models.Ticket) error {
	wire := make([]models.Ticket, len(merged))
	for i, t := range merged {
		wire[i] = t.ToRemote()
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("encoding artifact: %w", err)
	}

	if len(fileIDs) == 0 {
		_, err := s.remote.Create(ctx, containerID, s.artifact, body)
		return err
	}

	if err := s.remote.Update(ctx, fileIDs[0], body); err != nil {
		return err
	}
	for _, dup := range fileIDs[1:] {
		if err := s.remote.Delete(ctx, dup); err != nil {
			// the duplicate survives until the next pass retries the cleanup
			s.log.Warn(ctx, "failed to delete duplicate artifact", "file", dup, "error", err)
		}
	}
	return nil
}

// commit makes the merged set the local truth: every record is stored as
// synced, the applied queue entries disappear, and the offline mirror is
// refreshed.
//
// Records edited while the pass was at the remote are left alone: their
// stored copy is newer than the merged one, so writing the merged copy back
// would erase the edit. The fresh copy stays pending with its re-queued
// intent and the next pass uploads it.
func (s *Syncer) commit(ctx context.Context, entries []models.QueueEntry, merged []models.Ticket) error {
	current, err := s.store.GetAll(ctx)
	if err != nil {
		return err
	}
	stored := make(map[string]models.Ticket, len(current))
	for _, t := range current {
		stored[t.ID] = t
	}

	dirty := make(map[string]bool)
	truth := make([]models.Ticket, 0, len(merged))
	for i := range merged {
		if cur, ok := stored[merged[i].ID]; ok && cur.UpdatedAt.After(merged[i].UpdatedAt) {
			dirty[merged[i].ID] = true
			truth = append(truth, cur)
			continue
		}
		merged[i].SyncStatus = models.SyncStatusSynced
		if err := s.store.Save(ctx, &merged[i]); err != nil {
			return err
		}
		truth = append(truth, merged[i])
	}

	// deleted records dropped from the artifact are not in the merged set,
	// yet their intent has been applied: flip them to synced too
	entryIDs := make([]int64, 0, len(entries))
	ticketIDs := make([]string, 0, len(entries))
	for _, e := range entries {
		entryIDs = append(entryIDs, e.ID)
		if !dirty[e.TicketID] {
			ticketIDs = append(ticketIDs, e.TicketID)
		}
	}
	if err := s.store.SetSyncStatus(ctx, ticketIDs, models.SyncStatusSynced); err != nil {
		return err
	}
	if err := s.queue.Remove(ctx, entryIDs); err != nil {
		return err
	}

	return s.refreshMirror(ctx, truth)
}

func (s *Syncer) refreshMirror(ctx context.Context, merged []models.Ticket) error {
	visible := make([]models.Ticket, 0, len(merged))
	for _, t := range merged {
		if !t.Deleted {
			visible = append(visible, t)
		}
	}
	body, err := json.Marshal(visible)
	if err != nil {
		return fmt.Errorf("encoding mirror: %w", err)
	}
	return s.meta.Set(ctx, metadata.KeyMirror, body)
}

// fail records a failed pass: every drained entry gets its attempt counter
// bumped, entries over the retry ceiling are dropped (a logged, best-effort
// data-loss boundary — never a fatal error) and the classified cause is
// returned for the caller to decide between re-auth and silent retry.
func (s *Syncer) fail(ctx context.Context, entries []models.QueueEntry, cause error) error {
	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}

	if err := s.queue.Bump(ctx, ids); err != nil {
		s.log.Error(ctx, "failed to bump retry counters", "error", err)
	}

	dropped, err := s.queue.DropExhausted(ctx, s.maxRetries)
	if err != nil {
		s.log.Error(ctx, "failed to drop exhausted entries", "error", err)
	}
	if dropped > 0 {
		s.log.Warn(ctx, "changes failed to sync and were dropped", "count", dropped)
		s.recordDropped(ctx, dropped)
	}

	return fmt.Errorf("sync pass: %w", cause)
}

// recordDropped keeps a running total of dropped changes so a UI can surface
// "N changes failed to sync" instead of losing them silently.
func (s *Syncer) recordDropped(ctx context.Context, n int) {
	raw, err := s.meta.Get(ctx, metadata.KeyDropped)
	if err != nil {
		s.log.Error(ctx, "failed to read dropped count", "error", err)
		return
	}
	total, _ := strconv.Atoi(string(raw))
	total += n
	if err := s.meta.Set(ctx, metadata.KeyDropped, []byte(strconv.Itoa(total))); err != nil {
		s.log.Error(ctx, "failed to record dropped count", "error", err)
	}
}
