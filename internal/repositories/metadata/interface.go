package metadata

import "context"

// Well-known metadata keys.
const (
	// KeyMirror holds the flat JSON projection of visible tickets used for
	// fully offline reads. A convenience cache, never a source of truth.
	KeyMirror = "sync.mirror"

	// KeyDropped counts queue entries discarded after exhausting their retry
	// budget, so a UI can surface "N changes failed to sync".
	KeyDropped = "sync.dropped"

	// KeyToken stores the bearer credential obtained by the external
	// authentication flow.
	KeyToken = "auth.token"
)

// Repository is a small durable key/value side table for engine state that
// does not belong in the record store.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}
