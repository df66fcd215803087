// Package remote abstracts the remote blob/folder store the sync engine
// uploads to. The engine only depends on this contract; the S3 implementation
// lives alongside it.
package remote

import "context"

// Adapter is the capability the sync orchestrator consumes.
//
// Names are logical: the store may hold several physical files for the same
// name (a known failure mode from concurrent writers), which is why
// FindAllByName exists — the orchestrator collapses duplicates itself.
// All methods fail with common.ErrNotAuthorized, common.ErrRemoteRejected or
// common.ErrRemoteUnavailable so callers can tell an expired credential from
// a transient fault.
type Adapter interface {
	// EnsureContainer verifies the backing container exists and returns its id.
	EnsureContainer(ctx context.Context) (string, error)

	// FindByName returns the id of one file carrying the logical name, or ""
	// when none exists.
	FindByName(ctx context.Context, name string) (string, error)

	// FindAllByName returns every file carrying the logical name, freshest
	// first. Used for duplicate detection.
	FindAllByName(ctx context.Context, name string) ([]string, error)

	// Create stores a new file under the logical name and returns its id.
	Create(ctx context.Context, containerID, name string, body []byte) (string, error)

	// Update overwrites an existing file.
	Update(ctx context.Context, fileID string, body []byte) error

	// Delete removes a file.
	Delete(ctx context.Context, fileID string) error

	// Read returns a file's content.
	Read(ctx context.Context, fileID string) ([]byte, error)

	// PresignPut issues a short-lived upload URL for an out-of-band blob
	// (ticket images travel outside the record body) and returns the blob id
	// the record should reference.
	PresignPut(ctx context.Context) (blobID string, url string, err error)
}
