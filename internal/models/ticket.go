// Package models defines the ticket record and pending-operation types shared
// by the repositories and the sync engine.
package models

import "time"

// SyncStatus tracks how far a record has travelled towards the remote store.
type SyncStatus string

const (
	// SyncStatusLocal marks a record that exists only on this device and has
	// never been offered to the remote store. It is the schema default for
	// rows written outside the service layer (imports, manual fixes); normal
	// mutations queue their change in the same transaction and therefore
	// start directly at pending.
	SyncStatusLocal SyncStatus = "local"

	// SyncStatusPending marks a record whose latest change sits in the
	// pending-operation queue awaiting a sync pass.
	SyncStatusPending SyncStatus = "pending"

	// SyncStatusSynced marks a record whose latest change has been confirmed
	// as persisted remotely.
	SyncStatusSynced SyncStatus = "synced"
)

// Ticket is the unit of synchronization.
//
// ID is globally unique and immutable. Number is the optional natural key
// (the printed ticket number); its uniqueness is enforced locally at creation
// time only, never during merge. ImageData holds an inline encoded copy of
// the scanned image and is never uploaded inside the record body; ImageRef
// points at an out-of-band uploaded blob instead.
type Ticket struct {
	ID          string     `json:"id"`
	Number      string     `json:"number,omitempty"`
	TravelDate  time.Time  `json:"travelDate"`
	FromStation string     `json:"fromStation,omitempty"`
	ToStation   string     `json:"toStation,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	ImageData   string     `json:"imageData,omitempty"`
	ImageRef    string     `json:"imageRef,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	SyncStatus  SyncStatus `json:"syncStatus"`
	Deleted     bool       `json:"deleted"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty"`
}

// HasInlineImage reports whether the record carries a raw embedded image
// payload (as opposed to an empty field or a remote reference).
func (t Ticket) HasInlineImage() bool {
	return t.ImageData != ""
}

// ToRemote returns the wire representation of the record: the inline image is
// blanked, everything else travels as-is.
func (t Ticket) ToRemote() Ticket {
	t.ImageData = ""
	return t
}
