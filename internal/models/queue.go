package models

import "time"

// Op classifies the local intent recorded in the pending-operation queue.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// QueueEntry is one durable pending-operation record: the latest unsynced
// intent for a single ticket id. Payload is a JSON snapshot of the ticket
// taken at enqueue time; Attempts counts failed sync passes.
type QueueEntry struct {
	ID       int64
	TicketID string
	Op       Op
	Payload  []byte
	Attempts int
	QueuedAt time.Time
}
