// Package eventstore keeps an append-only journal of generation batches in
// SQLite. The journal is history only; staleness is never derived from it.
package eventstore

import "time"

// Event is one journal row.
type Event struct {
	ID        int64
	BatchID   string
	Type      string
	Timestamp time.Time
	Payload   []byte
	Metadata  map[string]string
}

// Event type names.
const (
	TypeBatchStarted  = "batch_started"
	TypeBatchFinished = "batch_finished"
	TypeBatchFailed   = "batch_failed"
)
