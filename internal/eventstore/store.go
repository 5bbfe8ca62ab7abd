package eventstore

import (
	"context"
	"time"
)

// Store persists and retrieves journal events.
type Store interface {
	Append(ctx context.Context, batchID, eventType string, payload []byte, metadata map[string]string) error
	GetByBatchID(ctx context.Context, batchID string) ([]Event, error)
	GetRange(ctx context.Context, start, end time.Time) ([]Event, error)
	Close() error
}
