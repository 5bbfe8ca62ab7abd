package eventstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// BatchStarted is the payload of a batch_started event.
type BatchStarted struct {
	Mode  string   `json:"mode"`
	Pages []string `json:"pages"`
}

// BatchFinished is the payload of a batch_finished event.
type BatchFinished struct {
	Mode       string `json:"mode"`
	Completed  bool   `json:"completed"`
	DurationMS int64  `json:"duration_ms"`
}

// BatchFailed is the payload of a batch_failed event.
type BatchFailed struct {
	Mode  string `json:"mode"`
	Page  string `json:"page,omitempty"`
	Error string `json:"error"`
}

// Journal records batch lifecycle events. Failures to record are logged and
// never returned; a nil Journal records nothing.
type Journal struct {
	store  Store
	logger *slog.Logger
}

// NewJournal wraps store. A nil logger uses slog.Default().
func NewJournal(store Store, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{store: store, logger: logger}
}

// Started records the start of a batch.
func (j *Journal) Started(ctx context.Context, batchID string, p BatchStarted) {
	j.append(ctx, batchID, TypeBatchStarted, p, map[string]string{"pages": strconv.Itoa(len(p.Pages))})
}

// Finished records a batch that ended without error.
func (j *Journal) Finished(ctx context.Context, batchID string, mode string, completed bool, d time.Duration) {
	j.append(ctx, batchID, TypeBatchFinished, BatchFinished{Mode: mode, Completed: completed, DurationMS: d.Milliseconds()}, nil)
}

// Failed records a batch that aborted with an error.
func (j *Journal) Failed(ctx context.Context, batchID string, p BatchFailed) {
	j.append(ctx, batchID, TypeBatchFailed, p, nil)
}

// Close closes the underlying store.
func (j *Journal) Close() error {
	if j == nil || j.store == nil {
		return nil
	}
	return j.store.Close()
}

func (j *Journal) append(ctx context.Context, batchID, eventType string, payload any, meta map[string]string) {
	if j == nil || j.store == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		j.logger.Warn("Failed to encode journal event", logfields.BatchID(batchID), logfields.Error(err))
		return
	}
	// Journal writes must not be lost to a cancelled build.
	if err := j.store.Append(context.WithoutCancel(ctx), batchID, eventType, data, meta); err != nil {
		j.logger.Warn("Failed to append journal event",
			logfields.BatchID(batchID),
			slog.String("event_type", eventType),
			logfields.Error(err))
	}
}
