// Package events defines the in-process build events and the bus that carries
// them to the live-reload hub and notification publishers.
package events

import "time"

// Event is implemented by every build event.
type Event interface {
	EventBatchID() string
}

// PagesBuilt is published after each generation batch, whether or not it ran
// to completion.
type PagesBuilt struct {
	BatchID   string    `json:"batch_id"`
	Mode      string    `json:"mode"`
	Keys      []string  `json:"keys"`
	Completed bool      `json:"completed"`
	At        time.Time `json:"at"`
}

func (e PagesBuilt) EventBatchID() string { return e.BatchID }

// BuildFailed is published when a batch aborts with an error.
type BuildFailed struct {
	BatchID string    `json:"batch_id"`
	Mode    string    `json:"mode"`
	Page    string    `json:"page,omitempty"`
	Error   string    `json:"error"`
	At      time.Time `json:"at"`
}

func (e BuildFailed) EventBatchID() string { return e.BatchID }
