package scheduler

import (
	"sync"
	"sync/atomic"
	"time"
)

// Horizon is the process-wide cancellation point. Work started before the
// most recent Advance treats itself as cancelled at its next check point.
//
// Starts and advances are ordered by an epoch counter rather than wall-clock
// comparisons, so a start and an advance in the same clock tick still order
// correctly.
type Horizon struct {
	epoch atomic.Uint64

	mu sync.Mutex
	at time.Time
}

// NewHorizon returns a horizon that cancels nothing.
func NewHorizon() *Horizon {
	return &Horizon{}
}

// Advance cancels everything started before this call.
func (h *Horizon) Advance() {
	h.mu.Lock()
	h.at = time.Now()
	h.epoch.Add(1)
	h.mu.Unlock()
}

// At returns the time of the most recent Advance, or the zero time.
func (h *Horizon) At() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.at
}

// Start records a task start against the current horizon.
func (h *Horizon) Start() Ticket {
	return Ticket{h: h, epoch: h.epoch.Load(), Started: time.Now()}
}

// Ticket is a task's recorded start.
type Ticket struct {
	h       *Horizon
	epoch   uint64
	Started time.Time
}

// Cancelled reports whether the horizon advanced past this ticket's start.
func (t Ticket) Cancelled() bool {
	if t.h == nil {
		return false
	}
	return t.h.epoch.Load() != t.epoch
}
