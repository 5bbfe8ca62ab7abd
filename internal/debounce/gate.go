// Package debounce coalesces bursts of calls into a single execution.
package debounce

import (
	"context"
	"log/slog"
	"sync"
	"time"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// DefaultWindow is the quiet window used by the preview shell.
const DefaultWindow = time.Second

// Func is the operation a Gate wraps. It receives the union of every
// argument passed during the window, in first-seen order.
type Func[T comparable] func(ctx context.Context, args []T) error

// Gate collapses calls arriving within a quiet window into one execution.
// Every call resets the window, so a steady stream of calls postpones the
// execution until the calls stop for the full window.
type Gate[T comparable] struct {
	name   string
	window time.Duration
	fn     Func[T]
	ctx    context.Context
	logger *slog.Logger

	mu      sync.Mutex
	pending []T
	seen    map[T]struct{}
	armed   bool
	gen     uint64
	timer   *time.Timer
	closed  bool
	running sync.WaitGroup
}

// New creates a gate. Executions run with ctx; once ctx is done, pending
// calls are dropped.
func New[T comparable](ctx context.Context, name string, window time.Duration, fn Func[T], logger *slog.Logger) (*Gate[T], error) {
	if ctx == nil {
		return nil, ferrors.ValidationError("context cannot be nil").Build()
	}
	if window <= 0 {
		return nil, ferrors.ValidationError("quiet window must be > 0").WithContext("gate", name).Build()
	}
	if fn == nil {
		return nil, ferrors.ValidationError("gate function is required").WithContext("gate", name).Build()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate[T]{
		name:   name,
		window: window,
		fn:     fn,
		ctx:    ctx,
		logger: logger,
		seen:   make(map[T]struct{}),
	}, nil
}

// Name returns the gate's name.
func (g *Gate[T]) Name() string { return g.name }

// Call adds args to the pending union and restarts the quiet window.
func (g *Gate[T]) Call(args ...T) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	for _, a := range args {
		if _, dup := g.seen[a]; dup {
			continue
		}
		g.seen[a] = struct{}{}
		g.pending = append(g.pending, a)
	}
	g.armed = true
	g.gen++
	if g.timer != nil {
		g.timer.Stop()
	}
	gen := g.gen
	g.timer = time.AfterFunc(g.window, func() { g.fire(gen) })
}

// fire runs the execution armed by the call numbered gen, unless a later call
// restarted the window in the meantime.
func (g *Gate[T]) fire(gen uint64) {
	g.mu.Lock()
	if g.gen != gen {
		g.mu.Unlock()
		return
	}
	args, ok := g.takeLocked()
	g.mu.Unlock()
	if ok {
		g.exec(args)
	}
}

// takeLocked claims the pending arguments. It reports false when nothing is
// armed.
func (g *Gate[T]) takeLocked() ([]T, bool) {
	if !g.armed || g.closed {
		return nil, false
	}
	args := g.pending
	g.pending = nil
	g.seen = make(map[T]struct{})
	g.armed = false
	g.timer = nil
	g.running.Add(1)
	return args, true
}

func (g *Gate[T]) exec(args []T) {
	defer g.running.Done()
	if g.ctx.Err() != nil {
		return
	}
	if err := g.fn(g.ctx, args); err != nil {
		g.logger.Error("Debounced operation failed",
			logfields.Gate(g.name),
			logfields.Error(err))
	}
}

// Flush runs any pending execution now and waits for it to finish.
func (g *Gate[T]) Flush() {
	g.mu.Lock()
	if g.timer != nil {
		g.timer.Stop()
	}
	args, ok := g.takeLocked()
	g.mu.Unlock()
	if ok {
		g.exec(args)
	}
}

// Pending reports whether a call is waiting for its window to elapse.
func (g *Gate[T]) Pending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.armed
}

// Stop drops any pending call, rejects further calls and waits for a running
// execution to return.
func (g *Gate[T]) Stop() {
	g.mu.Lock()
	g.closed = true
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.pending = nil
	g.armed = false
	g.mu.Unlock()
	g.running.Wait()
}
