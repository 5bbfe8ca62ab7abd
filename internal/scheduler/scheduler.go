// Package scheduler runs page generation tasks under a concurrency budget with
// cooperative cancellation.
package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
)

// DefaultConcurrency is the pool size used when none is configured.
const DefaultConcurrency = 8

// Page is one unit of generation work.
type Page interface {
	Key() string
	Generate(ctx context.Context) error
}

// Mode selects how a task's pages are executed.
type Mode int

const (
	// Sequential runs pages one at a time in submission order.
	Sequential Mode = iota
	// Concurrent runs pages in a bounded pool.
	Concurrent
)

func (m Mode) String() string {
	if m == Sequential {
		return "sequential"
	}
	return "concurrent"
}

// Task is an ordered group of pages run in one mode.
type Task struct {
	Mode  Mode
	Pages []Page
}

// ProgressFunc is called after each page generation attempt.
type ProgressFunc func(done, total int, key string)

// Scheduler executes tasks. A Scheduler may run several batches at once; they
// share the horizon and the in-flight gauge.
type Scheduler struct {
	horizon     *Horizon
	concurrency int
	onBuilt     func(key string)
	progress    ProgressFunc
	recorder    metrics.Recorder
	logger      *slog.Logger
	inFlight    atomic.Int64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithConcurrency sets K, the cap on simultaneously running generations.
func WithConcurrency(k int) Option {
	return func(s *Scheduler) {
		if k > 0 {
			s.concurrency = k
		}
	}
}

// WithOnBuilt registers the hook called once a page's generation was attempted.
func WithOnBuilt(fn func(key string)) Option {
	return func(s *Scheduler) { s.onBuilt = fn }
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(s *Scheduler) { s.progress = fn }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Scheduler) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a scheduler bound to horizon.
func New(horizon *Horizon, opts ...Option) *Scheduler {
	if horizon == nil {
		horizon = NewHorizon()
	}
	s := &Scheduler{
		horizon:     horizon,
		concurrency: DefaultConcurrency,
		recorder:    metrics.NoopRecorder{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Horizon returns the scheduler's cancellation horizon.
func (s *Scheduler) Horizon() *Horizon { return s.horizon }

// Concurrency returns K.
func (s *Scheduler) Concurrency() int { return s.concurrency }

// Run executes tasks in order. It returns completed=false when the horizon
// advanced past the batch start before every page was dispatched; that is not
// an error. A page failure aborts the batch and is returned as a generation
// error naming the page.
func (s *Scheduler) Run(ctx context.Context, tasks ...Task) (bool, error) {
	ticket := s.horizon.Start()
	for _, task := range tasks {
		if len(task.Pages) == 0 {
			continue
		}
		start := time.Now()
		var (
			completed bool
			err       error
		)
		if task.Mode == Sequential {
			completed, err = s.runSequential(ctx, ticket, task.Pages)
		} else {
			completed, err = s.runConcurrent(ctx, ticket, task.Pages)
		}
		s.recorder.ObserveBatchDuration(task.Mode.String(), time.Since(start))

		switch {
		case err != nil:
			s.recorder.IncTaskOutcome(task.Mode.String(), metrics.OutcomeFailed)
			return false, err
		case !completed:
			s.recorder.IncTaskOutcome(task.Mode.String(), metrics.OutcomeCancelled)
			s.logger.Debug("Generation task cancelled",
				logfields.TaskMode(task.Mode.String()),
				slog.Time("horizon", s.horizon.At()))
			return false, nil
		default:
			s.recorder.IncTaskOutcome(task.Mode.String(), metrics.OutcomeCompleted)
		}
	}
	return true, nil
}

func (s *Scheduler) runSequential(ctx context.Context, ticket Ticket, pages []Page) (bool, error) {
	for i, p := range pages {
		if ticket.Cancelled() || ctx.Err() != nil {
			return false, nil
		}
		if err := s.generate(ctx, p); err != nil {
			if ctx.Err() != nil {
				return false, nil
			}
			return false, err
		}
		s.tick(i+1, len(pages), p.Key())
	}
	return true, nil
}

// runConcurrent keeps at most K generations in flight. The first K pages are
// taken from the head of the queue; each replacement is taken from the tail.
func (s *Scheduler) runConcurrent(ctx context.Context, ticket Ticket, pages []Page) (bool, error) {
	queue := append([]Page(nil), pages...)
	total := len(queue)
	k := min(s.concurrency, total)

	sem := semaphore.NewWeighted(int64(k))
	g, gctx := errgroup.WithContext(ctx)
	var done atomic.Int64

	dispatched := 0
	cancelled := false
	for len(queue) > 0 {
		if err := sem.Acquire(gctx, 1); err != nil {
			// A failed page or the caller cancelled gctx; Wait reports which.
			break
		}
		if ticket.Cancelled() {
			sem.Release(1)
			cancelled = true
			break
		}
		var p Page
		if dispatched < k {
			p, queue = queue[0], queue[1:]
		} else {
			p, queue = queue[len(queue)-1], queue[:len(queue)-1]
		}
		dispatched++

		g.Go(func() error {
			defer sem.Release(1)
			if err := s.generate(gctx, p); err != nil {
				return err
			}
			s.tick(int(done.Add(1)), total, p.Key())
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return false, nil
		}
		return false, err
	}
	if cancelled || ctx.Err() != nil {
		return false, nil
	}
	return true, nil
}

func (s *Scheduler) generate(ctx context.Context, p Page) error {
	s.recorder.SetInFlight(int(s.inFlight.Add(1)))
	err := p.Generate(ctx)
	s.recorder.SetInFlight(int(s.inFlight.Add(-1)))

	if s.onBuilt != nil {
		s.onBuilt(p.Key())
	}
	if err != nil {
		s.recorder.IncPageResult(metrics.ResultFailed)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if ce, ok := errors.AsClassified(err); ok && ce.Category() == errors.CategoryGeneration {
			if _, named := ce.Context().Get("page"); named {
				return ce
			}
			return ce.WithContext("page", p.Key())
		}
		return errors.WrapError(err, errors.CategoryGeneration, "page generation failed").
			WithContext("page", p.Key()).
			Build()
	}
	s.recorder.IncPageResult(metrics.ResultSuccess)
	return nil
}

func (s *Scheduler) tick(done, total int, key string) {
	if s.progress != nil {
		s.progress(done, total, key)
	}
}
