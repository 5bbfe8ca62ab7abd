// Package orchestrator drives incremental site generation: it resolves the
// page set, tracks stale pages, and schedules regeneration batches for full,
// lazy, change-driven, navigation and background builds.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/events"
	"git.home.luguber.info/inful/sitebuilder/internal/eventstore"
	"git.home.luguber.info/inful/sitebuilder/internal/filelister"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
	"git.home.luguber.info/inful/sitebuilder/internal/pageset"
	"git.home.luguber.info/inful/sitebuilder/internal/render"
	"git.home.luguber.info/inful/sitebuilder/internal/scheduler"
	"git.home.luguber.info/inful/sitebuilder/internal/siteindex"
	"git.home.luguber.info/inful/sitebuilder/internal/staleness"
	"git.home.luguber.info/inful/sitebuilder/internal/workspace"
)

// Page is a generation artifact for one addressable page.
type Page interface {
	Key() string
	IsDependency(path string) bool
	Generate(ctx context.Context, rc *render.Context) error
	// Summary returns the index entry of the last successful generation.
	Summary() (siteindex.Entry, bool)
	Searchable() bool
	Addressable() pageset.AddressablePage
}

// PageFactory creates artifacts.
type PageFactory interface {
	New(p pageset.AddressablePage) Page
}

// PageFactoryFunc adapts a function to PageFactory.
type PageFactoryFunc func(p pageset.AddressablePage) Page

// New implements PageFactory.
func (f PageFactoryFunc) New(p pageset.AddressablePage) Page { return f(p) }

// Orchestrator owns the live page collection and the staleness state of one
// build session. It is safe for concurrent use.
type Orchestrator struct {
	cfg       *config.Config
	lazy      bool
	resolver  *pageset.Resolver
	factory   PageFactory
	variables *render.Variables
	workspace *workspace.Manager
	tracker   *staleness.Tracker
	sched     *scheduler.Scheduler
	recorder  metrics.Recorder
	journal   *eventstore.Journal
	bus       *events.Bus
	logger    *slog.Logger

	lister   filelister.Lister
	progress scheduler.ProgressFunc

	mu      sync.RWMutex
	entries []config.PageEntry
	set     *pageset.PageSet
	pages   map[string]Page
	vars    map[string]any
	viewed  string

	indexMu sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLazy selects lazy mode.
func WithLazy(lazy bool) Option {
	return func(o *Orchestrator) { o.lazy = lazy }
}

// WithPageFactory replaces the markdown page factory.
func WithPageFactory(f PageFactory) Option {
	return func(o *Orchestrator) { o.factory = f }
}

// WithLister replaces the filesystem lister used for glob entries.
func WithLister(l filelister.Lister) Option {
	return func(o *Orchestrator) { o.lister = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithJournal records batch lifecycle events.
func WithJournal(j *eventstore.Journal) Option {
	return func(o *Orchestrator) { o.journal = j }
}

// WithBus publishes build events on bus.
func WithBus(bus *events.Bus) Option {
	return func(o *Orchestrator) { o.bus = bus }
}

// WithProgress reports per-page progress.
func WithProgress(fn scheduler.ProgressFunc) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates an orchestrator for cfg. No page is resolved until a build
// operation runs.
func New(cfg *config.Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		recorder: metrics.NoopRecorder{},
		logger:   slog.Default(),
		entries:  cfg.Pages,
		pages:    map[string]Page{},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.lister == nil {
		o.lister = filelister.NewFSLister(cfg.Output, cfg.TempPath())
	}
	if o.factory == nil {
		rf := render.NewFactory(cfg.Root, render.NewLayouts(cfg.Root, cfg.LayoutsDir))
		o.factory = PageFactoryFunc(func(p pageset.AddressablePage) Page { return rf.New(p) })
	}

	o.resolver = pageset.NewResolver(cfg, o.lister)
	o.variables = render.NewVariables(cfg.Root, cfg.Variables)
	o.workspace = workspace.NewManager(cfg.TempPath())
	o.tracker = staleness.New(o.lazy)
	o.sched = scheduler.New(scheduler.NewHorizon(),
		scheduler.WithConcurrency(cfg.Concurrency),
		scheduler.WithOnBuilt(o.tracker.ResolveOnBuilt),
		scheduler.WithProgress(o.progress),
		scheduler.WithRecorder(o.recorder),
		scheduler.WithLogger(o.logger),
	)
	return o
}

// Lazy reports whether the orchestrator runs in lazy mode.
func (o *Orchestrator) Lazy() bool { return o.lazy }

// Config returns the site configuration.
func (o *Orchestrator) Config() *config.Config { return o.cfg }

// SetOpenedPages replaces the viewer's opened pages, most recent first.
func (o *Orchestrator) SetOpenedPages(keys []string) {
	o.tracker.SetOpened(keys)
	if len(keys) > 0 && keys[0] != "" {
		o.mu.Lock()
		o.viewed = keys[0]
		o.mu.Unlock()
	}
}

// OpenedPages returns the opened pages, most recent first.
func (o *Orchestrator) OpenedPages() []string { return o.tracker.Opened() }

// PendingKeys returns the sorted keys awaiting regeneration.
func (o *Orchestrator) PendingKeys() []string { return o.tracker.Pending() }

// IsPending reports whether key awaits regeneration.
func (o *Orchestrator) IsPending(key string) bool { return o.tracker.IsPending(key) }

// Pages returns the addressable pages in resolution order.
func (o *Orchestrator) Pages() []pageset.AddressablePage {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.set.Pages()
}

// HasPage reports whether key is addressable.
func (o *Orchestrator) HasPage(key string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.set.Has(key)
}

// IsPageSource reports whether a path relative to the content root would be
// treated as a page source.
func (o *Orchestrator) IsPageSource(rel string) bool {
	return o.resolver.IsPageSource(rel)
}

// IsTracked reports whether a change to path would affect any page or the
// global variables.
func (o *Orchestrator) IsTracked(path string) bool {
	if o.variables.IsVariablesFile(path) {
		return true
	}
	for _, p := range o.snapshot() {
		if p.IsDependency(path) {
			return true
		}
	}
	return false
}

// StopOngoingBuilds advances the cancellation horizon. Batches started before
// the call stop dispatching at their next check point; pages already running
// finish.
func (o *Orchestrator) StopOngoingBuilds() {
	h := o.sched.Horizon()
	h.Advance()
	o.logger.Debug("Advanced cancellation horizon", slog.Time("horizon", h.At()))
}

// Close releases the workspace and the journal.
func (o *Orchestrator) Close() error {
	if err := o.workspace.Cleanup(); err != nil {
		o.logger.Warn("Failed to clean up workspace", logfields.Error(err))
	}
	return o.journal.Close()
}

// snapshot returns the live artifacts in page order.
func (o *Orchestrator) snapshot() []Page {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.pagesLocked(o.set.Keys())
}

// pagesFor returns the artifacts of keys, skipping unknown keys.
func (o *Orchestrator) pagesFor(keys []string) []Page {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.pagesLocked(keys)
}

func (o *Orchestrator) pagesLocked(keys []string) []Page {
	out := make([]Page, 0, len(keys))
	for _, k := range keys {
		if p, ok := o.pages[k]; ok {
			out = append(out, p)
		}
	}
	return out
}
