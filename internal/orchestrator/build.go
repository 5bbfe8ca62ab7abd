package orchestrator

import (
	"context"
	"log/slog"
	"slices"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/pageset"
	"git.home.luguber.info/inful/sitebuilder/internal/render"
	"git.home.luguber.info/inful/sitebuilder/internal/scheduler"
	"git.home.luguber.info/inful/sitebuilder/internal/staleness"
	"git.home.luguber.info/inful/sitebuilder/internal/util/sets"
)

// Build runs the initial build of the configured mode.
func (o *Orchestrator) Build(ctx context.Context) (Outcome, error) {
	if o.lazy {
		return o.LazyBuild(ctx)
	}
	return o.FullBuild(ctx)
}

// FullBuild resolves the page set and generates every page in one concurrent
// task.
func (o *Orchestrator) FullBuild(ctx context.Context) (Outcome, error) {
	o.mu.RLock()
	entries := o.entries
	o.mu.RUnlock()

	set, err := o.resolver.Resolve(entries)
	if err != nil {
		o.cleanup(false)
		return Outcome{}, err
	}
	if err := o.loadVariables(); err != nil {
		o.cleanup(false)
		return Outcome{}, err
	}
	o.install(entries, set)
	o.logger.Info("Resolved page set", logfields.Pages(set.Len()), logfields.BuildMode(ModeFull))

	out, err := o.runBatch(ctx, ModeFull, batchTask{mode: scheduler.Concurrent, keys: set.Keys()})
	if err != nil {
		o.cleanup(true)
	}
	return out, err
}

// LazyBuild resolves the page set, generates only the landing page and
// defers every other page.
func (o *Orchestrator) LazyBuild(ctx context.Context) (Outcome, error) {
	o.mu.RLock()
	entries := o.entries
	o.mu.RUnlock()

	set, err := o.resolver.Resolve(entries)
	if err != nil {
		o.cleanup(false)
		return Outcome{}, err
	}
	landing := o.landingKey()
	if !set.Has(landing) {
		o.cleanup(false)
		return Outcome{}, ferrors.ConfigError("lazy entry page is not an addressable page").
			WithContext("lazy_entry", o.cfg.LazyEntry).
			WithContext("page", landing).
			UserAction().
			Build()
	}
	if err := o.loadVariables(); err != nil {
		o.cleanup(false)
		return Outcome{}, err
	}
	o.install(entries, set)

	o.mu.Lock()
	o.viewed = landing
	o.mu.Unlock()
	if len(o.tracker.Opened()) == 0 {
		o.tracker.SetOpened([]string{landing})
	}
	o.logger.Info("Resolved page set", logfields.Pages(set.Len()), logfields.BuildMode(ModeLazy), logfields.Page(landing))

	out, err := o.runBatch(ctx, ModeLazy, batchTask{mode: scheduler.Sequential, keys: []string{landing}})
	if err != nil {
		return out, err
	}
	o.tracker.MarkAllPendingExcept(set.Keys(), landing)
	o.recorder.SetPending(o.tracker.Len())
	out.Deferred = without(set.Keys(), landing)
	return out, nil
}

// Rebuild regenerates the pages affected by changed paths. A change to a
// variables file, or force_reload, affects every page. Affected pages that are
// open in the viewer run first, sequentially in recency order; in lazy mode
// the rest are deferred, otherwise they run concurrently.
func (o *Orchestrator) Rebuild(ctx context.Context, changed []string) (Outcome, error) {
	if len(changed) == 0 {
		return Outcome{Completed: true}, nil
	}
	varsChanged := slices.ContainsFunc(changed, o.variables.IsVariablesFile)
	if varsChanged {
		if err := o.loadVariables(); err != nil {
			o.cleanup(false)
			return Outcome{}, err
		}
	}
	all := o.cfg.ForceReload || varsChanged

	inv := o.tracker.Invalidate(dependents(o.snapshot()), changed, all)
	if len(inv.Affected) == 0 {
		o.logger.Debug("Change affects no page", logfields.Paths(len(changed)))
		return Outcome{Completed: true}, nil
	}
	o.logger.Info("Change affects pages",
		logfields.Paths(len(changed)),
		logfields.Pages(len(inv.Affected)),
		slog.Bool("all", all))
	return o.rebuildInvalidated(ctx, ModeRebuild, inv)
}

// RebuildViewed generates the requested pages that are still pending. The
// pages run concurrently and the call takes priority over any ongoing build.
func (o *Orchestrator) RebuildViewed(ctx context.Context, keys []string) (Outcome, error) {
	var todo []string
	seen := sets.New[string]()
	for _, k := range keys {
		if seen.Has(k) || !o.HasPage(k) || !o.tracker.IsPending(k) {
			continue
		}
		seen.Add(k)
		todo = append(todo, k)
	}
	if len(todo) == 0 {
		return Outcome{Completed: true}, nil
	}
	o.StopOngoingBuilds()
	return o.runBatch(ctx, ModeNavigate, batchTask{mode: scheduler.Concurrent, keys: todo})
}

// ReloadPages applies a new list of page entries. Outputs of pages that are no
// longer addressable are removed. When the address set changed, lazy mode
// rebuilds the viewed page and defers the rest while full mode rebuilds
// everything. Otherwise pages whose properties changed get a new artifact and
// are treated as affected.
func (o *Orchestrator) ReloadPages(ctx context.Context, entries []config.PageEntry) (Outcome, error) {
	set, err := o.resolver.Resolve(entries)
	if err != nil {
		o.cleanup(false)
		return Outcome{}, err
	}

	o.mu.Lock()
	diff := set.Compare(o.set)
	changed := sets.New(diff.Changed...)
	pages := make(map[string]Page, set.Len())
	for _, p := range set.Pages() {
		if old, ok := o.pages[p.Key]; ok && !changed.Has(p.Key) {
			pages[p.Key] = old
			continue
		}
		pages[p.Key] = o.factory.New(p)
	}
	o.entries = entries
	o.set = set
	o.pages = pages
	viewed := o.viewed
	o.mu.Unlock()

	removed := make([]string, 0, len(diff.Removed))
	for _, p := range diff.Removed {
		removed = append(removed, p.Key)
		if err := render.RemoveOutput(o.cfg.Output, p.Key); err != nil {
			o.logger.Warn("Failed to remove output of removed page", logfields.Page(p.Key), logfields.Error(err))
		}
	}
	o.tracker.Forget(removed...)

	switch {
	case diff.Structural():
		o.logger.Info("Page set changed",
			slog.Int("added", len(diff.Added)),
			slog.Int("removed", len(diff.Removed)))
		o.StopOngoingBuilds()
		if !o.lazy {
			return o.runBatch(ctx, ModeReload, batchTask{mode: scheduler.Concurrent, keys: set.Keys()})
		}
		if !set.Has(viewed) {
			viewed = o.landingKey()
		}
		o.tracker.MarkAllPendingExcept(set.Keys(), viewed)
		o.recorder.SetPending(o.tracker.Len())
		out, err := o.runBatch(ctx, ModeReload, batchTask{mode: scheduler.Sequential, keys: []string{viewed}})
		if err != nil {
			return out, err
		}
		out.Deferred = without(set.Keys(), viewed)
		return out, nil

	case len(diff.Changed) > 0:
		o.logger.Info("Page properties changed", logfields.Pages(len(diff.Changed)))
		inv := o.tracker.Invalidate(dependents(o.pagesFor(diff.Changed)), nil, true)
		return o.rebuildInvalidated(ctx, ModeReload, inv)
	}
	o.writeIndex()
	return Outcome{Completed: true}, nil
}

// BackgroundFill generates the pending pages in one concurrent task. It does
// not stop other builds and is itself cancelled by any foreground rebuild.
func (o *Orchestrator) BackgroundFill(ctx context.Context) (Outcome, error) {
	pending := sets.New(o.tracker.Pending()...)
	if pending.Len() == 0 {
		return Outcome{Completed: true}, nil
	}
	o.mu.RLock()
	keys := o.set.Keys()
	o.mu.RUnlock()
	keys = slices.DeleteFunc(keys, func(k string) bool { return !pending.Has(k) })
	return o.runBatch(ctx, ModeBackground, batchTask{mode: scheduler.Concurrent, keys: keys})
}

func (o *Orchestrator) rebuildInvalidated(ctx context.Context, mode string, inv staleness.Invalidation) (Outcome, error) {
	o.recorder.SetPending(o.tracker.Len())
	if len(inv.Immediate) == 0 {
		return Outcome{Deferred: inv.Deferred, Completed: true}, nil
	}
	o.StopOngoingBuilds()

	open, rest := o.splitOpened(inv.Immediate)
	out, err := o.runBatch(ctx, mode,
		batchTask{mode: scheduler.Sequential, keys: open},
		batchTask{mode: scheduler.Concurrent, keys: rest},
	)
	out.Deferred = inv.Deferred
	return out, err
}

// splitOpened separates keys that are open in the viewer, in recency order,
// from the others, in their given order.
func (o *Orchestrator) splitOpened(keys []string) (open, rest []string) {
	want := sets.New(keys...)
	taken := sets.New[string]()
	for _, k := range o.tracker.Opened() {
		if want.Has(k) {
			open = append(open, k)
			taken.Add(k)
		}
	}
	for _, k := range keys {
		if !taken.Has(k) {
			rest = append(rest, k)
		}
	}
	return open, rest
}

// install replaces the live artifacts wholesale.
func (o *Orchestrator) install(entries []config.PageEntry, set *pageset.PageSet) {
	o.mu.Lock()
	old := o.set
	pages := make(map[string]Page, set.Len())
	for _, p := range set.Pages() {
		pages[p.Key] = o.factory.New(p)
	}
	o.entries = entries
	o.set = set
	o.pages = pages
	o.mu.Unlock()

	var gone []string
	for _, k := range old.Keys() {
		if !set.Has(k) {
			gone = append(gone, k)
		}
	}
	o.tracker.Forget(gone...)
}

func (o *Orchestrator) landingKey() string {
	return pageset.KeyFor(pageset.NormalizeSrc(o.cfg.LazyEntry))
}

func dependents(pages []Page) []staleness.Dependent {
	out := make([]staleness.Dependent, len(pages))
	for i, p := range pages {
		out[i] = p
	}
	return out
}

func without(keys []string, key string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != key {
			out = append(out, k)
		}
	}
	return out
}
