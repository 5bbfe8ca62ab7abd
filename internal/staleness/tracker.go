// Package staleness tracks which pages need regeneration and which pages the
// viewer currently has open.
package staleness

import (
	"sync"

	"git.home.luguber.info/inful/sitebuilder/internal/util/sets"
)

// Dependent is the part of a page artifact the tracker consults.
type Dependent interface {
	Key() string
	IsDependency(path string) bool
}

// Invalidation is the outcome of matching changed paths against pages.
type Invalidation struct {
	// Affected lists every affected key in page order.
	Affected []string
	// Immediate lists keys to rebuild now. In lazy mode these are the open
	// pages, most recently opened first; in full mode every affected key.
	Immediate []string
	// Deferred lists keys added to the pending set instead of being rebuilt.
	Deferred []string
}

// Tracker owns the pending set and the opened-pages list. It is safe for
// concurrent use.
type Tracker struct {
	mu      sync.Mutex
	lazy    bool
	pending sets.Set[string]
	opened  []string
}

// New returns an empty tracker. Lazy mode defers invalidated pages that are
// not open in the viewer.
func New(lazy bool) *Tracker {
	return &Tracker{lazy: lazy, pending: sets.New[string]()}
}

// Lazy reports the tracker's mode.
func (t *Tracker) Lazy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lazy
}

// SetOpened replaces the opened-pages list wholesale. Keys are ordered most
// recently opened first; repeated keys keep their first (most recent) position.
func (t *Tracker) SetOpened(keys []string) {
	seen := sets.New[string]()
	opened := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" || seen.Has(k) {
			continue
		}
		seen.Add(k)
		opened = append(opened, k)
	}
	t.mu.Lock()
	t.opened = opened
	t.mu.Unlock()
}

// Opened returns a copy of the opened-pages list.
func (t *Tracker) Opened() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.opened...)
}

// MarkAllPendingExcept adds every key except viewed to the pending set.
func (t *Tracker) MarkAllPendingExcept(keys []string, viewed string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, k := range keys {
		if k != viewed {
			t.pending.Add(k)
		}
	}
}

// Add marks keys pending.
func (t *Tracker) Add(keys ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, k := range keys {
		t.pending.Add(k)
	}
}

// ResolveOnBuilt removes key from the pending set once its generation was
// attempted.
func (t *Tracker) ResolveOnBuilt(key string) {
	t.mu.Lock()
	t.pending.Delete(key)
	t.mu.Unlock()
}

// Forget drops keys that are no longer addressable from both the pending set
// and the opened list.
func (t *Tracker) Forget(keys ...string) {
	gone := sets.New(keys...)
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, k := range keys {
		t.pending.Delete(k)
	}
	kept := t.opened[:0]
	for _, k := range t.opened {
		if !gone.Has(k) {
			kept = append(kept, k)
		}
	}
	t.opened = kept
}

// IsPending reports whether key awaits regeneration.
func (t *Tracker) IsPending(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending.Has(key)
}

// Pending returns the pending keys in sorted order.
func (t *Tracker) Pending() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return sets.Sorted(t.pending)
}

// Len returns the size of the pending set.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending.Len()
}

// Invalidate determines which pages the changed paths affect. When all is
// true every page is affected regardless of its dependency predicate. In lazy
// mode affected pages that are not open are deferred into the pending set.
func (t *Tracker) Invalidate(pages []Dependent, changed []string, all bool) Invalidation {
	var inv Invalidation
	for _, p := range pages {
		if all || dependsOnAny(p, changed) {
			inv.Affected = append(inv.Affected, p.Key())
		}
	}
	if len(inv.Affected) == 0 {
		return inv
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.lazy {
		inv.Immediate = append([]string(nil), inv.Affected...)
		return inv
	}

	affected := sets.New(inv.Affected...)
	open := sets.New[string]()
	for _, k := range t.opened {
		if affected.Has(k) {
			inv.Immediate = append(inv.Immediate, k)
			open.Add(k)
		}
	}
	for _, k := range inv.Affected {
		if !open.Has(k) {
			inv.Deferred = append(inv.Deferred, k)
			t.pending.Add(k)
		}
	}
	return inv
}

func dependsOnAny(p Dependent, paths []string) bool {
	for _, path := range paths {
		if p.IsDependency(path) {
			return true
		}
	}
	return false
}
