package pageset

import (
	"errors"
	"path"
	"slices"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/filelister"
	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

// ErrDuplicateSource is matched with errors.Is on resolution failures caused
// by two explicit entries naming the same page.
var ErrDuplicateSource = errors.New("duplicate page source")

// Resolver turns page entries into a PageSet. It has no side effects beyond
// listing the content tree.
type Resolver struct {
	Root   string
	Lister filelister.Lister
	// Ignore holds the global ignore patterns.
	Ignore []string
	// PagesExclude removes pages from every glob entry.
	PagesExclude []string
	// Extensions restricts glob results to page sources; empty allows all.
	Extensions []string
}

// NewResolver builds a resolver from the site configuration.
func NewResolver(cfg *config.Config, lister filelister.Lister) *Resolver {
	return &Resolver{
		Root:         cfg.Root,
		Lister:       lister,
		Ignore:       cfg.Ignore,
		PagesExclude: cfg.PagesExclude,
		Extensions:   cfg.PageExtensions,
	}
}

type expanded struct {
	src   string
	props Properties
}

// Resolve expands entries and merges them into one page per key. Glob-derived
// pages are merged first and explicit pages second, each group in declaration
// order, so explicit properties win over glob defaults and later entries win
// over earlier ones.
func (r *Resolver) Resolve(entries []config.PageEntry) (*PageSet, error) {
	explicit := expandExplicit(entries)
	if dups := duplicateSources(explicit); len(dups) > 0 {
		return nil, DuplicateSourceError(dups)
	}

	globbed, err := r.expandGlobs(entries)
	if err != nil {
		return nil, err
	}

	set := newPageSet()
	for _, e := range append(globbed, explicit...) {
		set.upsert(e.src, e.props)
	}
	return set, nil
}

// DuplicateSourceError builds the configuration error naming every duplicate.
func DuplicateSourceError(dups []string) error {
	return ferrors.WrapError(ErrDuplicateSource, ferrors.CategoryConfig, "duplicate page sources in site configuration").
		Fatal().
		UserAction().
		WithContext("duplicates", dups).
		Build()
}

func expandExplicit(entries []config.PageEntry) []expanded {
	var out []expanded
	for _, e := range entries {
		if e.IsGlob() {
			continue
		}
		props := PropertiesOf(e)
		for _, src := range e.Src {
			out = append(out, expanded{src: NormalizeSrc(src), props: props})
		}
	}
	return out
}

// duplicateSources lists every explicit source whose key was already claimed,
// in first-seen order and without repeats.
func duplicateSources(explicit []expanded) []string {
	seen := make(map[string]struct{}, len(explicit))
	var dups []string
	for _, e := range explicit {
		key := KeyFor(e.src)
		if _, ok := seen[key]; ok {
			if !slices.Contains(dups, e.src) {
				dups = append(dups, e.src)
			}
			continue
		}
		seen[key] = struct{}{}
	}
	return dups
}

func (r *Resolver) expandGlobs(entries []config.PageEntry) ([]expanded, error) {
	var out []expanded
	for _, e := range entries {
		if !e.IsGlob() {
			continue
		}
		exclude := make([]string, 0, len(r.Ignore)+len(e.GlobExclude)+len(r.PagesExclude))
		exclude = append(exclude, r.Ignore...)
		exclude = append(exclude, e.GlobExclude...)
		exclude = append(exclude, r.PagesExclude...)

		files, err := r.Lister.List(r.Root, filelister.Options{Exclude: exclude, Globs: e.Glob})
		if err != nil {
			return nil, err
		}
		props := PropertiesOf(e)
		for _, f := range files {
			if !r.isPageSource(f) {
				continue
			}
			out = append(out, expanded{src: NormalizeSrc(f), props: props})
		}
	}
	return out, nil
}

func (r *Resolver) isPageSource(rel string) bool {
	if len(r.Extensions) == 0 {
		return true
	}
	return slices.Contains(r.Extensions, path.Ext(rel))
}

// IsPageSource reports whether rel has one of the configured page extensions.
func (r *Resolver) IsPageSource(rel string) bool {
	return r.isPageSource(NormalizeSrc(rel))
}
