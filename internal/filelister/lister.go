// Package filelister enumerates content files for glob page entries.
//
// Exclude patterns follow gitignore semantics (via go-git's gitignore
// matcher): a pattern without a slash matches a name at any depth and a
// pattern that matches a directory prunes everything below it. Globs match
// the whole relative path instead; see Glob.
package filelister

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

// Options narrows a listing.
type Options struct {
	// Exclude patterns remove matching files (and whole directories).
	Exclude []string
	// Globs select files by whole-path match; an empty list selects every file.
	Globs []string
}

// Lister lists files below root as slash-separated relative paths.
type Lister interface {
	List(root string, opts Options) ([]string, error)
}

// FSLister walks the local filesystem.
type FSLister struct {
	// SkipDirs are absolute directories never descended into (output, staging).
	SkipDirs []string
}

// NewFSLister returns a lister that never descends into skipDirs.
func NewFSLister(skipDirs ...string) *FSLister {
	abs := make([]string, 0, len(skipDirs))
	for _, d := range skipDirs {
		if d == "" {
			continue
		}
		if a, err := filepath.Abs(d); err == nil {
			abs = append(abs, a)
		}
	}
	return &FSLister{SkipDirs: abs}
}

// List implements Lister. Results are in lexical walk order.
func (l *FSLister) List(root string, opts Options) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to resolve content root").
			WithContext("root", root).
			Build()
	}
	exclude := NewMatcher(opts.Exclude)
	include, err := NewGlob(opts.Globs)
	if err != nil {
		return nil, err
	}

	var out []string
	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == absRoot {
			return nil
		}
		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return err
		}
		parts := SplitPath(filepath.ToSlash(rel))
		if d.IsDir() {
			if l.skipped(path) || exclude.Match(parts, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if exclude.Match(parts, false) {
			return nil
		}
		if len(opts.Globs) > 0 && !include.Match(filepath.ToSlash(rel)) {
			return nil
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if walkErr != nil {
		return nil, ferrors.WrapError(walkErr, ferrors.CategoryFileSystem, "failed to list content files").
			WithContext("root", root).
			Build()
	}
	return out, nil
}

func (l *FSLister) skipped(path string) bool {
	for _, d := range l.SkipDirs {
		if path == d {
			return true
		}
	}
	return false
}

// NewMatcher compiles patterns into a gitignore matcher. Later patterns take
// precedence and a leading "!" re-includes.
func NewMatcher(patterns []string) gitignore.Matcher {
	ps := make([]gitignore.Pattern, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		ps = append(ps, gitignore.ParsePattern(strings.TrimPrefix(p, "./"), nil))
	}
	return gitignore.NewMatcher(ps)
}

// SplitPath splits a slash-separated relative path into matcher segments.
func SplitPath(rel string) []string {
	rel = strings.Trim(rel, "/")
	if rel == "" {
		return nil
	}
	return strings.Split(rel, "/")
}

// Matches reports whether rel (slash-separated) matches any of patterns.
func Matches(patterns []string, rel string) bool {
	if len(patterns) == 0 {
		return false
	}
	return NewMatcher(patterns).Match(SplitPath(rel), false)
}
