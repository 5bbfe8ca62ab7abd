package preview

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// Watcher reports filesystem changes below the content root.
type Watcher struct {
	w      *fsnotify.Watcher
	skip   []string
	logger *slog.Logger
}

// NewWatcher watches root recursively, never descending into skip dirs. The
// directories of extra files outside root are watched non-recursively.
func NewWatcher(root string, skip []string, extra []string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryRuntime, "failed to create file watcher").Build()
	}
	w := &Watcher{w: fw, skip: absAll(skip), logger: logger}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		_ = fw.Close()
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to resolve content root").Build()
	}
	w.addRecursive(absRoot)
	for _, f := range absAll(extra) {
		dir := filepath.Dir(f)
		if within(absRoot, dir) {
			continue
		}
		if err := fw.Add(dir); err != nil {
			logger.Warn("Failed to watch directory", logfields.Path(dir), logfields.Error(err))
		}
	}
	return w, nil
}

// Run delivers events to handle until ctx is done or the watcher closes.
// Newly created directories are added to the watch.
func (w *Watcher) Run(ctx context.Context, handle func(fsnotify.Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Create) {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					w.addRecursive(ev.Name)
				}
			}
			w.logger.Debug("File change detected", logfields.Path(ev.Name), slog.String("op", ev.Op.String()))
			handle(ev)
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Watcher error", logfields.Error(err))
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error { return w.w.Close() }

func (w *Watcher) addRecursive(root string) {
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if w.skipped(path) || (path != root && strings.HasPrefix(d.Name(), ".")) {
			return filepath.SkipDir
		}
		if err := w.w.Add(path); err != nil {
			w.logger.Warn("Failed to watch directory", logfields.Path(path), logfields.Error(err))
		}
		return nil
	})
}

func (w *Watcher) skipped(path string) bool {
	for _, s := range w.skip {
		if within(s, path) {
			return true
		}
	}
	return false
}

// shouldIgnoreEvent reports editor temp files, hidden files and OS litter.
func shouldIgnoreEvent(path string) bool {
	base := filepath.Base(path)
	switch {
	case strings.HasPrefix(base, "."),
		strings.HasSuffix(base, "~"),
		strings.HasSuffix(base, ".swp"),
		strings.HasSuffix(base, ".swx"),
		strings.HasSuffix(base, ".tmp"),
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#"),
		base == "Thumbs.db",
		base == "4913":
		return true
	}
	return false
}

func absAll(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		if a, err := filepath.Abs(p); err == nil {
			out = append(out, a)
		}
	}
	return out
}

// within reports whether path is dir or below it.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
