// Package assets mirrors non-page files from the content root into the output
// root.
package assets

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/sitebuilder/internal/filelister"
	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// Syncer copies and removes asset files.
type Syncer struct {
	root    string
	output  string
	lister  filelister.Lister
	exclude []string
	isPage  func(rel string) bool
	logger  *slog.Logger
}

// NewSyncer returns a syncer from root to output. Files matching exclude
// patterns and files for which isPage reports true are never copied.
func NewSyncer(root, output string, lister filelister.Lister, exclude []string, isPage func(string) bool, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	if isPage == nil {
		isPage = func(string) bool { return false }
	}
	return &Syncer{
		root:    root,
		output:  output,
		lister:  lister,
		exclude: exclude,
		isPage:  isPage,
		logger:  logger,
	}
}

// CopyAll copies every asset below the content root.
func (s *Syncer) CopyAll(ctx context.Context) (int, error) {
	files, err := s.lister.List(s.root, filelister.Options{Exclude: s.exclude})
	if err != nil {
		return 0, err
	}
	var assets []string
	for _, rel := range files {
		if !s.isPage(rel) {
			assets = append(assets, rel)
		}
	}
	return len(assets), s.Copy(ctx, assets)
}

// Copy mirrors paths (absolute or relative to the content root) into the
// output root. Every path is attempted; the errors are joined.
func (s *Syncer) Copy(ctx context.Context, paths []string) error {
	var errs []error
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, ok := s.relative(p)
		if !ok || s.isPage(rel) || filelister.Matches(s.exclude, rel) {
			continue
		}
		dst := filepath.Join(s.output, filepath.FromSlash(rel))
		if err := copyFile(filepath.Join(s.root, filepath.FromSlash(rel)), dst); err != nil {
			errs = append(errs, errors.WrapError(err, errors.CategoryFileSystem, "failed to copy asset").
				WithContext("path", rel).
				Build())
			continue
		}
		s.logger.Debug("Copied asset", logfields.Path(rel))
	}
	return stderrors.Join(errs...)
}

// Remove deletes the mirrored copies of paths. Missing copies are ignored.
func (s *Syncer) Remove(ctx context.Context, paths []string) error {
	var errs []error
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, ok := s.relative(p)
		if !ok || s.isPage(rel) {
			continue
		}
		dst := filepath.Join(s.output, filepath.FromSlash(rel))
		if err := os.RemoveAll(dst); err != nil {
			errs = append(errs, errors.WrapError(err, errors.CategoryFileSystem, "failed to remove asset").
				WithContext("path", rel).
				Build())
			continue
		}
		s.logger.Debug("Removed asset", logfields.Path(rel))
	}
	return stderrors.Join(errs...)
}

// relative maps p to a slash path below the content root.
func (s *Syncer) relative(p string) (string, bool) {
	if filepath.IsAbs(p) {
		root, err := filepath.Abs(s.root)
		if err != nil {
			return "", false
		}
		r, err := filepath.Rel(root, p)
		if err != nil {
			return "", false
		}
		p = r
	}
	rel := filepath.ToSlash(filepath.Clean(p))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return rel, true
}

func copyFile(src, dst string) error {
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}
	out, err := os.Create(filepath.Clean(dst))
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
