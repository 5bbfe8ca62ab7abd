// Package preview serves the generated site during an authoring session. It
// feeds filesystem changes and viewer navigation into the orchestrator through
// debounce gates and pushes reloads to browsers.
package preview

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/sitebuilder/internal/assets"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/debounce"
	"git.home.luguber.info/inful/sitebuilder/internal/events"
	"git.home.luguber.info/inful/sitebuilder/internal/filelister"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/orchestrator"
)

// Options configures a Session.
type Options struct {
	// Registry backs the metrics endpoint; nil disables it.
	Registry *prom.Registry
	Bus      *events.Bus
	Assets   *assets.Syncer
	Logger   *slog.Logger
}

// action is what a filesystem event asks for.
type action int

const (
	actIgnore action = iota
	actConfig
	actStructure
	actChange
	actAssetCopy
	actAssetRemove
)

func (a action) String() string {
	return [...]string{"ignore", "config", "structure", "change", "asset-copy", "asset-remove"}[a]
}

// Session connects the watcher, the HTTP surface and the orchestrator.
type Session struct {
	cfg    *config.Config
	orch   *orchestrator.Orchestrator
	assets *assets.Syncer
	hub    *Hub
	reg    *prom.Registry
	logger *slog.Logger

	root string
	skip []string

	mu      sync.Mutex
	entries []config.PageEntry

	changes     *debounce.Gate[string]
	structure   *debounce.Gate[string]
	assetCopy   *debounce.Gate[string]
	assetRemove *debounce.Gate[string]
	navigate    *debounce.Gate[string]
	background  *debounce.Gate[string]
	reload      *debounce.Gate[string]
}

// NewSession creates the gates. Gate executions run with ctx.
func NewSession(ctx context.Context, cfg *config.Config, orch *orchestrator.Orchestrator, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		root = cfg.Root
	}
	s := &Session{
		cfg:     cfg,
		orch:    orch,
		assets:  opts.Assets,
		hub:     NewHub(logger),
		reg:     opts.Registry,
		logger:  logger,
		root:    root,
		skip:    absAll([]string{cfg.Output, cfg.TempPath()}),
		entries: cfg.Pages,
	}
	if s.assets == nil {
		s.assets = assets.NewSyncer(cfg.Root, cfg.Output, filelister.NewFSLister(cfg.Output, cfg.TempPath()), cfg.Ignore, orch.IsPageSource, logger)
	}

	window := cfg.Debounce
	gates := []struct {
		dst  **debounce.Gate[string]
		name string
		fn   debounce.Func[string]
	}{
		{&s.changes, "rebuild", func(ctx context.Context, paths []string) error {
			_, err := orch.Rebuild(ctx, paths)
			return err
		}},
		{&s.structure, "pages", func(ctx context.Context, _ []string) error {
			_, err := orch.ReloadPages(ctx, s.pageEntries())
			return err
		}},
		{&s.assetCopy, "asset-copy", s.assets.Copy},
		{&s.assetRemove, "asset-remove", s.assets.Remove},
		{&s.navigate, "navigate", func(ctx context.Context, keys []string) error {
			_, err := orch.RebuildViewed(ctx, keys)
			return err
		}},
		{&s.background, "background", func(ctx context.Context, _ []string) error {
			_, err := orch.BackgroundFill(ctx)
			return err
		}},
		{&s.reload, "config", func(ctx context.Context, _ []string) error {
			return s.reloadConfig(ctx)
		}},
	}
	for _, g := range gates {
		gate, err := debounce.New(ctx, g.name, window, g.fn, logger)
		if err != nil {
			s.Close()
			return nil, err
		}
		*g.dst = gate
	}
	return s, nil
}

// Hub returns the live-reload hub.
func (s *Session) Hub() *Hub { return s.hub }

// TriggerBackground requests a background fill.
func (s *Session) TriggerBackground() { s.background.Call() }

// HandleEvent routes one filesystem event to the matching gate.
func (s *Session) HandleEvent(ev fsnotify.Event) {
	act := s.classify(ev)
	if act == actIgnore {
		return
	}
	s.logger.Debug("Routing file event", logfields.Path(ev.Name), slog.String("action", act.String()))
	switch act {
	case actConfig:
		s.reload.Call()
	case actStructure:
		s.structure.Call(ev.Name)
	case actChange:
		s.changes.Call(ev.Name)
	case actAssetCopy:
		s.assetCopy.Call(ev.Name)
	case actAssetRemove:
		s.assetRemove.Call(ev.Name)
	}
}

func (s *Session) classify(ev fsnotify.Event) action {
	if ev.Op == fsnotify.Chmod || shouldIgnoreEvent(ev.Name) {
		return actIgnore
	}
	path := ev.Name
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	for _, dir := range s.skip {
		if within(dir, path) {
			return actIgnore
		}
	}
	if cp := s.cfg.Path(); cp != "" {
		if abs, err := filepath.Abs(cp); err == nil && abs == path {
			return actConfig
		}
	}

	tracked := s.orch.IsTracked(path)
	if !within(s.root, path) {
		if tracked {
			return actChange
		}
		return actIgnore
	}
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return actIgnore
	}
	rel = filepath.ToSlash(rel)
	if !tracked && filelister.Matches(s.cfg.Ignore, rel) {
		return actIgnore
	}

	created := ev.Has(fsnotify.Create)
	removed := ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
	if created {
		if fi, err := os.Stat(path); err == nil && fi.IsDir() {
			return actStructure
		}
	}
	if (created || removed) && s.orch.IsPageSource(rel) {
		return actStructure
	}
	switch {
	case tracked:
		return actChange
	case removed:
		return actAssetRemove
	case s.orch.IsPageSource(rel):
		return actIgnore
	default:
		return actAssetCopy
	}
}

func (s *Session) pageEntries() []config.PageEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries
}

// reloadConfig re-reads the site configuration and applies its page entries.
// Other settings take effect on restart.
func (s *Session) reloadConfig(ctx context.Context) error {
	path := s.cfg.Path()
	if path == "" {
		return nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.entries = cfg.Pages
	s.mu.Unlock()
	s.logger.Info("Configuration reloaded; applying page entries", logfields.Path(path))
	_, err = s.orch.ReloadPages(ctx, cfg.Pages)
	return err
}

// Close stops every gate and disconnects live-reload clients.
func (s *Session) Close() {
	for _, g := range []*debounce.Gate[string]{s.changes, s.structure, s.assetCopy, s.assetRemove, s.navigate, s.background, s.reload} {
		if g != nil {
			g.Stop()
		}
	}
	s.hub.Shutdown()
}
