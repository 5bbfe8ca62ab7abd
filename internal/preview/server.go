package preview

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
	"git.home.luguber.info/inful/sitebuilder/internal/orchestrator"
	"git.home.luguber.info/inful/sitebuilder/internal/render"
)

const reloadTag = `<script src="/livereload.js"></script>`

// NavigateRequest is the body of POST /api/navigate.
type NavigateRequest struct {
	Current string   `json:"current"`
	Opened  []string `json:"opened"`
}

// Status is the body of GET /api/status.
type Status struct {
	Lazy    bool     `json:"lazy"`
	Pages   int      `json:"pages"`
	Pending []string `json:"pending"`
	Opened  []string `json:"opened"`
}

// Handler returns the preview HTTP routes.
func (s *Session) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.cfg.Preview.LiveReload {
		mux.Handle("/livereload", s.hub)
		mux.HandleFunc("/livereload.js", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/javascript")
			w.Header().Set("Cache-Control", "no-cache")
			_, _ = w.Write([]byte(clientScript))
		})
	}
	mux.HandleFunc("POST /api/navigate", s.handleNavigate)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	if s.cfg.Metrics.Enabled && s.reg != nil {
		mux.Handle(s.cfg.Metrics.Path, metrics.HTTPHandler(s.reg))
	}
	mux.Handle("/", s.siteHandler())
	return chain(s.logger, mux)
}

func (s *Session) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req NavigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.NewHTTPErrorAdapter(s.logger).WriteErrorResponse(w, r,
			errors.WrapError(err, errors.CategoryValidation, "invalid navigation request").Build())
		return
	}
	current := normalizeKey(req.Current)
	opened := make([]string, 0, len(req.Opened)+1)
	for _, k := range req.Opened {
		if k = normalizeKey(k); k != "" {
			opened = append(opened, k)
		}
	}
	if current != "" && (len(opened) == 0 || opened[0] != current) {
		opened = append([]string{current}, opened...)
	}
	s.orch.SetOpenedPages(opened)
	if current != "" {
		s.navigate.Call(current)
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Session) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := Status{
		Lazy:    s.orch.Lazy(),
		Pages:   len(s.orch.Pages()),
		Pending: s.orch.PendingKeys(),
		Opened:  s.orch.OpenedPages(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		s.logger.Warn("Failed to encode status", logfields.Error(err))
	}
}

// siteHandler serves generated pages by key and everything else from the
// output directory.
func (s *Session) siteHandler() http.Handler {
	files := http.FileServer(http.Dir(s.cfg.Output))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := pageKey(r.URL.Path)
		if !ok || !s.orch.HasPage(key) {
			files.ServeHTTP(w, r)
			return
		}
		if s.orch.Lazy() && s.orch.IsPending(key) {
			if _, err := s.orch.RebuildViewed(r.Context(), []string{key}); err != nil {
				s.logger.Warn("On-demand generation failed", logfields.Page(key), logfields.Error(err))
			}
		}
		s.servePage(w, r, key)
	})
}

func (s *Session) servePage(w http.ResponseWriter, r *http.Request, key string) {
	file := filepath.Join(s.cfg.Output, filepath.FromSlash(key)+render.OutputExt)
	data, err := os.ReadFile(filepath.Clean(file))
	if err != nil {
		if os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}
		errors.NewHTTPErrorAdapter(s.logger).WriteErrorResponse(w, r,
			errors.WrapError(err, errors.CategoryFileSystem, "failed to read page").WithContext("page", key).Build())
		return
	}
	if s.cfg.Preview.LiveReload {
		data = injectReload(data)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

// pageKey maps a request path to a page key. Paths with an extension other
// than .html are not pages.
func pageKey(urlPath string) (string, bool) {
	p := strings.TrimPrefix(path.Clean("/"+urlPath), "/")
	if urlPath == "" || strings.HasSuffix(urlPath, "/") {
		if p != "" {
			p += "/"
		}
		p += "index"
	}
	switch ext := path.Ext(p); ext {
	case render.OutputExt:
		p = strings.TrimSuffix(p, ext)
	case "":
	default:
		return "", false
	}
	p = norm.NFC.String(p)
	return p, p != ""
}

// normalizeKey puts a client-supplied page key in the NFC form page keys use.
func normalizeKey(key string) string {
	return norm.NFC.String(strings.Trim(strings.TrimSpace(key), "/"))
}

func injectReload(html []byte) []byte {
	idx := bytes.LastIndex(bytes.ToLower(html), []byte("</body>"))
	if idx < 0 {
		return append(html, reloadTag...)
	}
	out := make([]byte, 0, len(html)+len(reloadTag))
	out = append(out, html[:idx]...)
	out = append(out, reloadTag...)
	return append(out, html[idx:]...)
}

// Serve runs the preview session until ctx is done: file watching, periodic
// background fill, live reload and the HTTP server. The orchestrator must have
// completed its initial build.
func Serve(ctx context.Context, cfg *config.Config, orch *orchestrator.Orchestrator, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s, err := NewSession(ctx, cfg, orch, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	if opts.Bus != nil {
		go s.hub.Run(ctx, opts.Bus)
	}

	extra := resolveAll(cfg.Root, cfg.Variables)
	if cfg.Path() != "" {
		extra = append(extra, cfg.Path())
	}
	watcher, err := NewWatcher(cfg.Root, []string{cfg.Output, cfg.TempPath()}, extra, logger)
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()
	go watcher.Run(ctx, s.HandleEvent)

	if orch.Lazy() && cfg.BackgroundEvery > 0 {
		bg, err := NewBackgroundScheduler(cfg.BackgroundEvery, s.TriggerBackground, logger)
		if err != nil {
			return err
		}
		bg.Start()
		defer func() {
			if err := bg.Stop(); err != nil {
				logger.Warn("Failed to stop background scheduler", logfields.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.Preview.Port)),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Preview server listening", slog.Int("port", cfg.Preview.Port), slog.Bool("lazy", orch.Lazy()))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return errors.WrapError(err, errors.CategoryRuntime, "preview server failed").
				WithContext("port", cfg.Preview.Port).
				Build()
		}
		return nil
	}

	// Disconnect SSE clients first so Shutdown is not held by open streams.
	s.hub.Shutdown()
	shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Preview server shutdown", logfields.Error(err))
	}
	logger.Info("Preview server stopped")
	return nil
}

func resolveAll(root string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, filepath.FromSlash(p))
		}
		out = append(out, p)
	}
	return out
}
