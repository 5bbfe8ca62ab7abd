package preview

import (
	"bufio"
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"git.home.luguber.info/inful/sitebuilder/internal/events"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// Hub fans build notifications out to browsers over server-sent events.
type Hub struct {
	mu       sync.RWMutex
	nextID   int
	clients  map[int]*lrClient
	closed   bool
	lastHash string
	logger   *slog.Logger
}

type lrClient struct {
	id   int
	ch   chan string
	done chan struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{clients: map[int]*lrClient{}, logger: logger}
}

// ServeHTTP implements the SSE endpoint at /livereload.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "livereload shutting down", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	client := &lrClient{ch: make(chan string, 8), done: make(chan struct{})}
	h.mu.Lock()
	client.id = h.nextID
	h.nextID++
	h.clients[client.id] = client
	current := h.lastHash
	h.mu.Unlock()

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(": connected\n\n"); err != nil {
		h.logger.Debug("livereload write", logfields.Error(err))
		return
	}
	// The first event is the client's baseline.
	if current == "" {
		current = "init"
	}
	if _, err := bw.WriteString("data: {\"hash\":\"" + current + "\"}\n\n"); err != nil {
		h.logger.Debug("livereload write", logfields.Error(err))
		return
	}
	if err := bw.Flush(); err == nil {
		flusher.Flush()
	}

	hb := time.NewTicker(30 * time.Second)
	defer hb.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			h.removeClient(client.id)
			return
		case <-client.done:
			h.removeClient(client.id)
			return
		case <-hb.C:
			if _, err := bw.WriteString(": ping\n\n"); err == nil {
				_ = bw.Flush()
				flusher.Flush()
			}
		case hash := <-client.ch:
			if _, err := bw.WriteString("data: {\"hash\":\"" + hash + "\"}\n\n"); err == nil {
				_ = bw.Flush()
				flusher.Flush()
			} else {
				h.logger.Debug("livereload broadcast write", logfields.Error(err))
			}
		}
	}
}

func (h *Hub) removeClient(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(c.done)
	}
}

// Clients returns the number of connected browsers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends hash to every client. Clients whose buffers are full are
// dropped; repeated hashes are ignored.
func (h *Hub) Broadcast(hash string) {
	h.mu.Lock()
	if h.closed || hash == "" || hash == h.lastHash {
		h.mu.Unlock()
		return
	}
	h.lastHash = hash
	snapshot := make([]*lrClient, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.Unlock()

	dropped := 0
	for _, c := range snapshot {
		select {
		case c.ch <- hash:
		default:
			dropped++
			h.removeClient(c.id)
		}
	}
	h.logger.Debug("livereload broadcast", slog.String("hash", hash), slog.Int("clients", len(snapshot)), slog.Int("dropped", dropped))
}

// Run broadcasts every build event from bus until ctx is done or the bus
// closes. Failed batches are sent with an "error:" prefix.
func (h *Hub) Run(ctx context.Context, bus *events.Bus) {
	ch, unsubscribe := events.Subscribe[events.Event](bus, 16)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			switch e := evt.(type) {
			case events.PagesBuilt:
				h.Broadcast(e.BatchID)
			case events.BuildFailed:
				h.Broadcast("error:" + e.BatchID)
			}
		}
	}
}

// Shutdown disconnects every client and stops future broadcasts.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := h.clients
	h.clients = map[int]*lrClient{}
	h.mu.Unlock()
	for _, c := range clients {
		close(c.done)
	}
}

// clientScript reloads on build events and reports navigation so the
// orchestrator can prioritise the viewed page.
const clientScript = `(() => {
  if (window.__SITEBUILDER_LR__) return;
  window.__SITEBUILDER_LR__ = true;
  const key = (() => {
    let p = decodeURIComponent(location.pathname).replace(/^\/+/, '');
    if (p === '' || p.endsWith('/')) p += 'index';
    return p.replace(/\.html$/, '');
  })();
  const stored = JSON.parse(sessionStorage.getItem('sitebuilder-opened') || '[]');
  const opened = [key, ...stored.filter((k) => k !== key)].slice(0, 20);
  sessionStorage.setItem('sitebuilder-opened', JSON.stringify(opened));
  fetch('/api/navigate', {method: 'POST', headers: {'Content-Type': 'application/json'}, body: JSON.stringify({current: key, opened})}).catch(() => {});
  function connect() {
    const es = new EventSource('/livereload');
    let first = true; let current = null;
    es.onmessage = (e) => { try { const p = JSON.parse(e.data); if (first) { current = p.hash; first = false; return; } if (p.hash && p.hash !== current) { location.reload(); } } catch (_) {} };
    es.onerror = () => { es.close(); setTimeout(connect, 2000); };
  }
  connect();
})();`
