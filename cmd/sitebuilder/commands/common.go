package commands

import (
	"context"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/sitebuilder/internal/assets"
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/events"
	"git.home.luguber.info/inful/sitebuilder/internal/eventstore"
	"git.home.luguber.info/inful/sitebuilder/internal/filelister"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/metrics"
	"git.home.luguber.info/inful/sitebuilder/internal/notify"
	"git.home.luguber.info/inful/sitebuilder/internal/orchestrator"
	"git.home.luguber.info/inful/sitebuilder/internal/retry"
)

// Global context passed to subcommands.
type Global struct {
	Logger *slog.Logger
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"site.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build BuildCmd `cmd:"" help:"Generate the site and exit"`
	Serve ServeCmd `cmd:"" help:"Generate the site and serve it with live reload"`
	Pages PagesCmd `cmd:"" help:"Resolve and list addressable pages without generating them"`
	Init  InitCmd  `cmd:"" help:"Write an example configuration file"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply(g *Global) error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	if g != nil {
		g.Logger = logger
	}
	return nil
}

// session holds the collaborators wired around one orchestrator.
type session struct {
	cfg      *config.Config
	orch     *orchestrator.Orchestrator
	bus      *events.Bus
	registry *prom.Registry
	assets   *assets.Syncer
	logger   *slog.Logger

	closers []func()
}

// newSession wires the journal, event bus, NATS publisher and metrics
// recorder configured in cfg around a new orchestrator.
func newSession(ctx context.Context, cfg *config.Config, lazy bool, logger *slog.Logger) (*session, error) {
	s := &session{cfg: cfg, bus: events.NewBus(), logger: logger}
	s.closers = append(s.closers, s.bus.Close)

	opts := []orchestrator.Option{
		orchestrator.WithLazy(lazy),
		orchestrator.WithBus(s.bus),
		orchestrator.WithLogger(logger),
		orchestrator.WithProgress(func(done, total int, key string) {
			logger.Debug("Generated page", logfields.Page(key), slog.Int("done", done), slog.Int("total", total))
		}),
	}

	if cfg.Journal != "" {
		store, err := eventstore.NewSQLiteStore(cfg.Journal)
		if err != nil {
			s.close()
			return nil, err
		}
		opts = append(opts, orchestrator.WithJournal(eventstore.NewJournal(store, logger)))
		logger.Debug("Batch journal enabled", logfields.Path(cfg.Journal))
	}

	if cfg.Metrics.Enabled {
		s.registry = prom.NewRegistry()
		s.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, orchestrator.WithRecorder(metrics.NewPrometheusRecorder(s.registry)))
	}

	if cfg.NATS.URL != "" {
		policy := retry.NewPolicy(retry.Mode(cfg.NATS.Backoff), cfg.NATS.RetryDelay, 0, cfg.NATS.Retries)
		pub, err := notify.Connect(cfg.NATS.URL, cfg.NATS.Subject, logger, notify.WithRetry(policy))
		if err != nil {
			s.close()
			return nil, err
		}
		done := pub.Start(context.WithoutCancel(ctx), s.bus)
		s.closers = append(s.closers, func() {
			s.bus.Close()
			<-done
			pub.Close()
		})
	}

	s.orch = orchestrator.New(cfg, opts...)
	s.closers = append(s.closers, func() {
		if err := s.orch.Close(); err != nil {
			logger.Warn("Failed to close orchestrator", logfields.Error(err))
		}
	})
	s.assets = assets.NewSyncer(cfg.Root, cfg.Output,
		filelister.NewFSLister(cfg.Output, cfg.TempPath()), cfg.Ignore, s.orch.IsPageSource, logger)
	return s, nil
}

// build runs the initial build and mirrors assets into the output.
func (s *session) build(ctx context.Context) (orchestrator.Outcome, error) {
	out, err := s.orch.Build(ctx)
	if err != nil {
		return out, err
	}
	n, err := s.assets.CopyAll(ctx)
	if err != nil {
		return out, err
	}
	s.logger.Info("Build finished",
		logfields.BatchID(out.BatchID),
		logfields.Pages(len(out.Built)),
		logfields.Pending(len(out.Deferred)),
		slog.Int("assets", n),
		logfields.Completed(out.Completed))
	return out, nil
}

// close releases resources in reverse order of acquisition.
func (s *session) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
