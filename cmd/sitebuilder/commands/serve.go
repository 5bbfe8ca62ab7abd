package commands

import (
	"context"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/preview"
)

// ServeCmd implements the 'serve' command.
type ServeCmd struct {
	Lazy bool `help:"Generate pages on demand as they are viewed"`
	Port int  `short:"p" help:"Preview server port (overrides preview.port)"`
}

func (s *ServeCmd) Run(g *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}
	if s.Port > 0 {
		cfg.Preview.Port = s.Port
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess, err := newSession(ctx, cfg, s.Lazy, g.Logger)
	if err != nil {
		return err
	}
	defer sess.close()

	if _, err := sess.build(ctx); err != nil {
		return err
	}
	return preview.Serve(ctx, cfg, sess.orch, preview.Options{
		Registry: sess.registry,
		Bus:      sess.bus,
		Assets:   sess.assets,
		Logger:   g.Logger,
	})
}
