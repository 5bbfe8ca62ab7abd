package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
)

// BuildCmd implements the 'build' command.
type BuildCmd struct {
	Lazy bool `help:"Generate only the landing page and defer the rest"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return RunBuild(ctx, g, cfg, b.Lazy)
}

// RunBuild generates the site described by cfg once.
func RunBuild(ctx context.Context, g *Global, cfg *config.Config, lazy bool) error {
	s, err := newSession(ctx, cfg, lazy, g.Logger)
	if err != nil {
		return err
	}
	defer s.close()

	out, err := s.build(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Generated %d page(s) into %s\n", len(out.Built), cfg.Output)
	if len(out.Deferred) > 0 {
		fmt.Printf("Deferred %d page(s)\n", len(out.Deferred))
	}
	return nil
}
