package commands

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/filelister"
	"git.home.luguber.info/inful/sitebuilder/internal/pageset"
)

// PagesCmd implements the 'pages' command.
type PagesCmd struct{}

func (p *PagesCmd) Run(_ *Global, root *CLI) error {
	cfg, err := config.Load(root.Config)
	if err != nil {
		return err
	}
	return ListPages(os.Stdout, cfg)
}

// ListPages resolves the page set of cfg and writes one line per page.
func ListPages(w io.Writer, cfg *config.Config) error {
	set, err := pageset.NewResolver(cfg, filelister.NewFSLister(cfg.Output, cfg.TempPath())).Resolve(cfg.Pages)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "KEY\tSOURCE\tLAYOUT\tSEARCHABLE")
	for _, page := range set.Pages() {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", page.Key, page.Src, page.LayoutName(), page.Searchable())
	}
	return tw.Flush()
}
