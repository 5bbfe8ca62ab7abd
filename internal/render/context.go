// Package render turns addressable pages into HTML files under the output
// root.
package render

import (
	"git.home.luguber.info/inful/sitebuilder/internal/config"
	"git.home.luguber.info/inful/sitebuilder/internal/workspace"
)

// Site carries site-wide values exposed to templates.
type Site struct {
	Title   string
	BaseURL string
}

// Context is the shared input of one generation batch.
type Context struct {
	Site         Site
	OutputDir    string
	Workspace    *workspace.Manager
	Layouts      *Layouts
	Variables    map[string]any
	HeadingLevel int
}

// NewContext builds a rendering context from the site configuration.
func NewContext(cfg *config.Config, ws *workspace.Manager, vars map[string]any) *Context {
	return &Context{
		Site:         Site{Title: cfg.Title, BaseURL: cfg.BaseURL},
		OutputDir:    cfg.Output,
		Workspace:    ws,
		Layouts:      NewLayouts(cfg.Root, cfg.LayoutsDir),
		Variables:    vars,
		HeadingLevel: cfg.HeadingIndexLevel,
	}
}
