package render

import (
	"bytes"
	"context"
	stderrors "errors"
	"html/template"
	"os"
	"path/filepath"
	"sync"

	"github.com/inful/mdfp"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/frontmatter"
	"git.home.luguber.info/inful/sitebuilder/internal/markdown"
	"git.home.luguber.info/inful/sitebuilder/internal/pageset"
	"git.home.luguber.info/inful/sitebuilder/internal/siteindex"
)

// OutputExt replaces the source extension of generated files.
const OutputExt = ".html"

// Factory creates page artifacts for a content root.
type Factory struct {
	root      string
	layouts   *Layouts
	converter *markdown.Converter
}

// NewFactory returns a factory for pages below root.
func NewFactory(root string, layouts *Layouts) *Factory {
	return &Factory{root: root, layouts: layouts, converter: markdown.NewConverter()}
}

// New builds the artifact for one addressable page.
func (f *Factory) New(p pageset.AddressablePage) *Page {
	return &Page{
		page:       p,
		root:       f.root,
		srcPath:    absPath(f.root, p.Src),
		layoutPath: f.layouts.Path(p.LayoutName()),
		converter:  f.converter,
	}
}

// Page renders one Markdown source to HTML.
type Page struct {
	page       pageset.AddressablePage
	root       string
	srcPath    string
	layoutPath string
	converter  *markdown.Converter

	mu          sync.Mutex
	summary     siteindex.Entry
	generated   bool
	fingerprint string
}

// Key returns the page key.
func (p *Page) Key() string { return p.page.Key }

// Src returns the slash-separated source path relative to the content root.
func (p *Page) Src() string { return p.page.Src }

// Addressable returns the resolved page description.
func (p *Page) Addressable() pageset.AddressablePage { return p.page }

// Searchable reports whether the page is included in the site index.
func (p *Page) Searchable() bool { return p.page.Searchable() }

// IsDependency reports whether a change to path affects this page. Relative
// paths are resolved against the content root.
func (p *Page) IsDependency(path string) bool {
	abs := absPath(p.root, path)
	return abs == p.srcPath || abs == p.layoutPath
}

// OutputPath returns the generated file location under outputDir.
func (p *Page) OutputPath(outputDir string) string {
	return filepath.Join(outputDir, filepath.FromSlash(p.page.Key)+OutputExt)
}

// Summary returns the index entry of the last successful generation.
func (p *Page) Summary() (siteindex.Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.summary, p.generated
}

// Generate renders the page and writes it under rc.OutputDir.
func (p *Page) Generate(ctx context.Context, rc *Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := os.ReadFile(p.srcPath)
	if err != nil {
		return p.fail(err, "failed to read page source")
	}
	doc, err := frontmatter.Parse(src)
	if err != nil {
		return p.fail(err, "invalid frontmatter")
	}
	fields := frontmatter.Merge(doc.Fields, p.page.Properties.Frontmatter)
	title := p.title(fields, doc.Body)

	body, err := substitute(p.page.Key, doc.Body, LayoutData{
		Key:   p.page.Key,
		Title: title,
		Site:  rc.Site,
		Page:  fields,
		Vars:  rc.Variables,
	}, rc.Variables)
	if err != nil {
		return p.fail(err, "variable substitution failed")
	}

	content, err := p.converter.Convert(body)
	if err != nil {
		return p.fail(err, "markdown conversion failed")
	}

	layout, err := rc.Layouts.Load(p.page.LayoutName())
	if err != nil {
		return p.fail(err, "layout unavailable")
	}
	//nolint:gosec // rendered from the site's own sources
	html := template.HTML(content)
	var out bytes.Buffer
	if err := layout.Execute(&out, LayoutData{
		Key:     p.page.Key,
		Title:   title,
		Content: html,
		Site:    rc.Site,
		Page:    fields,
		Vars:    rc.Variables,
		Scripts: p.page.Properties.ExternalScripts,
	}); err != nil {
		return p.fail(err, "layout execution failed")
	}

	outline, err := siteindex.ExtractHeadingsFromBytes(content, rc.HeadingLevel)
	if err != nil {
		return p.fail(err, "failed to index headings")
	}

	if err := p.write(rc, fields, out.Bytes()); err != nil {
		return err
	}

	p.mu.Lock()
	p.summary = siteindex.Entry{
		Src:             p.page.Src,
		Title:           title,
		Headings:        outline.Headings,
		HeadingKeywords: outline.Keywords,
	}
	p.generated = true
	p.mu.Unlock()
	return nil
}

// title picks the configured title, then the frontmatter title, then the
// first heading, then the key.
func (p *Page) title(fields map[string]any, body []byte) string {
	if t := p.page.TitleOverride(); t != "" {
		return t
	}
	if t := frontmatter.String(fields, "title"); t != "" {
		return t
	}
	if t := p.converter.FirstHeading(body); t != "" {
		return t
	}
	return p.page.Key
}

// write stores html atomically via the staging directory. Output identical to
// the previous write of this artifact is skipped while the file still exists.
func (p *Page) write(rc *Context, fields map[string]any, html []byte) error {
	fm, err := frontmatter.SerializeYAML(fields)
	if err != nil {
		return p.fail(err, "failed to serialize frontmatter")
	}
	fingerprint := mdfp.CalculateFingerprintFromParts(fm, string(html))
	dest := p.OutputPath(rc.OutputDir)

	p.mu.Lock()
	unchanged := p.fingerprint == fingerprint
	p.mu.Unlock()
	if unchanged {
		if _, err := os.Stat(dest); err == nil {
			return nil
		}
	}

	tmp, err := rc.Workspace.CreateTemp("page-*" + OutputExt)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	_, werr := tmp.Write(html)
	if cerr := tmp.Close(); werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Chmod(tmpName, 0o644)
	}
	if werr == nil {
		werr = os.MkdirAll(filepath.Dir(dest), 0o750)
	}
	if werr == nil {
		werr = os.Rename(tmpName, dest)
	}
	if werr != nil {
		_ = os.Remove(tmpName)
		return errors.WrapError(werr, errors.CategoryGeneration, "failed to write page").
			WithContext("page", p.page.Key).
			WithContext("path", dest).
			Build()
	}

	p.mu.Lock()
	p.fingerprint = fingerprint
	p.mu.Unlock()
	return nil
}

func (p *Page) fail(err error, msg string) error {
	if stderrors.Is(err, context.Canceled) {
		return err
	}
	return errors.WrapError(err, errors.CategoryGeneration, msg).
		WithContext("page", p.page.Key).
		WithContext("path", p.srcPath).
		Build()
}

// RemoveOutput deletes the generated file of a page that is no longer
// addressable.
func RemoveOutput(outputDir, key string) error {
	path := filepath.Join(outputDir, filepath.FromSlash(key)+OutputExt)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to remove page output").
			WithContext("page", key).
			WithContext("path", path).
			Build()
	}
	return nil
}
