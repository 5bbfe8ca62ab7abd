package render

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/pageset"
	"git.home.luguber.info/inful/sitebuilder/internal/workspace"
)

type fixture struct {
	root    string
	out     string
	rc      *Context
	factory *Factory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()
	root := filepath.Join(base, "content")
	out := filepath.Join(base, "_site")
	require.NoError(t, os.MkdirAll(root, 0o750))

	cfg := &config.Config{Root: root, Output: out, Title: "Docs", HeadingIndexLevel: 3, LayoutsDir: "_layouts"}
	rc := NewContext(cfg, workspace.NewManager(filepath.Join(base, ".tmp")), map[string]any{
		"product": "Widget",
		"owner":   map[string]any{"name": "Ada"},
	})
	return &fixture{root: root, out: out, rc: rc, factory: NewFactory(root, rc.Layouts)}
}

func (f *fixture) write(t *testing.T, rel, content string) {
	t.Helper()
	p := filepath.Join(f.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
}

func (f *fixture) read(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.out, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func TestGenerate_WritesHTMLAndSummary(t *testing.T) {
	f := newFixture(t)
	f.write(t, "guide/intro.md", "---\ntitle: From File\n---\n# Intro\n\nUse {{ var \"product\" }} by {{ var \"owner.name\" }}{{ var \"missing\" }}.\n\n## Install\n\nRun <span class=\"keyword\">setup</span>\n")

	page := f.factory.New(pageset.AddressablePage{
		Key: "guide/intro",
		Src: "guide/intro.md",
		Properties: pageset.Properties{
			ExternalScripts: []string{"/js/app.js"},
		},
	})
	require.NoError(t, page.Generate(t.Context(), f.rc))

	html := f.read(t, "guide/intro.html")
	assert.Contains(t, html, "<title>From File | Docs</title>")
	assert.Contains(t, html, "Use Widget by Ada.")
	assert.Contains(t, html, `<script src="/js/app.js" defer></script>`)

	entry, ok := page.Summary()
	require.True(t, ok)
	assert.Equal(t, "guide/intro.md", entry.Src)
	assert.Equal(t, "From File", entry.Title)
	assert.Equal(t, "Intro", entry.Headings["intro"])
	assert.Equal(t, "setup", entry.HeadingKeywords["install"])
}

func TestGenerate_TitlePrecedence(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.md", "---\ntitle: File\n---\n# Heading\n")
	f.write(t, "b.md", "# Heading\n")
	f.write(t, "c.md", "plain\n")

	over := f.factory.New(pageset.AddressablePage{Key: "a", Src: "a.md", Properties: pageset.Properties{Title: config.Ptr("Config")}})
	require.NoError(t, over.Generate(t.Context(), f.rc))
	e, _ := over.Summary()
	assert.Equal(t, "Config", e.Title)

	heading := f.factory.New(pageset.AddressablePage{Key: "b", Src: "b.md"})
	require.NoError(t, heading.Generate(t.Context(), f.rc))
	e, _ = heading.Summary()
	assert.Equal(t, "Heading", e.Title)

	bare := f.factory.New(pageset.AddressablePage{Key: "c", Src: "c.md"})
	require.NoError(t, bare.Generate(t.Context(), f.rc))
	e, _ = bare.Summary()
	assert.Equal(t, "c", e.Title)
}

func TestGenerate_ConfigFrontmatterOverridesFile(t *testing.T) {
	f := newFixture(t)
	f.write(t, "_layouts/wide.html", `<div class="wide">{{ .Page.section }}|{{ .Content }}</div>`)
	f.write(t, "a.md", "---\nsection: file\n---\ntext\n")

	page := f.factory.New(pageset.AddressablePage{Key: "a", Src: "a.md", Properties: pageset.Properties{
		Layout:      config.Ptr("wide"),
		Frontmatter: map[string]any{"section": "config"},
	}})
	require.NoError(t, page.Generate(t.Context(), f.rc))
	assert.Contains(t, f.read(t, "a.html"), `<div class="wide">config|<p>text</p>`)
}

func TestGenerate_UnchangedOutputIsNotRewritten(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.md", "# A\n")
	page := f.factory.New(pageset.AddressablePage{Key: "a", Src: "a.md"})

	require.NoError(t, page.Generate(t.Context(), f.rc))
	out := filepath.Join(f.out, "a.html")
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(out, old, old))

	require.NoError(t, page.Generate(t.Context(), f.rc))
	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.WithinDuration(t, old, info.ModTime(), time.Second)

	require.NoError(t, os.Remove(out))
	require.NoError(t, page.Generate(t.Context(), f.rc))
	assert.FileExists(t, out)
}

func TestGenerate_FailuresAreGenerationErrors(t *testing.T) {
	f := newFixture(t)
	missing := f.factory.New(pageset.AddressablePage{Key: "nope", Src: "nope.md"})
	err := missing.Generate(t.Context(), f.rc)
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryGeneration))

	f.write(t, "x.md", "text\n")
	badLayout := f.factory.New(pageset.AddressablePage{Key: "x", Src: "x.md", Properties: pageset.Properties{Layout: config.Ptr("ghost")}})
	err = badLayout.Generate(t.Context(), f.rc)
	require.Error(t, err)
	ce, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	page, _ := ce.Context().GetString("page")
	assert.Equal(t, "x", page)

	_, generated := badLayout.Summary()
	assert.False(t, generated)
}

func TestIsDependency(t *testing.T) {
	f := newFixture(t)
	page := f.factory.New(pageset.AddressablePage{Key: "guide/a", Src: "guide/a.md", Properties: pageset.Properties{Layout: config.Ptr("wide")}})

	assert.True(t, page.IsDependency(filepath.Join(f.root, "guide", "a.md")))
	assert.True(t, page.IsDependency("guide/a.md"))
	assert.True(t, page.IsDependency(filepath.Join(f.root, "_layouts", "wide.html")))
	assert.False(t, page.IsDependency(filepath.Join(f.root, "_layouts", "default.html")))
	assert.False(t, page.IsDependency("guide/b.md"))
}

func TestVariables(t *testing.T) {
	f := newFixture(t)
	f.write(t, "_data/a.yaml", "x: 1\ny: a\n")
	f.write(t, "_data/b.yaml", "y: b\n")

	vars := NewVariables(f.root, []string{"_data/a.yaml", "_data/b.yaml", "_data/missing.yaml"})
	got, err := vars.Load()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": 1, "y": "b"}, got)

	assert.True(t, vars.IsVariablesFile(filepath.Join(f.root, "_data", "a.yaml")))
	assert.True(t, vars.IsVariablesFile("_data/b.yaml"))
	assert.False(t, vars.IsVariablesFile("a.md"))
}

func TestRemoveOutput(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "gone.html")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	require.NoError(t, RemoveOutput(dir, "gone"))
	assert.NoFileExists(t, p)
	require.NoError(t, RemoveOutput(dir, "gone"))
}
