package render

import (
	"html/template"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

// DefaultLayout is the layout used when a page names none.
const DefaultLayout = "default"

const builtinLayout = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{ .Title }}{{ with .Site.Title }} | {{ . }}{{ end }}</title>
{{- range .Scripts }}
<script src="{{ . }}" defer></script>
{{- end }}
</head>
<body>
<main>
{{ .Content }}
</main>
</body>
</html>
`

// LayoutData is passed to layout templates.
type LayoutData struct {
	Key     string
	Title   string
	Content template.HTML
	Site    Site
	Page    map[string]any
	Vars    map[string]any
	Scripts []string
}

// Layouts resolves layout names to templates in the layouts directory.
type Layouts struct {
	dir string
}

// NewLayouts returns a resolver for layoutsDir relative to root.
func NewLayouts(root, layoutsDir string) *Layouts {
	dir := layoutsDir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(root, dir)
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return &Layouts{dir: dir}
}

// Path returns the file a layout is loaded from.
func (l *Layouts) Path(name string) string {
	if name == "" {
		name = DefaultLayout
	}
	return filepath.Join(l.dir, name+".html")
}

// Load parses the named layout. The default layout falls back to a built-in
// template when no file exists.
func (l *Layouts) Load(name string) (*template.Template, error) {
	if name == "" {
		name = DefaultLayout
	}
	path := l.Path(name)
	data, err := os.ReadFile(filepath.Clean(path))
	switch {
	case err == nil:
	case os.IsNotExist(err) && name == DefaultLayout:
		data = []byte(builtinLayout)
	case os.IsNotExist(err):
		return nil, errors.NotFoundError("layout not found").
			WithContext("layout", name).
			WithContext("path", path).
			Build()
	default:
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to read layout").
			WithContext("path", path).
			Build()
	}

	tmpl, err := template.New(name).Parse(string(data))
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryGeneration, "failed to parse layout").
			WithContext("layout", name).
			Build()
	}
	return tmpl, nil
}
