package render

import (
	"maps"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

// Variables holds the global variable-defining files of a site.
type Variables struct {
	root  string
	files []string
}

// NewVariables resolves files relative to root.
func NewVariables(root string, files []string) *Variables {
	abs := make([]string, 0, len(files))
	for _, f := range files {
		abs = append(abs, absPath(root, f))
	}
	return &Variables{root: root, files: abs}
}

// Files returns the absolute variable file paths.
func (v *Variables) Files() []string {
	return append([]string(nil), v.files...)
}

// IsVariablesFile reports whether path is one of the variable files. Relative
// paths are resolved against the content root.
func (v *Variables) IsVariablesFile(path string) bool {
	p := absPath(v.root, path)
	for _, f := range v.files {
		if f == p {
			return true
		}
	}
	return false
}

// Load reads every file in order; later files override earlier keys. A
// missing file contributes nothing.
func (v *Variables) Load() (map[string]any, error) {
	out := map[string]any{}
	for _, f := range v.files {
		data, err := os.ReadFile(filepath.Clean(f))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to read variables file").
				WithContext("path", f).
				Build()
		}
		var fields map[string]any
		if err := yaml.Unmarshal(data, &fields); err != nil {
			return nil, errors.WrapError(err, errors.CategoryConfig, "invalid variables file").
				WithContext("path", f).
				Build()
		}
		maps.Copy(out, fields)
	}
	return out, nil
}

// lookup resolves a dotted key such as "site.owner" in vars. Missing keys
// yield an empty string.
func lookup(vars map[string]any, key string) any {
	var cur any = vars
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur, ok = m[part]
		if !ok || cur == nil {
			return ""
		}
	}
	return cur
}

// substitute expands template actions in a page body. Bodies without actions
// are returned untouched.
func substitute(name string, body []byte, data any, vars map[string]any) ([]byte, error) {
	if !strings.Contains(string(body), "{{") {
		return body, nil
	}
	tmpl, err := template.New(name).
		Funcs(template.FuncMap{"var": func(key string) any { return lookup(vars, key) }}).
		Option("missingkey=zero").
		Parse(string(body))
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

func absPath(root, p string) string {
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, filepath.FromSlash(p))
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}
