// Package pageset resolves declarative page entries into a deduplicated,
// property-merged set of addressable pages.
package pageset

import (
	"maps"
	"path"
	"path/filepath"
	"reflect"
	"strings"

	"golang.org/x/text/unicode/norm"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
)

// Properties are the per-page overrides carried by page entries. Nil means
// "absent" and never overrides a value set by an earlier entry.
type Properties struct {
	Title           *string
	Layout          *string
	Frontmatter     map[string]any
	Searchable      *bool
	ExternalScripts []string
}

// PropertiesOf extracts the overridable properties of a page entry.
func PropertiesOf(e config.PageEntry) Properties {
	return Properties{
		Title:           e.Title,
		Layout:          e.Layout,
		Frontmatter:     e.Frontmatter,
		Searchable:      e.Searchable,
		ExternalScripts: e.ExternalScripts,
	}
}

// Merge returns p overridden by every non-absent field of later.
func (p Properties) Merge(later Properties) Properties {
	out := p
	if later.Title != nil {
		out.Title = later.Title
	}
	if later.Layout != nil {
		out.Layout = later.Layout
	}
	if later.Frontmatter != nil {
		out.Frontmatter = maps.Clone(later.Frontmatter)
	}
	if later.Searchable != nil {
		out.Searchable = later.Searchable
	}
	if later.ExternalScripts != nil {
		out.ExternalScripts = append([]string(nil), later.ExternalScripts...)
	}
	return out
}

// Equal reports whether two property sets are identical.
func (p Properties) Equal(other Properties) bool {
	return reflect.DeepEqual(p, other)
}

// AddressablePage is the resolved unit of work. Key is stable across rebuilds.
type AddressablePage struct {
	// Key is the normalized, extension-stripped, slash-separated relative path.
	Key string
	// Src is the normalized slash-separated source path relative to the content root.
	Src        string
	Properties Properties
}

// TitleOverride returns the configured title, if any.
func (p AddressablePage) TitleOverride() string {
	if p.Properties.Title == nil {
		return ""
	}
	return *p.Properties.Title
}

// LayoutName returns the configured layout, or "default".
func (p AddressablePage) LayoutName() string {
	if p.Properties.Layout == nil || *p.Properties.Layout == "" {
		return "default"
	}
	return *p.Properties.Layout
}

// Searchable reports whether the page belongs in the site index. Pages are
// searchable unless an entry says otherwise.
func (p AddressablePage) Searchable() bool {
	return p.Properties.Searchable == nil || *p.Properties.Searchable
}

// NormalizeSrc cleans a relative source path into slash form.
func NormalizeSrc(src string) string {
	s := filepath.ToSlash(filepath.Clean(filepath.FromSlash(strings.TrimSpace(src))))
	s = strings.TrimPrefix(s, "./")
	s = strings.TrimPrefix(s, "/")
	return norm.NFC.String(s)
}

// KeyFor derives the page key from a relative source path.
func KeyFor(src string) string {
	s := NormalizeSrc(src)
	return strings.TrimSuffix(s, path.Ext(s))
}
