package filelister

import (
	"path"
	"strings"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

// Glob selects files by whole-path glob patterns anchored at the content
// root. "*", "?" and character classes stay within one path segment; a "**"
// segment matches zero or more segments.
type Glob struct {
	patterns [][]string
}

// NewGlob compiles patterns. Blank patterns are skipped.
func NewGlob(patterns []string) (*Glob, error) {
	g := &Glob{}
	for _, p := range patterns {
		p = strings.TrimPrefix(strings.TrimSpace(p), "./")
		p = strings.TrimPrefix(p, "/")
		if p == "" {
			continue
		}
		segs := SplitPath(p)
		for _, s := range segs {
			if _, err := path.Match(s, ""); err != nil {
				return nil, ferrors.ValidationError("invalid glob pattern").
					WithContext("pattern", p).
					WithCause(err).
					Build()
			}
		}
		g.patterns = append(g.patterns, segs)
	}
	return g, nil
}

// Match reports whether the slash-separated relative path matches any
// pattern. An empty Glob matches nothing.
func (g *Glob) Match(rel string) bool {
	parts := SplitPath(rel)
	for _, p := range g.patterns {
		if matchSegments(p, parts) {
			return true
		}
	}
	return false
}

func matchSegments(pat, parts []string) bool {
	for len(pat) > 0 {
		if pat[0] == "**" {
			for len(pat) > 0 && pat[0] == "**" {
				pat = pat[1:]
			}
			if len(pat) == 0 {
				return true
			}
			for i := 0; i <= len(parts); i++ {
				if matchSegments(pat, parts[i:]) {
					return true
				}
			}
			return false
		}
		if len(parts) == 0 {
			return false
		}
		if ok, _ := path.Match(pat[0], parts[0]); !ok {
			return false
		}
		pat, parts = pat[1:], parts[1:]
	}
	return len(parts) == 0
}
