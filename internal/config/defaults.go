package config

import (
	"path/filepath"
	"time"
)

// Default values applied by ApplyDefaults.
const (
	DefaultConcurrency       = 8
	DefaultDebounce          = time.Second
	DefaultLazyEntry         = "index.md"
	DefaultHeadingIndexLevel = 3
	DefaultLayoutsDir        = "_layouts"
	DefaultOutput            = "_site"
	DefaultNATSSubject       = "sitebuilder.pages"
	DefaultPreviewPort       = 8080
	DefaultMetricsPath       = "/metrics"
)

// DefaultPageExtensions lists the source extensions treated as pages.
var DefaultPageExtensions = []string{".md"}

// ApplyDefaults fills every unset field with its default.
func (c *Config) ApplyDefaults() {
	if c.Root == "" {
		c.Root = "."
	}
	if c.Output == "" {
		c.Output = DefaultOutput
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.LazyEntry == "" {
		c.LazyEntry = DefaultLazyEntry
	}
	if c.HeadingIndexLevel <= 0 {
		c.HeadingIndexLevel = DefaultHeadingIndexLevel
	}
	if c.LayoutsDir == "" {
		c.LayoutsDir = DefaultLayoutsDir
	}
	if len(c.PageExtensions) == 0 {
		c.PageExtensions = append([]string(nil), DefaultPageExtensions...)
	}
	if len(c.Pages) == 0 {
		c.Pages = []PageEntry{{Glob: StringList{"**/*" + c.PageExtensions[0]}}}
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = DefaultNATSSubject
	}
	if c.Preview.Port == 0 {
		c.Preview.Port = DefaultPreviewPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

// TempPath returns the staging directory, defaulting to a sibling of Output.
func (c *Config) TempPath() string {
	if c.TempDir != "" {
		return c.TempDir
	}
	return filepath.Join(filepath.Dir(filepath.Clean(c.Output)), ".sitebuilder-tmp")
}
