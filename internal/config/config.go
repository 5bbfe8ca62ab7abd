package config

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the site configuration consumed by the build orchestrator and its shells.
type Config struct {
	Root              string        `yaml:"root"`
	Output            string        `yaml:"output"`
	TempDir           string        `yaml:"temp_dir,omitempty"`
	Title             string        `yaml:"title,omitempty"`
	BaseURL           string        `yaml:"base_url,omitempty"`
	EnableSearch      bool          `yaml:"enable_search"`
	ForceReload       bool          `yaml:"force_reload,omitempty"`
	Concurrency       int           `yaml:"concurrency,omitempty"`
	Debounce          time.Duration `yaml:"debounce,omitempty"`
	LazyEntry         string        `yaml:"lazy_entry,omitempty"`
	HeadingIndexLevel int           `yaml:"heading_index_level,omitempty"`
	Variables         []string      `yaml:"variables,omitempty"`
	LayoutsDir        string        `yaml:"layouts_dir,omitempty"`
	Ignore            []string      `yaml:"ignore,omitempty"`
	PagesExclude      []string      `yaml:"pages_exclude,omitempty"`
	PageExtensions    []string      `yaml:"page_extensions,omitempty"`
	Pages             []PageEntry   `yaml:"pages"`
	BackgroundEvery   time.Duration `yaml:"background_interval,omitempty"`
	Journal           string        `yaml:"journal,omitempty"`
	NATS              NATSConfig    `yaml:"nats,omitempty"`
	Preview           PreviewConfig `yaml:"preview,omitempty"`
	Metrics           MetricsConfig `yaml:"metrics,omitempty"`

	// path is the file the config was loaded from; empty for in-memory configs.
	path string
}

// PageEntry declares one or more pages, either explicitly (Src) or by Glob.
// Pointer and nil-able fields distinguish "absent" from zero values so that
// entries can be merged property by property.
type PageEntry struct {
	Src             StringList     `yaml:"src,omitempty"`
	Glob            StringList     `yaml:"glob,omitempty"`
	GlobExclude     StringList     `yaml:"glob_exclude,omitempty"`
	Title           *string        `yaml:"title,omitempty"`
	Layout          *string        `yaml:"layout,omitempty"`
	Frontmatter     map[string]any `yaml:"frontmatter,omitempty"`
	Searchable      *bool          `yaml:"searchable,omitempty"`
	ExternalScripts []string       `yaml:"external_scripts,omitempty"`
}

// IsGlob reports whether the entry expands a glob rather than naming files.
func (e PageEntry) IsGlob() bool { return len(e.Glob) > 0 }

// NATSConfig configures the optional page-built event publisher. Retries is
// the number of extra attempts for a failed publish; 0 disables retrying.
type NATSConfig struct {
	URL        string        `yaml:"url,omitempty"`
	Subject    string        `yaml:"subject,omitempty"`
	Retries    int           `yaml:"retries,omitempty"`
	Backoff    string        `yaml:"backoff,omitempty"`
	RetryDelay time.Duration `yaml:"retry_delay,omitempty"`
}

// PreviewConfig configures the preview server used by `serve`.
type PreviewConfig struct {
	Port       int  `yaml:"port,omitempty"`
	LiveReload bool `yaml:"live_reload"`
}

// MetricsConfig toggles the Prometheus endpoint on the preview server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

// Path returns the file the configuration was loaded from.
func (c *Config) Path() string { return c.path }

// StringList accepts either a scalar string or a sequence of strings.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *StringList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var single string
		if err := value.Decode(&single); err != nil {
			return err
		}
		if single == "" {
			*s = nil
			return nil
		}
		*s = StringList{single}
		return nil
	}
	var many []string
	if err := value.Decode(&many); err != nil {
		return err
	}
	*s = many
	return nil
}

// Ptr is a small helper for building PageEntry overrides in code and tests.
func Ptr[T any](v T) *T { return &v }
