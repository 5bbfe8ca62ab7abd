package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// DefaultConfigFile is used when no --config flag is given.
const DefaultConfigFile = "site.yaml"

// envFiles are loaded in order; the first one found wins for any given key,
// and the process environment always wins over both.
var envFiles = []string{".env", ".env.local"}

// Load reads, expands, defaults and validates the configuration at path.
// Relative Root/Output paths are resolved against the config file's directory.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ferrors.ConfigError("configuration file not found").
				WithContext("path", path).
				Build()
		}
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to read config file").
			WithContext("path", path).
			Build()
	}

	cfg, err := Parse([]byte(os.ExpandEnv(string(data))))
	if err != nil {
		return nil, err
	}
	cfg.path = path

	base := filepath.Dir(path)
	cfg.Root = resolveRelative(base, cfg.Root)
	cfg.Output = resolveRelative(base, cfg.Output)
	if cfg.TempDir != "" {
		cfg.TempDir = resolveRelative(base, cfg.TempDir)
	}
	if cfg.Journal != "" && cfg.Journal != ":memory:" {
		cfg.Journal = resolveRelative(base, cfg.Journal)
	}
	return cfg, nil
}

// Parse decodes YAML content, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to unmarshal config").Fatal().Build()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFiles() {
	for _, name := range envFiles {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		// godotenv.Load never overrides variables already present in the environment.
		if err := godotenv.Load(name); err != nil {
			slog.Warn("Failed to load env file", logfields.Path(name), logfields.Error(err))
			continue
		}
		slog.Debug("Loaded environment file", logfields.Path(name))
	}
}

func resolveRelative(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Init writes an example configuration to path.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return ferrors.ConfigError("configuration file already exists (use --force to overwrite)").
			WithContext("path", path).
			Build()
	}

	example := Config{
		Root:         ".",
		Output:       "_site",
		Title:        "My Site",
		EnableSearch: true,
		LazyEntry:    "index.md",
		Variables:    []string{"_data/variables.yaml"},
		Ignore:       []string{"_*", "node_modules"},
		Pages: []PageEntry{
			{Src: StringList{"index.md"}, Title: Ptr("Home")},
			{Glob: StringList{"**/*.md"}, GlobExclude: StringList{"drafts/**"}},
		},
		Preview: PreviewConfig{Port: 8080, LiveReload: true},
	}
	data, err := yaml.Marshal(&example)
	if err != nil {
		return fmt.Errorf("marshal example config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to write config file").
			WithContext("path", path).
			Build()
	}
	return nil
}
