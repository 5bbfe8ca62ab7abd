package config

import (
	"path/filepath"
	"strings"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

// Validate checks structural constraints. Duplicate sources are not checked
// here; the page set resolver reports them with the full duplicate list.
func (c *Config) Validate() error {
	if c.Concurrency < 1 {
		return ferrors.ConfigError("concurrency must be >= 1").
			WithContext("concurrency", c.Concurrency).
			Build()
	}
	if c.Debounce <= 0 {
		return ferrors.ConfigError("debounce window must be > 0").Build()
	}
	if c.BackgroundEvery < 0 {
		return ferrors.ConfigError("background_interval must not be negative").Build()
	}
	if c.NATS.Retries < 0 {
		return ferrors.ConfigError("nats.retries must not be negative").Build()
	}
	switch c.NATS.Backoff {
	case "", "fixed", "linear", "exponential":
	default:
		return ferrors.ConfigError("nats.backoff must be fixed, linear or exponential").
			WithContext("backoff", c.NATS.Backoff).
			Build()
	}
	for _, ext := range c.PageExtensions {
		if !strings.HasPrefix(ext, ".") {
			return ferrors.ConfigError("page extensions must start with a dot").
				WithContext("extension", ext).
				Build()
		}
	}
	for i, entry := range c.Pages {
		if err := validateEntry(i, entry); err != nil {
			return err
		}
	}
	return nil
}

func validateEntry(i int, e PageEntry) error {
	hasSrc := len(e.Src) > 0
	hasGlob := len(e.Glob) > 0
	switch {
	case hasSrc && hasGlob:
		return ferrors.ConfigError("page entry must set either src or glob, not both").
			WithContext("entry", i).
			Build()
	case !hasSrc && !hasGlob:
		return ferrors.ConfigError("page entry must set src or glob").
			WithContext("entry", i).
			Build()
	case len(e.GlobExclude) > 0 && !hasGlob:
		return ferrors.ConfigError("glob_exclude requires glob").
			WithContext("entry", i).
			Build()
	}
	for _, src := range e.Src {
		if filepath.IsAbs(src) || strings.HasPrefix(filepath.ToSlash(filepath.Clean(src)), "../") {
			return ferrors.ConfigError("page src must be relative to the content root").
				WithContext("entry", i).
				WithContext("src", src).
				Build()
		}
	}
	return nil
}
