package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

func TestParse_SrcAcceptsScalarAndList(t *testing.T) {
	cfg, err := Parse([]byte(`
pages:
  - src: index.md
    title: Home
  - src: [a.md, b.md]
    searchable: false
  - glob: "**/*.md"
    glob_exclude: "drafts/**"
`))
	require.NoError(t, err)
	require.Len(t, cfg.Pages, 3)

	assert.Equal(t, StringList{"index.md"}, cfg.Pages[0].Src)
	require.NotNil(t, cfg.Pages[0].Title)
	assert.Equal(t, "Home", *cfg.Pages[0].Title)
	assert.Nil(t, cfg.Pages[0].Searchable, "absent searchable must stay nil")

	assert.Equal(t, StringList{"a.md", "b.md"}, cfg.Pages[1].Src)
	require.NotNil(t, cfg.Pages[1].Searchable)
	assert.False(t, *cfg.Pages[1].Searchable)

	assert.True(t, cfg.Pages[2].IsGlob())
	assert.Equal(t, StringList{"drafts/**"}, cfg.Pages[2].GlobExclude)
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`title: Docs`))
	require.NoError(t, err)

	assert.Equal(t, DefaultConcurrency, cfg.Concurrency)
	assert.Equal(t, time.Second, cfg.Debounce)
	assert.Equal(t, DefaultLazyEntry, cfg.LazyEntry)
	assert.Equal(t, []string{".md"}, cfg.PageExtensions)
	require.Len(t, cfg.Pages, 1)
	assert.Equal(t, StringList{"**/*.md"}, cfg.Pages[0].Glob)
}

func TestParse_Durations(t *testing.T) {
	cfg, err := Parse([]byte("debounce: 250ms\nbackground_interval: 30s\n"))
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.Debounce)
	assert.Equal(t, 30*time.Second, cfg.BackgroundEvery)

	cfg, err = Parse([]byte("nats:\n  url: nats://localhost:4222\n  retries: 3\n  backoff: exponential\n  retry_delay: 200ms\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.NATS.Retries)
	assert.Equal(t, "exponential", cfg.NATS.Backoff)
	assert.Equal(t, 200*time.Millisecond, cfg.NATS.RetryDelay)
	assert.Equal(t, DefaultNATSSubject, cfg.NATS.Subject)
}

func TestParse_InvalidEntries(t *testing.T) {
	cases := map[string]string{
		"both src and glob":     "pages:\n  - src: a.md\n    glob: '*.md'\n",
		"neither src nor glob":  "pages:\n  - title: x\n",
		"exclude without glob":  "pages:\n  - src: a.md\n    glob_exclude: b.md\n",
		"absolute src":          "pages:\n  - src: /etc/passwd\n",
		"escaping src":          "pages:\n  - src: ../x.md\n",
		"extension without dot": "page_extensions: [md]\n",
		"negative nats retries": "nats:\n  retries: -1\n",
		"unknown nats backoff":  "nats:\n  backoff: random\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
			assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
		})
	}
}

func TestLoad_ResolvesPathsAndExpandsEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SITE_TITLE", "From Env")
	path := filepath.Join(dir, "site.yaml")
	require.NoError(t, os.WriteFile(path, []byte("title: ${SITE_TITLE}\nroot: content\noutput: out\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "From Env", cfg.Title)
	assert.Equal(t, filepath.Join(dir, "content"), cfg.Root)
	assert.Equal(t, filepath.Join(dir, "out"), cfg.Output)
	assert.Equal(t, path, cfg.Path())
	assert.Equal(t, filepath.Join(dir, ".sitebuilder-tmp"), cfg.TempPath())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryConfig))
}

func TestInit_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "site.yaml")
	require.NoError(t, Init(path, false))
	require.Error(t, Init(path, false), "existing file must not be overwritten without force")
	require.NoError(t, Init(path, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Pages, 2)
	assert.Equal(t, StringList{"index.md"}, cfg.Pages[0].Src)
}
