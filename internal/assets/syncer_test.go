package assets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitebuilder/internal/filelister"
	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

func setup(t *testing.T) (root, out string, s *Syncer) {
	t.Helper()
	base := t.TempDir()
	root = filepath.Join(base, "content")
	out = filepath.Join(base, "_site")
	for rel, body := range map[string]string{
		"index.md":         "# Home",
		"img/logo.png":     "png",
		"css/site.css":     "body{}",
		"_drafts/note.txt": "draft",
	} {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	}
	isPage := func(rel string) bool { return strings.HasSuffix(rel, ".md") }
	s = NewSyncer(root, out, filelister.NewFSLister(out), []string{"_*"}, isPage, nil)
	return root, out, s
}

func TestCopyAll_SkipsPagesAndExcluded(t *testing.T) {
	_, out, s := setup(t)

	n, err := s.CopyAll(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.FileExists(t, filepath.Join(out, "img", "logo.png"))
	assert.FileExists(t, filepath.Join(out, "css", "site.css"))
	assert.NoFileExists(t, filepath.Join(out, "index.md"))
	assert.NoDirExists(t, filepath.Join(out, "_drafts"))
}

func TestCopyAndRemove_AbsoluteAndRelativePaths(t *testing.T) {
	root, out, s := setup(t)

	require.NoError(t, s.Copy(t.Context(), []string{filepath.Join(root, "img", "logo.png"), "css/site.css", "../escape.txt"}))
	data, err := os.ReadFile(filepath.Join(out, "img", "logo.png"))
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))

	require.NoError(t, s.Remove(t.Context(), []string{filepath.Join(root, "img", "logo.png"), "missing.txt"}))
	assert.NoFileExists(t, filepath.Join(out, "img", "logo.png"))
	assert.FileExists(t, filepath.Join(out, "css", "site.css"))
}

func TestCopy_MissingSourceIsFileSystemError(t *testing.T) {
	_, _, s := setup(t)
	err := s.Copy(t.Context(), []string{"gone.css", "css/site.css"})
	require.Error(t, err)
	assert.True(t, ferrors.HasCategory(err, ferrors.CategoryFileSystem))
}
