// Package workspace manages the staging directory that generated files are
// written to before being moved into the output root.
package workspace

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// Manager owns one staging directory. It is safe for concurrent use.
type Manager struct {
	mu     sync.Mutex
	dir    string
	exists bool
}

// NewManager returns a manager for dir. Nothing is created until Create.
func NewManager(dir string) *Manager {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "sitebuilder-staging")
	}
	return &Manager{dir: dir}
}

// Create ensures the staging directory exists.
func (m *Manager) Create() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked()
}

func (m *Manager) createLocked() error {
	if m.exists {
		return nil
	}
	if err := os.MkdirAll(m.dir, 0o750); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to create workspace directory").
			WithContext("path", m.dir).
			Build()
	}
	m.exists = true
	slog.Debug("Created workspace", logfields.Path(m.dir))
	return nil
}

// Path returns the staging directory.
func (m *Manager) Path() string {
	return m.dir
}

// CreateTemp creates a new temporary file inside the staging directory,
// creating the directory if a cleanup removed it.
func (m *Manager) CreateTemp(pattern string) (*os.File, error) {
	m.mu.Lock()
	if err := m.createLocked(); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.mu.Unlock()

	f, err := os.CreateTemp(m.dir, pattern)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to create staging file").
			WithContext("path", m.dir).
			Build()
	}
	return f, nil
}

// Cleanup removes the staging directory and everything in it.
func (m *Manager) Cleanup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := os.RemoveAll(m.dir); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to cleanup workspace").
			WithContext("path", m.dir).
			Build()
	}
	m.exists = false
	slog.Debug("Cleaned up workspace", logfields.Path(m.dir))
	return nil
}
