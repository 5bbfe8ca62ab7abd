// Package siteindex builds and persists the search index written after every
// generation batch.
package siteindex

import (
	"encoding/json"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
)

// FileName is the index file written at the output root.
const FileName = "siteData.json"

// Entry summarizes one searchable page.
type Entry struct {
	Src             string            `json:"src"`
	Title           string            `json:"title"`
	Headings        map[string]string `json:"headings"`
	HeadingKeywords map[string]string `json:"headingKeywords"`
}

// Index is the persisted site index.
type Index struct {
	EnableSearch bool    `json:"enableSearch"`
	Pages        []Entry `json:"pages"`
}

// New returns an index over entries, never encoding pages as null.
func New(enableSearch bool, entries []Entry) Index {
	if entries == nil {
		entries = []Entry{}
	}
	for i := range entries {
		if entries[i].Headings == nil {
			entries[i].Headings = map[string]string{}
		}
		if entries[i].HeadingKeywords == nil {
			entries[i].HeadingKeywords = map[string]string{}
		}
	}
	return Index{EnableSearch: enableSearch, Pages: entries}
}

// Path returns the index location under outputDir.
func Path(outputDir string) string {
	return filepath.Join(outputDir, FileName)
}

// Write replaces the index file atomically.
func Write(path string, idx Index) error {
	data, err := json.Marshal(idx)
	if err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "failed to encode site index").Build()
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to create index directory").
			WithContext("path", dir).
			Build()
	}
	tmp, err := os.CreateTemp(dir, ".siteData-*.json")
	if err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to create temporary index file").
			WithContext("path", path).
			Build()
	}
	tmpName := tmp.Name()
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Chmod(tmpName, 0o644)
	}
	if werr == nil {
		werr = os.Rename(tmpName, path)
	}
	if werr != nil {
		_ = os.Remove(tmpName)
		return errors.WrapError(werr, errors.CategoryFileSystem, "failed to write site index").
			WithContext("path", path).
			Build()
	}
	return nil
}

// Read loads a previously written index.
func Read(path string) (Index, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Index{}, errors.WrapError(err, errors.CategoryFileSystem, "failed to read site index").
			WithContext("path", path).
			Build()
	}
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return Index{}, errors.WrapError(err, errors.CategoryValidation, "failed to decode site index").
			WithContext("path", path).
			Build()
	}
	return idx, nil
}
