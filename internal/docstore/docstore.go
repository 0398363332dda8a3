// Package docstore persists the dashboard's state as flat JSON documents
// in a single data directory. Reads never fail: a missing or corrupt file
// yields the caller's default so the dashboard keeps working even if a
// document is damaged. Writes are atomic: the new content is written to a
// temporary file in the same directory and renamed over the target, so a
// crash mid-write can never leave a half-written document behind.
package docstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// Document filenames. The store accepts any name, but everything in the
// dashboard lives in these five.
const (
	Preferences  = "preferences.json"
	Inventory    = "inventory.json"
	MealPlan     = "meal-plan.json"
	ShoppingList = "shopping-list.json"
	Status       = "status.json"
)

// Store reads and writes JSON documents under a data directory.
type Store struct {
	dir    string
	logger *slog.Logger
}

// New creates a Store rooted at dir, creating the directory if needed.
func New(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Dir returns the data directory the store is rooted at.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the on-disk location of a named document.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Read returns the named mapping document, or def when the file is
// missing or unparsable. Corruption is logged, never surfaced: the
// previous behavior of the dashboard was to treat a damaged file as
// absent, and the next Write replaces it wholesale.
func (s *Store) Read(name string, def map[string]any) map[string]any {
	if def == nil {
		def = map[string]any{}
	}
	var doc map[string]any
	if !s.readInto(name, &doc) {
		return def
	}
	return doc
}

// ReadList returns the named sequence document, or def when the file is
// missing or unparsable.
func (s *Store) ReadList(name string, def []any) []any {
	if def == nil {
		def = []any{}
	}
	var doc []any
	if !s.readInto(name, &doc) {
		return def
	}
	return doc
}

// readInto reads and unmarshals a document. Returns false when the
// caller should fall back to its default.
func (s *Store) readInto(name string, v any) bool {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Error("document read failed", "document", name, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Error("document unparsable, treating as absent", "document", name, "error", err)
		return false
	}
	return true
}

// Write atomically replaces the named document with v. On any failure
// the temporary file is removed and the previous document content is
// left untouched.
func (s *Store) Write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp for %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", name, err)
	}

	// CreateTemp makes 0600 files; documents should be world-readable
	// like the rest of the share.
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp for %s: %w", name, err)
	}

	if err := os.Rename(tmpName, s.Path(name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
