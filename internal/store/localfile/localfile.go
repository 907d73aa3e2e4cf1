// Package localfile persists the collection to a JSON file on disk in the
// format earlier versions of the tool wrote.
package localfile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"coinlog/internal/core"
	"coinlog/internal/store"
)

type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the collection from disk. A missing file is an empty
// collection; unparseable content is ErrMalformed so the caller can degrade
// with a warning instead of crashing.
func (s *Store) Load(ctx context.Context) (core.Collection, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.DebugContext(ctx, "Data file does not exist yet, starting empty", "path", s.path)
			return core.Collection{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	c, err := core.DecodeCollection(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", store.ErrMalformed, s.path, err)
	}
	return c, nil
}

// Save overwrites the file with the collection, atomically from the
// caller's perspective: content goes to a temp file in the same directory
// and is renamed into place, so readers never observe a partial write.
func (s *Store) Save(ctx context.Context, c core.Collection) error {
	dir := filepath.Dir(s.path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
	}

	data, err := c.EncodeBytes()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", s.path, err)
	}

	slog.DebugContext(ctx, "Collection saved to file",
		"path", s.path,
		"entities", len(c),
		"records", c.TotalRecords())
	return nil
}
