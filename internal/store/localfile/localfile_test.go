package localfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"coinlog/internal/core"
	"coinlog/internal/store"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "nope.json"))

	c, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c) != 0 {
		t.Fatalf("expected empty collection, got %v", c)
	}
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{broken"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := New(path).Load(context.Background())
	if !errors.Is(err, store.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "coin_data_multi.json")
	s := New(path)

	c := core.Collection{}
	c.Append("Stitch", core.Compute(1000, 2000, core.Items{}))
	c.Append("マレドラ", core.Compute(1000, 5150, core.Items{FiveToFour: true}))

	if err := s.Save(context.Background(), c); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.TotalRecords() != 2 {
		t.Fatalf("reloaded %d records, want 2", got.TotalRecords())
	}
	if got["マレドラ"][0].Final != 3350 {
		t.Fatalf("record lost fidelity: %+v", got["マレドラ"][0])
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "data.json"))

	c := core.Collection{}
	c.Append("Stitch", core.Compute(500, 600, core.Items{}))
	if err := s.Save(context.Background(), c); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// Overwrite to exercise the rename-over path too.
	if err := s.Save(context.Background(), c); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "data.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("unexpected directory contents: %v", names)
	}
}
