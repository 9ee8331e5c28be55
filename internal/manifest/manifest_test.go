package manifest

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/voiced-ai/voiced/model"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
		t.Fatalf("touch %s: %v", name, err)
	}
}

func TestOpenToleratesMissingFile(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(s.List(dir)) != 0 {
		t.Errorf("expected empty registry")
	}
}

func TestInsertStampsTimestampAndRoundTrips(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "llm-small")

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	info := model.Info{ID: "llm-small", Name: "Small LLM", Type: model.TypeLLM, Version: "1.0.0"}
	if verr := s.Insert(info); verr != nil {
		t.Fatalf("Insert: %v", verr)
	}

	// Fresh store in same directory must see the entry (manifest round-trip, spec.md property 11).
	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("re-Open: %v", err)
	}
	got, ok := s2.Get("llm-small")
	if !ok {
		t.Fatal("expected entry to round-trip")
	}
	ts := got.DownloadTimestamp()
	if ts == "" {
		t.Fatal("expected download_timestamp to be set")
	}
	if _, err := strconv.ParseInt(ts, 10, 64); err != nil {
		t.Errorf("download_timestamp %q is not parseable as epoch seconds: %v", ts, err)
	}

	listed := s2.List(dir)
	if len(listed) != 1 || listed[0].ID != "llm-small" {
		t.Errorf("expected listed entry for llm-small, got %+v", listed)
	}
}

func TestInsertRejectsInvalidVersion(t *testing.T) {
	dir := t.TempDir()
	s, _ := Open(dir)
	err := s.Insert(model.Info{ID: "bad", Version: "1.0"})
	if err == nil {
		t.Fatal("expected error for invalid version")
	}
}

func TestListOmitsEntriesWithMissingFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "present")
	s, _ := Open(dir)
	s.Insert(model.Info{ID: "present", Version: "1.0.0"})
	s.Insert(model.Info{ID: "absent", Version: "1.0.0"})

	listed := s.List(dir)
	if len(listed) != 1 || listed[0].ID != "present" {
		t.Errorf("expected only 'present' to be listed, got %+v", listed)
	}

	// The silent removal should persist on next write.
	s2, _ := Open(dir)
	if _, ok := s2.Get("absent"); ok {
		t.Error("expected 'absent' entry to be pruned after List")
	}
}

func TestDeleteRemovesEntry(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "m")
	s, _ := Open(dir)
	s.Insert(model.Info{ID: "m", Version: "1.0.0"})
	if err := s.Delete("m"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := s.Get("m"); ok {
		t.Error("expected entry to be gone after Delete")
	}
}
