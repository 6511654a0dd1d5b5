package agentsession

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPruneOutputs_RemovesOnlyFilesOlderThanMaxAge(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.txt")
	freshPath := filepath.Join(dir, "fresh.txt")
	if err := os.WriteFile(oldPath, []byte("old"), 0o644); err != nil {
		t.Fatalf("write old file: %v", err)
	}
	if err := os.WriteFile(freshPath, []byte("fresh"), 0o644); err != nil {
		t.Fatalf("write fresh file: %v", err)
	}

	old := time.Now().Add(-60 * 24 * time.Hour)
	if err := os.Chtimes(oldPath, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	m := testManager(WithFullOutputMaxAge(30 * 24 * time.Hour))
	removed, err := m.PruneOutputs(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected exactly one file removed, got %d", removed)
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Fatalf("expected the old file to be removed")
	}
	if _, err := os.Stat(freshPath); err != nil {
		t.Fatalf("expected the fresh file to survive: %v", err)
	}
}

func TestPruneOutputs_RateGatedToOncePerInterval(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.txt")
	if err := os.WriteFile(oldPath, []byte("old"), 0o644); err != nil {
		t.Fatalf("write old file: %v", err)
	}
	old := time.Now().Add(-60 * 24 * time.Hour)
	if err := os.Chtimes(oldPath, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	m := testManager(WithFullOutputMaxAge(30*24*time.Hour), WithSweepInterval(time.Hour))
	if _, err := m.PruneOutputs(dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := os.WriteFile(oldPath, []byte("old"), 0o644); err != nil {
		t.Fatalf("recreate old file: %v", err)
	}
	if err := os.Chtimes(oldPath, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	removed, err := m.PruneOutputs(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 0 {
		t.Fatalf("expected the second sweep within the interval to be rate-gated, got %d removed", removed)
	}
}

func TestPruneOutputs_MissingDirIsNotAnError(t *testing.T) {
	m := testManager()
	removed, err := m.PruneOutputs(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("unexpected error for a missing directory: %v", err)
	}
	if removed != 0 {
		t.Fatalf("expected zero removed for a missing directory, got %d", removed)
	}
}
