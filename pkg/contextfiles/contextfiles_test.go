package contextfiles

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExpand_MatchesGlobAndDedupes(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a"), 0o644); err != nil {
		t.Fatalf("write a.go: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.go"), []byte("package b"), 0o644); err != nil {
		t.Fatalf("write b.go: %v", err)
	}

	files, err := Expand(dir, []string{"*.go", "*.go"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected two deduplicated matches, got %d", len(files))
	}
}

func TestExpand_InvalidPatternErrors(t *testing.T) {
	if _, err := Expand(t.TempDir(), []string{"["}); err == nil {
		t.Fatalf("expected an error for a malformed glob pattern")
	}
}

func TestExpand_NoMatchesReturnsEmpty(t *testing.T) {
	files, err := Expand(t.TempDir(), []string{"*.nonexistent"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("expected no matches, got %d", len(files))
	}
}

func TestBuildSuffix_EmptyFilesReturnsEmptyString(t *testing.T) {
	if got := BuildSuffix(nil); got != "" {
		t.Fatalf("expected empty suffix for no files, got %q", got)
	}
}

func TestBuildSuffix_RendersEachFileWithPathHeader(t *testing.T) {
	suffix := BuildSuffix([]File{{Path: "a.go", Text: "package a"}})
	if suffix == "" {
		t.Fatalf("expected a non-empty suffix")
	}
}
