package respcache

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestCache_WatchReloadsOnExternalWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.json")

	writer := New()
	writer.Set("k1", Entry{ResponseText: "original"})
	if err := writer.Persist(path); err != nil {
		t.Fatalf("persist: %v", err)
	}

	reader := New()
	if err := reader.Load(path); err != nil {
		t.Fatalf("initial load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reader.Watch(ctx, path)

	time.Sleep(50 * time.Millisecond)
	writer.Set("k1", Entry{ResponseText: "updated"})
	if err := writer.Persist(path); err != nil {
		t.Fatalf("persist update: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		if e, ok := reader.Get("k1"); ok && e.ResponseText == "updated" {
			return
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for watch to reload the updated entry")
		case <-time.After(20 * time.Millisecond):
		}
	}
}
