package retention_test

import (
	"fmt"
	"os"
	"testing"
	"time"

	"dracin/internal/artifact"
	"dracin/internal/retention"
	"dracin/internal/testsupport"
)

func newLayout(t *testing.T) artifact.Layout {
	t.Helper()
	base := t.TempDir()
	return artifact.Layout{VideoDir: base + "/videos", CompressedDir: base + "/compressed"}
}

func seedItem(t *testing.T, layout artifact.Layout, id string, episodes int) {
	t.Helper()
	for ep := 1; ep <= episodes; ep++ {
		testsupport.WriteFile(t, layout.EpisodePath(id, ep), 32)
	}
}

func TestTouchEvictsBeyondCapacity(t *testing.T) {
	layout := newLayout(t)
	cache, err := retention.New(layout, 2, nil)
	if err != nil {
		t.Fatalf("retention.New: %v", err)
	}

	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("drama-%d", i)
		seedItem(t, layout, id, 2)
		cache.Touch(id)
	}

	if cache.Len() != 2 {
		t.Fatalf("expected 2 resident items, got %d", cache.Len())
	}
	if cache.Resident("drama-1") {
		t.Fatal("expected oldest item evicted")
	}
	if _, err := os.Stat(layout.ItemDir("drama-1")); !os.IsNotExist(err) {
		t.Fatal("expected evicted item's artifacts deleted synchronously")
	}
	if _, err := os.Stat(layout.ItemDir("drama-3")); err != nil {
		t.Fatalf("expected resident item's artifacts intact: %v", err)
	}
}

func TestTouchRefreshesRecency(t *testing.T) {
	layout := newLayout(t)
	cache, err := retention.New(layout, 2, nil)
	if err != nil {
		t.Fatalf("retention.New: %v", err)
	}

	for _, id := range []string{"a", "b"} {
		seedItem(t, layout, id, 1)
		cache.Touch(id)
	}
	cache.Touch("a") // now b is least recently used

	seedItem(t, layout, "c", 1)
	cache.Touch("c")

	if cache.Resident("b") {
		t.Fatal("expected least recently touched item evicted")
	}
	if !cache.Resident("a") || !cache.Resident("c") {
		t.Fatalf("unexpected residents %v", cache.Keys())
	}
}

func TestTouchExistingIsNotDuplicate(t *testing.T) {
	layout := newLayout(t)
	cache, err := retention.New(layout, 3, nil)
	if err != nil {
		t.Fatalf("retention.New: %v", err)
	}

	cache.Touch("a")
	cache.Touch("a")
	cache.Touch("a")
	if cache.Len() != 1 {
		t.Fatalf("expected a single entry, got %d", cache.Len())
	}
}

func TestPrimeSeedsFromDiskOldestFirst(t *testing.T) {
	layout := newLayout(t)

	for i, id := range []string{"old", "mid", "new"} {
		seedItem(t, layout, id, 1)
		mtime := time.Now().Add(time.Duration(i-3) * time.Hour)
		if err := os.Chtimes(layout.ItemDir(id), mtime, mtime); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	cache, err := retention.New(layout, 2, nil)
	if err != nil {
		t.Fatalf("retention.New: %v", err)
	}
	if err := cache.Prime(); err != nil {
		t.Fatalf("Prime: %v", err)
	}

	if cache.Resident("old") {
		t.Fatal("expected oldest directory trimmed during priming")
	}
	if !cache.Resident("mid") || !cache.Resident("new") {
		t.Fatalf("unexpected residents %v", cache.Keys())
	}
	if _, err := os.Stat(layout.ItemDir("old")); !os.IsNotExist(err) {
		t.Fatal("expected trimmed directory deleted")
	}
}

func TestPrimeMissingTree(t *testing.T) {
	layout := newLayout(t)
	cache, err := retention.New(layout, 2, nil)
	if err != nil {
		t.Fatalf("retention.New: %v", err)
	}
	if err := cache.Prime(); err != nil {
		t.Fatalf("Prime on missing tree: %v", err)
	}
	if cache.Len() != 0 {
		t.Fatalf("expected empty cache, got %d", cache.Len())
	}
}

func TestNewRejectsNonPositiveCapacity(t *testing.T) {
	if _, err := retention.New(newLayout(t), 0, nil); err == nil {
		t.Fatal("expected error for zero capacity")
	}
}
