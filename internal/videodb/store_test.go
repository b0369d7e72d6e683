package videodb_test

import (
	"context"
	"path/filepath"
	"testing"

	"dracin/internal/videodb"
)

func openStore(t *testing.T) *videodb.Store {
	t.Helper()
	store, err := videodb.OpenPath(filepath.Join(t.TempDir(), "dracin.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestUpsertEpisodeOverwrites(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	first := videodb.Episode{DramaID: "7765", Episode: 1, MessageID: 42, SizeBytes: 100, DurationSeconds: 60, FilePath: "/v/a.mp4"}
	if err := store.UpsertEpisode(ctx, first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	second := first
	second.SizeBytes = 200
	second.FilePath = "/v/b.mp4"
	if err := store.UpsertEpisode(ctx, second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	eps, err := store.EpisodesFor(ctx, "7765")
	if err != nil {
		t.Fatalf("EpisodesFor: %v", err)
	}
	if len(eps) != 1 {
		t.Fatalf("expected single row after overwrite, got %d", len(eps))
	}
	if eps[0].SizeBytes != 200 || eps[0].FilePath != "/v/b.mp4" || eps[0].MessageID != 42 {
		t.Fatalf("expected overwritten row, got %+v", eps[0])
	}
}

func TestEpisodesForOrdering(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	for _, ep := range []int{3, 1, 2} {
		if err := store.UpsertEpisode(ctx, videodb.Episode{DramaID: "d1", Episode: ep, FilePath: "/x"}); err != nil {
			t.Fatalf("upsert ep%d: %v", ep, err)
		}
	}

	eps, err := store.EpisodesFor(ctx, "d1")
	if err != nil {
		t.Fatalf("EpisodesFor: %v", err)
	}
	for i, ep := range eps {
		if ep.Episode != i+1 {
			t.Fatalf("expected ordered episodes, got %+v", eps)
		}
	}
}

func TestDramaCount(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	if err := store.UpsertDrama(ctx, videodb.Drama{DramaID: "d1", Title: "One", Episodes: 8}); err != nil {
		t.Fatalf("upsert d1: %v", err)
	}
	if err := store.UpsertDrama(ctx, videodb.Drama{DramaID: "d1", Title: "One (revised)", Episodes: 8}); err != nil {
		t.Fatalf("re-upsert d1: %v", err)
	}
	if err := store.UpsertDrama(ctx, videodb.Drama{DramaID: "d2", Title: "Two", Episodes: 12}); err != nil {
		t.Fatalf("upsert d2: %v", err)
	}

	n, err := store.DramaCount(ctx)
	if err != nil {
		t.Fatalf("DramaCount: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 dramas, got %d", n)
	}
}

func TestReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dracin.db")
	ctx := context.Background()

	store, err := videodb.OpenPath(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := store.UpsertEpisode(ctx, videodb.Episode{DramaID: "d1", Episode: 1, FilePath: "/x"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store, err = videodb.OpenPath(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()

	eps, err := store.EpisodesFor(ctx, "d1")
	if err != nil {
		t.Fatalf("EpisodesFor: %v", err)
	}
	if len(eps) != 1 {
		t.Fatalf("expected persisted row, got %d", len(eps))
	}
}
