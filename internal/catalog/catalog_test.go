package catalog_test

import (
	"os"
	"path/filepath"
	"testing"

	"dracin/internal/catalog"
)

const sampleManifest = `{
  "total": 2,
  "dramas_done": [
    {"id": "A", "title": "First Love", "episodes": 2},
    {"id": "B", "title": "Second Chance", "episodes": 1}
  ]
}`

func TestLoadBuildsOrderedIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dramas.json")
	if err := os.WriteFile(path, []byte(sampleManifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	c, err := catalog.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 items, got %d", c.Len())
	}
	if c.At(0).ID != "A" || c.At(1).ID != "B" {
		t.Fatalf("unexpected order: %v", c.Items())
	}
	item, ok := c.ByID("B")
	if !ok || item.Episodes != 1 {
		t.Fatalf("unexpected lookup result: %+v ok=%v", item, ok)
	}
	if idx, ok := c.IndexOf("B"); !ok || idx != 1 {
		t.Fatalf("expected index 1 for B, got %d ok=%v", idx, ok)
	}
}

func TestParseRejectsDuplicates(t *testing.T) {
	_, err := catalog.Parse([]byte(`{"dramas_done":[{"id":"A","episodes":1},{"id":"A","episodes":2}]}`))
	if err == nil {
		t.Fatal("expected duplicate id error")
	}
}

func TestParseRejectsBadEpisodeCounts(t *testing.T) {
	_, err := catalog.Parse([]byte(`{"dramas_done":[{"id":"A","episodes":0}]}`))
	if err == nil {
		t.Fatal("expected episode count error")
	}
}

func TestParseRejectsEmptyManifest(t *testing.T) {
	if _, err := catalog.Parse([]byte(`{"dramas_done":[]}`)); err == nil {
		t.Fatal("expected empty manifest error")
	}
}
