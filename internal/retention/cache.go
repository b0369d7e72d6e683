package retention

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"dracin/internal/artifact"
	"dracin/internal/logging"
)

// Cache bounds the number of item directories kept on disk in serving-cache
// mode. Inserting past capacity synchronously deletes the least recently
// touched item's artifacts, so disk usage never overshoots by more than the
// item currently being acquired.
type Cache struct {
	layout artifact.Layout
	logger *slog.Logger

	mu  sync.Mutex
	lru *lru.Cache[string, time.Time]
}

// New builds a cache bounded at maxItems.
func New(layout artifact.Layout, maxItems int, logger *slog.Logger) (*Cache, error) {
	if maxItems <= 0 {
		return nil, fmt.Errorf("retention capacity must be positive, got %d", maxItems)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	c := &Cache{
		layout: layout,
		logger: logging.NewComponentLogger(logger, "retention"),
	}
	inner, err := lru.NewWithEvict(maxItems, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("build lru: %w", err)
	}
	c.lru = inner
	return c, nil
}

func (c *Cache) onEvict(itemID string, _ time.Time) {
	if err := c.layout.RemoveItem(itemID); err != nil {
		c.logger.Error("evict item artifacts",
			logging.String(logging.FieldItemID, itemID),
			logging.Error(err))
		return
	}
	c.logger.Info("evicted item artifacts", logging.String(logging.FieldItemID, itemID))
}

// Touch marks an item as most recently used, inserting it if absent. The
// eviction triggered by an insert past capacity completes before Touch
// returns.
func (c *Cache) Touch(itemID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(itemID, time.Now())
}

// Resident reports whether the item is currently cached, without refreshing
// its recency.
func (c *Cache) Resident(itemID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Contains(itemID)
}

// Len reports the number of resident items.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Keys returns the resident item ids, least recently used first.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Keys()
}

// Prime seeds the cache from the artifact directories already on disk,
// oldest modification first so the stalest survivors evict first. Priming a
// tree holding more than capacity items immediately trims the excess.
func (c *Cache) Prime() error {
	entries, err := os.ReadDir(c.layout.CompressedDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("scan artifact tree: %w", err)
	}

	type resident struct {
		id    string
		mtime time.Time
	}
	found := make([]resident, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		found = append(found, resident{id: entry.Name(), mtime: info.ModTime()})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].mtime.Before(found[j].mtime) })

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range found {
		c.lru.Add(r.id, r.mtime)
	}
	c.logger.Info("primed from disk", logging.Int("resident", c.lru.Len()))
	return nil
}
