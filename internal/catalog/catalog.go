package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Item is one catalog entry: a drama with an ordered set of episodes.
// Items are immutable for the process lifetime.
type Item struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Episodes int    `json:"episodes"`
}

type manifest struct {
	Total  int    `json:"total"`
	Dramas []Item `json:"dramas_done"`
}

// Catalog is the ordered, immutable index of known items.
type Catalog struct {
	items []Item
	byID  map[string]int
}

// Load reads the manifest document once and builds the index.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return Parse(data)
}

// Parse builds a catalog from raw manifest bytes.
func Parse(data []byte) (*Catalog, error) {
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(m.Dramas) == 0 {
		return nil, errors.New("manifest contains no dramas")
	}

	c := &Catalog{
		items: make([]Item, 0, len(m.Dramas)),
		byID:  make(map[string]int, len(m.Dramas)),
	}
	for i, item := range m.Dramas {
		item.ID = strings.TrimSpace(item.ID)
		if item.ID == "" {
			return nil, fmt.Errorf("manifest entry %d: empty id", i)
		}
		if _, exists := c.byID[item.ID]; exists {
			return nil, fmt.Errorf("manifest entry %d: duplicate id %q", i, item.ID)
		}
		if item.Episodes <= 0 {
			return nil, fmt.Errorf("manifest entry %q: episode count must be positive", item.ID)
		}
		c.byID[item.ID] = len(c.items)
		c.items = append(c.items, item)
	}
	return c, nil
}

// Len reports the number of items in catalog order.
func (c *Catalog) Len() int { return len(c.items) }

// At returns the item at the given ordinal position.
func (c *Catalog) At(i int) Item { return c.items[i] }

// ByID looks up an item by identifier.
func (c *Catalog) ByID(id string) (Item, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Item{}, false
	}
	return c.items[i], true
}

// IndexOf returns the ordinal position of the given id.
func (c *Catalog) IndexOf(id string) (int, bool) {
	i, ok := c.byID[id]
	return i, ok
}

// Items returns a copy of the ordered item list.
func (c *Catalog) Items() []Item {
	cp := make([]Item, len(c.items))
	copy(cp, c.items)
	return cp
}
