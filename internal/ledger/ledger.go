package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"
)

// record is the on-disk document shape. Field names are load-bearing: an
// existing progress file must resume cleanly.
type record struct {
	LastItemIndex  int      `json:"lastItemIndex"`
	CompletedItems []string `json:"completedItems"`
}

// Snapshot is a read-only copy of ledger state.
type Snapshot struct {
	Cursor    int
	Completed []string
}

// Ledger is the durable record of acquisition progress: the catalog cursor
// and the set of fully completed item ids. Every mutation is flushed to disk
// synchronously via write-then-rename.
type Ledger struct {
	path string
	lock *flock.Flock

	mu        sync.RWMutex
	cursor    int
	completed map[string]struct{}
}

// Open reads the ledger file (creating state from zero when absent) and
// acquires an exclusive lock on a sibling lock file. A second process
// opening the same ledger fails fast instead of corrupting it.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire ledger lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("ledger %s is locked by another process", path)
	}

	l := &Ledger{
		path:      path,
		lock:      lock,
		completed: make(map[string]struct{}),
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// Fresh run.
	case err != nil:
		_ = lock.Unlock()
		return nil, fmt.Errorf("read ledger: %w", err)
	default:
		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			_ = lock.Unlock()
			return nil, fmt.Errorf("parse ledger: %w", err)
		}
		l.cursor = rec.LastItemIndex
		for _, id := range rec.CompletedItems {
			l.completed[id] = struct{}{}
		}
	}

	return l, nil
}

// Close releases the ledger lock.
func (l *Ledger) Close() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}

// Cursor returns the index of the next item to attempt under normal flow.
func (l *Ledger) Cursor() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cursor
}

// IsCompleted reports whether the item has been fully processed, regardless
// of cursor position.
func (l *Ledger) IsCompleted(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.completed[id]
	return ok
}

// CompletedCount returns the number of completed items.
func (l *Ledger) CompletedCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.completed)
}

// Snapshot returns a copy of the current state with completed ids sorted.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Snapshot{Cursor: l.cursor, Completed: l.completedSortedLocked()}
}

// MarkCompleted records the item as fully processed and flushes to disk.
// Marking an already-completed item is a no-op.
func (l *Ledger) MarkCompleted(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.completed[id]; ok {
		return nil
	}
	l.completed[id] = struct{}{}
	return l.persistLocked()
}

// SetCursor moves the catalog cursor and flushes to disk.
func (l *Ledger) SetCursor(index int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index == l.cursor {
		return nil
	}
	l.cursor = index
	return l.persistLocked()
}

func (l *Ledger) completedSortedLocked() []string {
	ids := make([]string, 0, len(l.completed))
	for id := range l.completed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// persistLocked rewrites the ledger atomically: temp file in the same
// directory, fsync, then rename over the destination.
func (l *Ledger) persistLocked() error {
	rec := record{LastItemIndex: l.cursor, CompletedItems: l.completedSortedLocked()}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".progress-*.json")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp ledger: %w", err)
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}
