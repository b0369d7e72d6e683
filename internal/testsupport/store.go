package testsupport

import (
	"testing"

	"dracin/internal/config"
	"dracin/internal/ledger"
	"dracin/internal/videodb"
)

// MustOpenStore opens a videodb.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *videodb.Store {
	t.Helper()

	store, err := videodb.Open(cfg)
	if err != nil {
		t.Fatalf("videodb.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustOpenLedger opens the progress ledger for tests and registers cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config) *ledger.Ledger {
	t.Helper()

	l, err := ledger.Open(cfg.Paths.ProgressPath)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		l.Close()
	})
	return l
}
