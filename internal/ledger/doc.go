// Package ledger persists acquisition progress: the catalog cursor and the
// set of completed item ids. It is the single source of truth for
// resumability, so every mutation is flushed synchronously with an atomic
// rewrite, and a file lock enforces the single-writer assumption
// structurally.
package ledger
