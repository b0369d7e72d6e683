// Package videodb persists the acquisition history in SQLite. It is an
// observability index, not the progress source of truth: losing it never
// causes re-fetching.
package videodb
