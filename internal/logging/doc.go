// Package logging assembles structured slog loggers and formatting helpers
// used across dracin components.
//
// It owns the console/JSON handlers, centralizes level and output plumbing,
// and exposes attribute helpers so worker code tags log lines with item ids,
// episode ordinals, and phases consistently. A no-op logger is provided for
// tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so every component
// emits data with the same shape.
package logging
