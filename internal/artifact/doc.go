// Package artifact owns the on-disk layout of downloaded and transcoded
// media: one directory per item, one epN.mp4 file per episode ordinal. The
// completion predicate for an item is defined entirely in terms of this
// layout; there is no per-episode ledger entry.
package artifact
