// Package catalog loads the drama manifest and exposes it as an ordered,
// immutable index. The manifest is read once at startup and never rewritten
// by this subsystem.
package catalog
