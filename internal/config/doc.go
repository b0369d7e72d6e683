// Package config loads, normalizes, and validates dracin configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// TELEGRAM_API_ID. The Config type centralizes every knob the daemon needs,
// so artifact directories, session credentials, and worker pacing are
// discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
