// Package services defines the shared error taxonomy for external
// collaborators (Telegram session, ffmpeg) and the helpers the worker uses
// to classify failures.
//
// Errors are tagged with sentinel markers so callers can branch with
// errors.Is instead of string matching. Rate-limit errors additionally carry
// the upstream retry-after duration, extractable via RetryAfter.
package services
