package services

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrAuthPending blocks all forward progress until interactive
	// credentials are supplied through the auth surface.
	ErrAuthPending = errors.New("authentication pending")
	// ErrRateLimited is a scheduling signal, not a failure; the worker
	// responds by entering backoff.
	ErrRateLimited = errors.New("rate limited")
	// ErrTransport marks a network-level failure that already consumed its
	// single silent reconnect attempt.
	ErrTransport = errors.New("transport failure")
	// ErrTranscode marks an external transcoder failure; the raw artifact is
	// kept for a later retry.
	ErrTranscode      = errors.New("transcode error")
	ErrDiscoveryEmpty = errors.New("discovery returned no videos")
	ErrValidation     = errors.New("validation error")
	ErrConfiguration  = errors.New("configuration error")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransport
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

type rateLimitError struct {
	retryAfter time.Duration
	cause      error
}

func (e *rateLimitError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("rate limited: retry after %s: %v", e.retryAfter, e.cause)
	}
	return fmt.Sprintf("rate limited: retry after %s", e.retryAfter)
}

func (e *rateLimitError) Is(target error) bool { return target == ErrRateLimited }

func (e *rateLimitError) Unwrap() error { return e.cause }

// RateLimited tags err as a rate-limit signal carrying the upstream
// retry-after duration. A zero duration means the platform did not provide
// one; the worker substitutes its configured floor.
func RateLimited(retryAfter time.Duration, err error) error {
	return &rateLimitError{retryAfter: retryAfter, cause: err}
}

// RetryAfter extracts the retry-after duration from a rate-limit error.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *rateLimitError
	if errors.As(err, &rl) {
		return rl.retryAfter, true
	}
	return 0, false
}
