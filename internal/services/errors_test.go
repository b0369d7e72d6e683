package services

import (
	"errors"
	"testing"
	"time"
)

func TestWrapTagsMarker(t *testing.T) {
	err := Wrap(ErrTranscode, "ffmpeg", "transcode", "exit status 1", errors.New("boom"))
	if !errors.Is(err, ErrTranscode) {
		t.Fatalf("expected transcode marker, got %v", err)
	}
	if got := err.Error(); got == "" || !errors.Is(err, err) {
		t.Fatalf("unexpected error text %q", got)
	}
}

func TestWrapDefaultsToTransport(t *testing.T) {
	err := Wrap(nil, "telegram", "fetch", "", errors.New("conn reset"))
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected transport marker, got %v", err)
	}
}

func TestRateLimitedCarriesRetryAfter(t *testing.T) {
	err := RateLimited(42*time.Second, errors.New("FLOOD_WAIT_42"))
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate-limit marker, got %v", err)
	}
	after, ok := RetryAfter(err)
	if !ok || after != 42*time.Second {
		t.Fatalf("expected 42s retry-after, got %v (ok=%v)", after, ok)
	}
}

func TestRetryAfterOnOtherErrors(t *testing.T) {
	if _, ok := RetryAfter(errors.New("plain")); ok {
		t.Fatal("expected no retry-after on plain error")
	}
}
