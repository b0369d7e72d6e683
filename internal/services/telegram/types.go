package telegram

import (
	"context"

	"github.com/gotd/td/tg"
)

// AuthState mirrors the interactive login progression exposed to the auth
// API surface.
type AuthState string

const (
	AuthIdle         AuthState = "IDLE"
	AuthWaitingPhone AuthState = "WAITING_PHONE"
	AuthWaitingCode  AuthState = "WAITING_CODE"
	AuthReady        AuthState = "READY"
)

// Message is one conversation entry as seen by discovery. Video-bearing
// messages carry a download location; everything else has Video unset.
type Message struct {
	ID              int
	Video           bool
	SizeBytes       int64
	DurationSeconds int

	// Location addresses the payload for FetchPayload. Opaque to callers.
	Location tg.InputFileLocationClass
}

// Client is the session gateway contract: exactly one authenticated
// connection to the upstream content source, with fetch, locate, and
// command operations.
type Client interface {
	// Connect establishes the session. It returns an error wrapping
	// services.ErrAuthPending while interactive credentials are still
	// required; the caller supplies them via SubmitPhoneNumber/SubmitCode
	// and retries.
	Connect(ctx context.Context) error
	Close() error

	AuthState() AuthState
	SubmitPhoneNumber(phone string) error
	SubmitCode(code string) error

	// ResolvePeer resolves the configured bot handle once; the result is
	// cached for the process lifetime.
	ResolvePeer(ctx context.Context) error
	// SendCommand is a fire-and-forget message send.
	SendCommand(ctx context.Context, text string) error
	// ListRecent returns up to limit messages, newest first.
	ListRecent(ctx context.Context, limit int) ([]Message, error)
	// FetchPayload downloads the message's full binary content to destPath.
	FetchPayload(ctx context.Context, msg Message, destPath string) error
}
