package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gotd/td/session"
	tgclient "github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/downloader"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"dracin/internal/config"
	"dracin/internal/logging"
	"dracin/internal/services"
)

const (
	connectWait    = 15 * time.Second
	reconnectDelay = 2 * time.Second
)

// Session owns the single authenticated connection to the upstream
// platform. The underlying MTProto client reconnects idle links
// transparently; operations here add exactly one silent retry before
// surfacing a transport failure.
type Session struct {
	apiID       int
	apiHash     string
	sessionFile string
	botUsername string
	logger      *slog.Logger

	auth *interactiveAuth
	dl   *downloader.Downloader

	mu        sync.Mutex
	client    *tgclient.Client
	api       *tg.Client
	sender    *message.Sender
	peer      *tg.InputPeerUser
	running   bool
	ready     chan struct{}
	runCancel context.CancelFunc
	runDone   chan struct{}
	runErr    error
}

// NewSession builds a session gateway from configuration. No network
// activity happens until Connect.
func NewSession(cfg *config.Config, logger *slog.Logger) *Session {
	return &Session{
		apiID:       cfg.Telegram.APIID,
		apiHash:     cfg.Telegram.APIHash,
		sessionFile: cfg.Telegram.SessionFile,
		botUsername: cfg.Telegram.BotUsername,
		logger:      logging.NewComponentLogger(logger, "telegram"),
		auth:        newInteractiveAuth(),
		dl:          downloader.NewDownloader(),
		ready:       make(chan struct{}),
	}
}

// AuthState reports the interactive login progression.
func (s *Session) AuthState() AuthState {
	select {
	case <-s.ready:
		return AuthReady
	default:
	}
	return s.auth.State()
}

// SubmitPhoneNumber feeds the phone number to a pending login flow.
func (s *Session) SubmitPhoneNumber(phone string) error {
	return s.auth.SubmitPhone(phone)
}

// SubmitCode feeds the one-time code to a pending login flow.
func (s *Session) SubmitCode(code string) error {
	return s.auth.SubmitCode(code)
}

// Connect starts the client on first use and waits for the session to be
// authorized. While the login flow needs interactive input it returns an
// ErrAuthPending-tagged error so the caller can retry after credentials
// arrive.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.startLocked()
	}
	s.mu.Unlock()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.NewTimer(connectWait)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.ready:
			return nil
		case <-s.runDone:
			s.mu.Lock()
			err := s.runErr
			s.running = false
			s.mu.Unlock()
			return services.Wrap(services.ErrTransport, "telegram", "connect", "session terminated", err)
		case <-ticker.C:
			if state := s.auth.State(); state == AuthWaitingPhone || state == AuthWaitingCode {
				return services.Wrap(services.ErrAuthPending, "telegram", "connect", string(state), nil)
			}
		case <-deadline.C:
			if state := s.auth.State(); state == AuthWaitingPhone || state == AuthWaitingCode {
				return services.Wrap(services.ErrAuthPending, "telegram", "connect", string(state), nil)
			}
			return services.Wrap(services.ErrTransport, "telegram", "connect", "timed out waiting for session", nil)
		}
	}
}

// startLocked launches the client run loop. Caller holds s.mu.
func (s *Session) startLocked() {
	runCtx, cancel := context.WithCancel(context.Background())
	s.client = tgclient.NewClient(s.apiID, s.apiHash, tgclient.Options{
		SessionStorage: &session.FileStorage{Path: s.sessionFile},
	})
	s.runCancel = cancel
	s.runDone = make(chan struct{})
	s.running = true

	go func() {
		defer close(s.runDone)
		err := s.client.Run(runCtx, func(ctx context.Context) error {
			flow := auth.NewFlow(s.auth, auth.SendCodeOptions{})
			if err := s.client.Auth().IfNecessary(ctx, flow); err != nil {
				return fmt.Errorf("authorize: %w", err)
			}
			s.auth.setState(AuthReady)

			s.mu.Lock()
			s.api = s.client.API()
			s.sender = message.NewSender(s.api)
			s.mu.Unlock()
			close(s.ready)

			s.logger.Info("session authorized")
			<-ctx.Done()
			return ctx.Err()
		})
		s.mu.Lock()
		s.runErr = err
		s.mu.Unlock()
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("session run loop exited", logging.Error(err))
		}
	}()
}

// Close terminates the session.
func (s *Session) Close() error {
	s.mu.Lock()
	cancel := s.runCancel
	done := s.runDone
	s.runCancel = nil
	s.running = false
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	return nil
}

// ResolvePeer resolves the configured bot handle once per process lifetime.
func (s *Session) ResolvePeer(ctx context.Context) error {
	s.mu.Lock()
	resolved := s.peer != nil
	s.mu.Unlock()
	if resolved {
		return nil
	}

	api, err := s.readyAPI()
	if err != nil {
		return err
	}

	return s.invoke(ctx, "resolve peer", func(ctx context.Context) error {
		res, err := api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{
			Username: s.botUsername,
		})
		if err != nil {
			return err
		}
		for _, u := range res.Users {
			user, ok := u.(*tg.User)
			if !ok {
				continue
			}
			s.mu.Lock()
			s.peer = &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash}
			s.mu.Unlock()
			return nil
		}
		return fmt.Errorf("no user in resolved peer %q", s.botUsername)
	})
}

// SendCommand sends a text message to the bot. Fire-and-forget: no
// acknowledgment beyond delivery.
func (s *Session) SendCommand(ctx context.Context, text string) error {
	peer, err := s.requirePeer()
	if err != nil {
		return err
	}
	return s.invoke(ctx, "send command", func(ctx context.Context) error {
		_, err := s.sender.To(peer).Text(ctx, text)
		return err
	})
}

// ListRecent returns the newest messages in the bot conversation,
// newest first.
func (s *Session) ListRecent(ctx context.Context, limit int) ([]Message, error) {
	peer, err := s.requirePeer()
	if err != nil {
		return nil, err
	}
	api, err := s.readyAPI()
	if err != nil {
		return nil, err
	}

	var out []Message
	err = s.invoke(ctx, "list recent", func(ctx context.Context) error {
		res, err := api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer:  peer,
			Limit: limit,
		})
		if err != nil {
			return err
		}
		modified, ok := res.(tg.ModifiedMessagesMessages)
		if !ok {
			return fmt.Errorf("unexpected history response %T", res)
		}
		out = out[:0]
		for _, m := range modified.GetMessages() {
			if msg, ok := classify(m); ok {
				out = append(out, msg)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FetchPayload downloads the full binary content of a video-bearing message
// to destPath. Blocking; there is no mid-download abort.
func (s *Session) FetchPayload(ctx context.Context, msg Message, destPath string) error {
	if msg.Location == nil {
		return services.Wrap(services.ErrValidation, "telegram", "fetch payload", "message carries no payload", nil)
	}
	api, err := s.readyAPI()
	if err != nil {
		return err
	}
	return s.invoke(ctx, "fetch payload", func(ctx context.Context) error {
		_, err := s.dl.Download(api, msg.Location).ToPath(ctx, destPath)
		return err
	})
}

func (s *Session) readyAPI() (*tg.Client, error) {
	select {
	case <-s.ready:
	default:
		return nil, services.Wrap(services.ErrAuthPending, "telegram", "session", "not connected", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.api, nil
}

func (s *Session) requirePeer() (tg.InputPeerClass, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peer == nil {
		return nil, services.Wrap(services.ErrValidation, "telegram", "session", "peer not resolved", nil)
	}
	return s.peer, nil
}

// invoke runs fn, mapping flood waits to rate-limit signals and allowing a
// single silent retry for transient network errors. A second consecutive
// failure surfaces as a transport failure; the caller decides whether to
// retry the sub-item or abandon it.
func (s *Session) invoke(ctx context.Context, op string, fn func(context.Context) error) error {
	err := fn(ctx)
	if err == nil {
		return nil
	}
	if mapped, ok := asRateLimit(err); ok {
		return mapped
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.logger.Warn("operation failed, retrying once", logging.String("op", op), logging.Error(err))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(reconnectDelay):
	}

	err = fn(ctx)
	if err == nil {
		return nil
	}
	if mapped, ok := asRateLimit(err); ok {
		return mapped
	}
	return services.Wrap(services.ErrTransport, "telegram", op, "", err)
}

// asRateLimit maps upstream throttling to the scheduling signal. Structured
// FLOOD_WAIT errors carry the retry-after duration; otherwise the duration
// is zero and the worker applies its configured floor.
func asRateLimit(err error) (error, bool) {
	if d, ok := tgerr.AsFloodWait(err); ok {
		return services.RateLimited(d, err), true
	}
	if strings.Contains(strings.ToUpper(err.Error()), "FLOOD") {
		return services.RateLimited(0, err), true
	}
	return nil, false
}

// classify extracts discovery-relevant fields from a raw conversation entry.
// Video-bearing means a document payload with a video mime type.
func classify(m tg.MessageClass) (Message, bool) {
	msg, ok := m.(*tg.Message)
	if !ok {
		return Message{}, false
	}
	out := Message{ID: msg.ID}

	media, ok := msg.Media.(*tg.MessageMediaDocument)
	if !ok {
		return out, true
	}
	doc, ok := media.Document.AsNotEmpty()
	if !ok || !strings.HasPrefix(doc.MimeType, "video/") {
		return out, true
	}

	out.Video = true
	out.SizeBytes = int64(doc.Size)
	out.Location = doc.AsInputDocumentFileLocation()
	for _, attr := range doc.Attributes {
		if v, ok := attr.(*tg.DocumentAttributeVideo); ok {
			out.DurationSeconds = int(v.Duration)
		}
	}
	return out, true
}

var _ Client = (*Session)(nil)
