package telegram

import (
	"context"
	"errors"
	"sync"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
)

// interactiveAuth implements the gotd authenticator against the narrow
// two-step API: the flow blocks inside Phone/Code until the serving layer
// submits the value.
type interactiveAuth struct {
	mu      sync.Mutex
	state   AuthState
	phoneCh chan string
	codeCh  chan string
}

func newInteractiveAuth() *interactiveAuth {
	return &interactiveAuth{
		state:   AuthIdle,
		phoneCh: make(chan string, 1),
		codeCh:  make(chan string, 1),
	}
}

func (a *interactiveAuth) State() AuthState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *interactiveAuth) setState(state AuthState) {
	a.mu.Lock()
	a.state = state
	a.mu.Unlock()
}

// SubmitPhone delivers the phone number to a blocked Phone call.
func (a *interactiveAuth) SubmitPhone(phone string) error {
	if a.State() != AuthWaitingPhone {
		return errors.New("not waiting for phone number")
	}
	select {
	case a.phoneCh <- phone:
		return nil
	default:
		return errors.New("phone number already submitted")
	}
}

// SubmitCode delivers the one-time code to a blocked Code call.
func (a *interactiveAuth) SubmitCode(code string) error {
	if a.State() != AuthWaitingCode {
		return errors.New("not waiting for code")
	}
	select {
	case a.codeCh <- code:
		return nil
	default:
		return errors.New("code already submitted")
	}
}

func (a *interactiveAuth) Phone(ctx context.Context) (string, error) {
	a.setState(AuthWaitingPhone)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case phone := <-a.phoneCh:
		return phone, nil
	}
}

func (a *interactiveAuth) Code(ctx context.Context, _ *tg.AuthSentCode) (string, error) {
	a.setState(AuthWaitingCode)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case code := <-a.codeCh:
		return code, nil
	}
}

func (a *interactiveAuth) Password(ctx context.Context) (string, error) {
	return "", errors.New("two-factor password login is not supported")
}

func (a *interactiveAuth) AcceptTermsOfService(ctx context.Context, tos tg.HelpTermsOfService) error {
	return nil
}

func (a *interactiveAuth) SignUp(ctx context.Context) (auth.UserInfo, error) {
	return auth.UserInfo{}, errors.New("sign up is not supported")
}

var _ auth.UserAuthenticator = (*interactiveAuth)(nil)
