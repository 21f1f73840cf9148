package flows

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/token"
)

// ErrEmptyCredentials is returned when identifier or password is blank.
var ErrEmptyCredentials = errors.New("empty credentials")

// LoginFailureKind classifies login failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureInput
	LoginFailureRejected
	LoginFailureUnavailable
	LoginFailureStore
)

// LoginResult is the flow-local login response shape.
type LoginResult struct {
	Failure   LoginFailureKind
	Err       error
	SessionID string
	Token     *session.Token
}

// LoginDeps captures login flow dependencies.
type LoginDeps struct {
	Now          func() time.Time
	Login        func(ctx context.Context, identifier, password string) (refresh.TokenPair, error)
	NewSessionID func() string
	Store        SessionStore
	SessionTTL   time.Duration
}

// RunLogin authenticates against the backend and persists a new session record.
func RunLogin(ctx context.Context, identifier, password string, deps LoginDeps) LoginResult {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return LoginResult{Failure: LoginFailureInput, Err: ErrEmptyCredentials}
	}

	pair, err := deps.Login(ctx, identifier, password)
	if err != nil {
		kind, _ := refresh.ClassifyError(err)
		if kind == refresh.FailureTerminal {
			return LoginResult{Failure: LoginFailureRejected, Err: err}
		}
		return LoginResult{Failure: LoginFailureUnavailable, Err: err}
	}

	now := deps.Now()
	tok := &session.Token{
		AccessToken:            pair.AccessToken,
		AccessTokenExpiresAtMs: token.IssuedExpiry(pair.AccessToken, pair.ExpiresAtMs, now),
		RefreshToken:           pair.RefreshToken,
		Identifier:             strings.ToLower(identifier),
		CreatedAtMs:            now.UnixMilli(),
		UpdatedAtMs:            now.UnixMilli(),
	}

	sid := deps.NewSessionID()
	if err := deps.Store.Save(ctx, sid, tok, deps.SessionTTL); err != nil {
		return LoginResult{Failure: LoginFailureStore, Err: err}
	}
	return LoginResult{SessionID: sid, Token: tok}
}
