package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/token"
)

// AccessFailureKind classifies access-token resolution failures for root-level mapping.
type AccessFailureKind int

const (
	AccessFailureNone AccessFailureKind = iota
	AccessFailureNotFound
	AccessFailureInvalid
	AccessFailureExpired
	AccessFailureRejected
	AccessFailureUnavailable
	AccessFailureStore
)

// AccessResult carries either a usable access token or failure metadata.
type AccessResult struct {
	Failure     AccessFailureKind
	Err         error
	AccessToken string
	Token       *session.Token

	// Refreshed is true when this call observed a successful refresh.
	Refreshed bool
	// Stale is true when a transient failure fell back to a still-valid token.
	Stale   bool
	Refresh refresh.Result
}

// AccessDeps captures access-token flow dependencies.
type AccessDeps struct {
	Now        func() time.Time
	Store      SessionStore
	Refresh    func(ctx context.Context, refreshToken string) refresh.Result
	SessionTTL time.Duration
	Warn       func(string, ...any)
}

// ApplyRefresh folds a refresh outcome into tok and reports whether tok changed.
//
// Success replaces the credentials and clears the error sentinel. A transient
// failure leaves tok untouched. A terminal failure wipes the credentials and
// records RefreshAccessTokenError, or SessionExpired when there was no refresh
// token to present.
func ApplyRefresh(tok *session.Token, res refresh.Result, now time.Time) bool {
	if tok == nil {
		return false
	}
	switch res.Kind {
	case refresh.FailureNone:
		tok.AccessToken = res.AccessToken
		tok.AccessTokenExpiresAtMs = res.AccessTokenExpiresAtMs
		if res.RefreshToken != "" {
			tok.RefreshToken = res.RefreshToken
		}
		tok.LastError = session.ErrorNone
		tok.UpdatedAtMs = now.UnixMilli()
		return true
	case refresh.FailureTerminal:
		if errors.Is(res.Err, refresh.ErrNoRefreshToken) {
			tok.Clear(session.ErrorSessionExpired)
		} else {
			tok.Clear(session.ErrorRefreshAccessToken)
		}
		tok.UpdatedAtMs = now.UnixMilli()
		return true
	default:
		return false
	}
}

// RunAccessToken returns a fresh access token for sessionID, refreshing through
// deps.Refresh when the stored one is stale.
func RunAccessToken(ctx context.Context, sessionID string, deps AccessDeps) AccessResult {
	tok, err := deps.Store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return AccessResult{Failure: AccessFailureNotFound, Err: err}
		}
		return AccessResult{Failure: AccessFailureStore, Err: err}
	}

	now := deps.Now()
	nowMs := now.UnixMilli()

	if tok.HasError() {
		return AccessResult{Failure: AccessFailureInvalid, Token: tok}
	}
	if token.IsFresh(tok, nowMs) {
		return AccessResult{AccessToken: tok.AccessToken, Token: tok}
	}

	if tok.RefreshToken == "" {
		ApplyRefresh(tok, refresh.Result{Kind: refresh.FailureTerminal, Err: refresh.ErrNoRefreshToken}, now)
		if err := deps.Store.Save(ctx, sessionID, tok, deps.SessionTTL); err != nil {
			return AccessResult{Failure: AccessFailureStore, Err: err, Token: tok}
		}
		return AccessResult{Failure: AccessFailureExpired, Err: refresh.ErrNoRefreshToken, Token: tok}
	}

	presented := tok.RefreshToken
	res := deps.Refresh(ctx, presented)
	now = deps.Now()

	switch res.Kind {
	case refresh.FailureNone:
		ApplyRefresh(tok, res, now)
		if err := deps.Store.Save(ctx, sessionID, tok, deps.SessionTTL); err != nil {
			return AccessResult{Failure: AccessFailureStore, Err: err, Token: tok, Refresh: res}
		}
		return AccessResult{AccessToken: tok.AccessToken, Token: tok, Refreshed: true, Refresh: res}

	case refresh.FailureTerminal:
		if current, ok := rotatedElsewhere(ctx, sessionID, presented, deps); ok {
			if token.IsStillValid(current, now.UnixMilli()) {
				return AccessResult{AccessToken: current.AccessToken, Token: current, Refresh: res}
			}
			return AccessResult{Failure: AccessFailureUnavailable, Err: res.Err, Token: current, Refresh: res}
		}
		ApplyRefresh(tok, res, now)
		if err := deps.Store.Save(ctx, sessionID, tok, deps.SessionTTL); err != nil {
			return AccessResult{Failure: AccessFailureStore, Err: err, Token: tok, Refresh: res}
		}
		return AccessResult{Failure: AccessFailureRejected, Err: res.Err, Token: tok, Refresh: res}

	default:
		if token.IsStillValid(tok, now.UnixMilli()) {
			return AccessResult{AccessToken: tok.AccessToken, Token: tok, Stale: true, Refresh: res}
		}
		return AccessResult{Failure: AccessFailureUnavailable, Err: res.Err, Token: tok, Refresh: res}
	}
}

// rotatedElsewhere reports whether another request already replaced the refresh
// token that was just rejected. A rejection of a superseded token must not
// destroy the session that superseded it.
func rotatedElsewhere(ctx context.Context, sessionID, presented string, deps AccessDeps) (*session.Token, bool) {
	current, err := deps.Store.Get(ctx, sessionID)
	if err != nil {
		if deps.Warn != nil && !errors.Is(err, session.ErrNotFound) {
			deps.Warn("goSession: re-reading session after rejected refresh failed", "error", err)
		}
		return nil, false
	}
	if current.HasError() || current.RefreshToken == "" || current.RefreshToken == presented {
		return nil, false
	}
	return current, true
}
