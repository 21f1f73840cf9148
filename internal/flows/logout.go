package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/goSession/session"
)

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Store  SessionStore
	Revoke func(ctx context.Context, refreshToken string) error
	Warn   func(string, ...any)
}

// LogoutResult reports what a logout did.
type LogoutResult struct {
	Found   bool
	Revoked bool
	Err     error
}

// RunLogout revokes the session's refresh token on the backend (best effort) and
// deletes the record. Logging out an unknown session succeeds.
func RunLogout(ctx context.Context, sessionID string, deps LogoutDeps) LogoutResult {
	var out LogoutResult

	tok, err := deps.Store.Get(ctx, sessionID)
	switch {
	case err == nil:
		out.Found = true
		if tok.RefreshToken != "" && deps.Revoke != nil {
			if err := deps.Revoke(ctx, tok.RefreshToken); err != nil {
				if deps.Warn != nil {
					deps.Warn("goSession: backend logout failed", "error", err)
				}
			} else {
				out.Revoked = true
			}
		}
	case errors.Is(err, session.ErrNotFound):
	default:
		// Still attempt the delete; a corrupt record must not outlive logout.
		if deps.Warn != nil {
			deps.Warn("goSession: reading session for logout failed", "error", err)
		}
	}

	out.Err = deps.Store.Delete(ctx, sessionID)
	return out
}
