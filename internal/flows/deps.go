package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goSession/session"
)

// SessionStore is the subset of session.Store the flows need.
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (*session.Token, error)
	Save(ctx context.Context, sessionID string, t *session.Token, ttl time.Duration) error
	Delete(ctx context.Context, sessionID string) error
}

// Deps groups flow dependency sets. The root engine builds this once and
// delegates request methods to the matching flow implementation.
type Deps struct {
	Login    LoginDeps
	Register RegisterDeps
	Access   AccessDeps
	Logout   LogoutDeps
}
