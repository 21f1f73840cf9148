package token

import (
	"fmt"

	"github.com/MrEthical07/goSession/session"
)

// State is the validity verdict for a session token.
type State uint8

const (
	// StateInvalid means the session cannot be used or recovered.
	StateInvalid State = iota
	// StateRecoverable means the access token is stale but a refresh token exists.
	StateRecoverable
	// StateUsable means the access token is fresh.
	StateUsable
)

// String returns "invalid", "recoverable" or "usable".
func (s State) String() string {
	switch s {
	case StateUsable:
		return "usable"
	case StateRecoverable:
		return "recoverable"
	case StateInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Admissible reports whether a request carrying this state may proceed.
func (s State) Admissible() bool {
	return s == StateUsable || s == StateRecoverable
}

// Classify derives the state of tok at nowMs. A recorded error sentinel always
// yields [StateInvalid], even if the access token would otherwise be fresh.
func Classify(tok *session.Token, nowMs int64) State {
	if tok == nil {
		return StateInvalid
	}
	if tok.LastError != session.ErrorNone {
		return StateInvalid
	}
	if IsFresh(tok, nowMs) {
		return StateUsable
	}
	if tok.RefreshToken != "" {
		return StateRecoverable
	}
	return StateInvalid
}

// IsFresh reports whether the access token expires more than [Skew] after nowMs.
func IsFresh(tok *session.Token, nowMs int64) bool {
	exp, ok := accessExpiry(tok)
	return ok && exp > nowMs+Skew.Milliseconds()
}

// IsStillValid reports whether the access token has not yet expired at nowMs,
// ignoring [Skew]. Only transient refresh failures consult it.
func IsStillValid(tok *session.Token, nowMs int64) bool {
	exp, ok := accessExpiry(tok)
	return ok && exp > nowMs
}

func accessExpiry(tok *session.Token) (int64, bool) {
	if tok == nil || tok.AccessToken == "" {
		return 0, false
	}
	return ResolveExpiry(tok.AccessToken, tok.AccessTokenExpiresAtMs)
}
