package goSession

import (
	"context"

	"github.com/MrEthical07/goSession/token"
)

type sessionIDContextKey struct{}
type sessionStateContextKey struct{}

// WithSessionID attaches the admitted session ID to ctx. The gate middleware
// sets it on every admitted request that carried a session.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDContextKey{}, sessionID)
}

// SessionIDFromContext returns the session ID attached by [WithSessionID].
func SessionIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	sid, _ := ctx.Value(sessionIDContextKey{}).(string)
	return sid, sid != ""
}

// WithSessionState attaches the gate's classification of the session to ctx.
func WithSessionState(ctx context.Context, state token.State) context.Context {
	return context.WithValue(ctx, sessionStateContextKey{}, state)
}

// SessionStateFromContext returns the state attached by [WithSessionState], or
// StateInvalid when none was attached.
func SessionStateFromContext(ctx context.Context) token.State {
	if ctx == nil {
		return token.StateInvalid
	}
	state, ok := ctx.Value(sessionStateContextKey{}).(token.State)
	if !ok {
		return token.StateInvalid
	}
	return state
}
