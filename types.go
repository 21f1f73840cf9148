package goSession

import (
	"context"

	"github.com/MrEthical07/goSession/backend"
	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/refresh"
)

// Backend is the credential-issuing backend as seen by the engine.
// *backend.Client satisfies it.
type Backend interface {
	Login(ctx context.Context, identifier, password string) (refresh.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (refresh.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	Register(ctx context.Context, reg Registration) error
}

// Registration is a new account request forwarded to the backend.
type Registration = backend.Registration

// AuditEvent is one structured audit record.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the engine's async dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink drops audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink delivers audit events on a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes audit events as JSON lines.
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink writes audit events to a structured logger.
type SlogSink = internalaudit.SlogSink

// NewChannelSink creates a [ChannelSink] with the given buffer.
var NewChannelSink = internalaudit.NewChannelSink

// NewJSONWriterSink creates a [JSONWriterSink].
var NewJSONWriterSink = internalaudit.NewJSONWriterSink

// NewSlogSink creates a [SlogSink]. A nil logger uses slog.Default().
var NewSlogSink = internalaudit.NewSlogSink
