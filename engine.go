package goSession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/token"
)

// Engine owns the session store, the refresh coordinator and the backend
// client. It is safe for concurrent use once built.
type Engine struct {
	config      Config
	store       session.Store
	backend     Backend
	coordinator *refresh.Coordinator
	limiter     *rate.Limiter

	audit   *internalaudit.Dispatcher
	metrics *Metrics
	logger  *slog.Logger

	now          func() time.Time
	newSessionID func() string

	flowDeps flows.Deps
}

func (e *Engine) initFlowDeps() {
	warn := func(msg string, args ...any) { e.logger.Warn(msg, args...) }

	e.flowDeps = flows.Deps{
		Login: flows.LoginDeps{
			Now:          e.now,
			Login:        e.backend.Login,
			NewSessionID: e.newSessionID,
			Store:        e.store,
			SessionTTL:   e.config.Session.TTL,
		},
		Register: flows.RegisterDeps{
			Register: e.backend.Register,
		},
		Access: flows.AccessDeps{
			Now:        e.now,
			Store:      e.store,
			Refresh:    e.coordinator.Refresh,
			SessionTTL: e.config.Session.TTL,
			Warn:       warn,
		},
		Logout: flows.LogoutDeps{
			Store:  e.store,
			Revoke: e.backend.Logout,
			Warn:   warn,
		},
	}
}

/*
====================================
LIFECYCLE
====================================
*/

// Close flushes and stops the audit dispatcher. It is safe to call more than once.
func (e *Engine) Close() {
	if e == nil || e.audit == nil {
		return
	}
	e.audit.Close()
}

// Config returns a copy of the validated configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return defaultConfig()
	}
	return cloneConfig(e.config)
}

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time {
	if e == nil || e.now == nil {
		return time.Now()
	}
	return e.now()
}

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger {
	if e == nil || e.logger == nil {
		return slog.Default()
	}
	return e.logger
}

// PendingRefreshes reports the number of refresh episodes in flight.
func (e *Engine) PendingRefreshes() int {
	if e == nil || e.coordinator == nil {
		return 0
	}
	return e.coordinator.Pending()
}

// AuditDropped reports how many audit events were dropped because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Metrics returns the engine's counters.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

// MetricsSnapshot returns a point-in-time copy of every counter and histogram.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e != nil && e.metrics != nil {
		e.metrics.Inc(id)
	}
}

/*
====================================
SESSION OPERATIONS
====================================
*/

// Login authenticates identifier/password against the backend and creates a
// session. It returns the new session ID.
func (e *Engine) Login(ctx context.Context, identifier, password string) (string, error) {
	if e == nil || e.store == nil {
		return "", ErrEngineNotReady
	}

	res := flows.RunLogin(ctx, identifier, password, e.flowDeps.Login)
	if res.Failure != flows.LoginFailureNone {
		e.metricInc(MetricLoginFailure)
		err := mapLoginFailure(res)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", identifier, "", err, nil)
		return "", err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, res.SessionID, res.Token.Identifier, "", nil, nil)
	return res.SessionID, nil
}

// Register creates an account on the backend. It does not log the new user in.
func (e *Engine) Register(ctx context.Context, reg Registration) error {
	if e == nil || e.backend == nil {
		return ErrEngineNotReady
	}

	res := flows.RunRegister(ctx, reg, e.flowDeps.Register)
	if res.Failure != flows.RegisterFailureNone {
		err := mapRegisterFailure(res)
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", res.Email, "", err, nil)
		return err
	}

	e.emitAudit(ctx, auditEventRegisterSuccess, true, "", res.Email, "", nil, nil)
	return nil
}

// Session loads the stored record for sessionID without refreshing it.
func (e *Engine) Session(ctx context.Context, sessionID string) (*session.Token, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	tok, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return tok, nil
}

// State classifies the session for the gate. Missing sessions and store
// failures are Invalid.
func (e *Engine) State(ctx context.Context, sessionID string) token.State {
	tok, err := e.Session(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) && e != nil {
			e.logger.Warn("goSession: loading session for gate failed", "error", err)
		}
		return token.StateInvalid
	}
	return token.Classify(tok, e.now().UnixMilli())
}

// AccessToken returns a currently usable access token for sessionID,
// refreshing it through the coordinator when the stored one is stale.
//
// Concurrent calls holding the same refresh token share a single backend
// exchange. A transient refresh failure falls back to the stored token while
// it is still valid; a terminal one clears the session's credentials.
func (e *Engine) AccessToken(ctx context.Context, sessionID string) (string, error) {
	if e == nil || e.store == nil {
		return "", ErrEngineNotReady
	}
	if sessionID == "" {
		return "", ErrSessionNotFound
	}

	res := flows.RunAccessToken(ctx, sessionID, e.flowDeps.Access)
	identifier := ""
	if res.Token != nil {
		identifier = res.Token.Identifier
	}

	if res.Stale {
		e.metricInc(MetricStaleTokenServed)
		e.logger.Warn("goSession: serving still-valid token after transient refresh failure",
			"episode", res.Refresh.EpisodeID,
			"error", res.Refresh.Err,
		)
	}

	switch res.Failure {
	case flows.AccessFailureNone:
		return res.AccessToken, nil
	case flows.AccessFailureExpired:
		e.metricInc(MetricSessionExpired)
		e.emitAudit(ctx, auditEventSessionExpired, false, sessionID, identifier, "", ErrSessionExpired, nil)
	case flows.AccessFailureRejected:
		e.emitAudit(ctx, auditEventSessionRejected, false, sessionID, identifier, res.Refresh.EpisodeID, res.Err, nil)
	}
	return "", mapAccessFailure(res)
}

// Logout revokes the session's refresh token on the backend (best effort) and
// deletes the record. Logging out an unknown session is not an error.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if sessionID == "" {
		return nil
	}

	res := flows.RunLogout(ctx, sessionID, e.flowDeps.Logout)
	if res.Err != nil {
		return mapStoreError(res.Err)
	}
	if res.Found {
		e.metricInc(MetricLogout)
		e.emitAudit(ctx, auditEventLogout, true, sessionID, "", "", nil, func() map[string]string {
			return map[string]string{"revoked": fmt.Sprint(res.Revoked)}
		})
	}
	return nil
}
