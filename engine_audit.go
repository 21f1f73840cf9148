package goSession

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/signature"
)

const (
	auditEventLoginSuccess     = "login_success"
	auditEventLoginFailure     = "login_failure"
	auditEventLogout           = "logout"
	auditEventRegisterSuccess  = "register_success"
	auditEventRegisterFailure  = "register_failure"
	auditEventRefreshSuccess   = "refresh_success"
	auditEventRefreshTransient = "refresh_transient"
	auditEventRefreshTerminal  = "refresh_terminal"
	auditEventRefreshThrottled = "refresh_throttled"
	auditEventSessionExpired   = "session_expired"
	auditEventSessionRejected  = "session_rejected"
)

// AuditErrorCode is the stable error label recorded on failed audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrRegistration       AuditErrorCode = "registration_rejected"
	auditErrSessionExpired     AuditErrorCode = "session_expired"
	auditErrRefreshRejected    AuditErrorCode = "refresh_rejected"
	auditErrThrottled          AuditErrorCode = "throttled"
	auditErrTimeout            AuditErrorCode = "timeout"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrStore              AuditErrorCode = "store_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	sessionID string,
	identifier string,
	episodeID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		EventType: eventType,
		SessionID: sessionID,
		ClientKey: signature.ClientKey(identifier),
		EpisodeID: episodeID,
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

// refreshHooks feeds coordinator episode events into metrics and audit.
// Episodes are keyed by refresh token, so these events carry no session ID.
func (e *Engine) refreshHooks() refresh.Hooks {
	return refresh.Hooks{
		OnStart: func(string) {
			e.metricInc(MetricRefreshStarted)
		},
		OnShared: func(string) {
			e.metricInc(MetricRefreshShared)
		},
		OnThrottled: func(id string) {
			e.metricInc(MetricRefreshThrottled)
			e.emitAudit(context.Background(), auditEventRefreshThrottled, false, "", "", id, refresh.ErrRetryThrottled, nil)
		},
		OnDetached: func() {
			e.metricInc(MetricRefreshDetached)
		},
		OnSettle: func(res refresh.Result, elapsed time.Duration) {
			if e.metrics != nil {
				e.metrics.Observe(MetricRefreshLatency, elapsed)
			}
			if errors.Is(res.Err, refresh.ErrRetryThrottled) {
				return
			}

			eventType := auditEventRefreshSuccess
			switch res.Kind {
			case refresh.FailureNone:
				e.metricInc(MetricRefreshSuccess)
			case refresh.FailureTerminal:
				e.metricInc(MetricRefreshTerminal)
				eventType = auditEventRefreshTerminal
			default:
				e.metricInc(MetricRefreshTransient)
				eventType = auditEventRefreshTransient
			}
			e.emitAudit(context.Background(), eventType, res.OK(), "", "", res.EpisodeID, res.Err, func() map[string]string {
				m := map[string]string{"elapsed_ms": strconv.FormatInt(elapsed.Milliseconds(), 10)}
				if res.Status != 0 {
					m["status"] = strconv.Itoa(res.Status)
				}
				return m
			})
		},
	}
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrLoginRejected):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrRegistrationRejected):
		return auditErrRegistration
	case errors.Is(err, ErrSessionExpired), errors.Is(err, refresh.ErrNoRefreshToken):
		return auditErrSessionExpired
	case errors.Is(err, refresh.ErrRetryThrottled):
		return auditErrThrottled
	case errors.Is(err, context.DeadlineExceeded):
		return auditErrTimeout
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrStore
	case errors.Is(err, ErrBackendUnavailable), errors.Is(err, ErrRefreshUnavailable):
		return auditErrUnavailable
	}

	switch kind, _ := refresh.ClassifyError(err); kind {
	case refresh.FailureTerminal:
		return auditErrRefreshRejected
	case refresh.FailureTransient:
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
