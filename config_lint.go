package goSession

import (
	"time"

	"github.com/MrEthical07/goSession/token"
)

// LintSeverity ranks a lint finding.
type LintSeverity int

const (
	// LintInfo marks a setting worth knowing about.
	LintInfo LintSeverity = iota
	// LintWarn marks a setting that is valid but likely wrong in production.
	LintWarn
)

// String returns "info" or "warn".
func (s LintSeverity) String() string {
	if s == LintWarn {
		return "warn"
	}
	return "info"
}

// LintWarning is one advisory finding about a valid configuration.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the set of findings returned by [Config.Lint].
type LintResult []LintWarning

// Codes returns the finding codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, 0, len(r))
	for _, w := range r {
		out = append(out, w.Code)
	}
	return out
}

// AtLeast returns the findings with severity >= min.
func (r LintResult) AtLeast(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// Lint reports settings that pass [Config.Validate] but are likely
// misconfigurations. It never fails.
func (c *Config) Lint() LintResult {
	var ws LintResult
	add := func(code string, sev LintSeverity, msg string) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	if c.Signature.Secret == "" {
		add("signature_secret_empty", LintWarn,
			"client keys are sent unsigned; the backend cannot trust forwarded rate-limit identities")
	}
	if !c.Session.CookieSecure {
		add("cookie_insecure", LintWarn, "session cookie is sent over plain HTTP")
	}
	if c.Session.SlidingTTL > c.Session.TTL {
		add("sliding_ttl_exceeds_ttl", LintWarn,
			"sliding expiry extends sessions beyond the configured TTL")
	}
	if c.Session.TTL < token.FallbackLifetime {
		add("session_ttl_short", LintWarn,
			"sessions expire before a typical access token does")
	}
	if c.Backend.Timeout < c.Refresh.Timeout {
		add("refresh_timeout_ineffective", LintInfo,
			"backend client timeout ("+c.Backend.Timeout.String()+") fires before the refresh timeout")
	}
	if !c.Refresh.RetryThrottle {
		add("retry_throttle_disabled", LintInfo,
			"transient refresh failures are retried on every request")
	} else if c.Refresh.RetryCooldown > 5*time.Minute {
		add("retry_cooldown_long", LintInfo,
			"a flapping backend locks sessions out of refresh for a long window")
	}
	if c.Audit.Enabled && c.Audit.DropIfFull {
		add("audit_may_drop", LintInfo, "audit events are dropped when the buffer is full")
	}

	return ws
}
