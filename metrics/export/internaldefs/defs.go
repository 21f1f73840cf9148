package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goSession.MetricLoginSuccess, Name: "gosession_login_success_total", Help: "Successful logins."},
	{ID: goSession.MetricLoginFailure, Name: "gosession_login_failure_total", Help: "Rejected or failed logins."},
	{ID: goSession.MetricLogout, Name: "gosession_logout_total", Help: "Logouts of existing sessions."},
	{ID: goSession.MetricGateAdmit, Name: "gosession_gate_admit_total", Help: "Requests admitted by the session gate."},
	{ID: goSession.MetricGateRedirect, Name: "gosession_gate_redirect_total", Help: "Page requests redirected by the session gate."},
	{ID: goSession.MetricGateUnauthorized, Name: "gosession_gate_unauthorized_total", Help: "API requests rejected with 401 by the session gate."},
	{ID: goSession.MetricRefreshStarted, Name: "gosession_refresh_started_total", Help: "Refresh episodes started."},
	{ID: goSession.MetricRefreshShared, Name: "gosession_refresh_shared_total", Help: "Callers that joined an in-flight refresh episode."},
	{ID: goSession.MetricRefreshSuccess, Name: "gosession_refresh_success_total", Help: "Refresh episodes that produced a new token pair."},
	{ID: goSession.MetricRefreshTransient, Name: "gosession_refresh_transient_total", Help: "Refresh episodes that failed transiently."},
	{ID: goSession.MetricRefreshTerminal, Name: "gosession_refresh_terminal_total", Help: "Refresh episodes rejected by the backend."},
	{ID: goSession.MetricRefreshThrottled, Name: "gosession_refresh_throttled_total", Help: "Refresh episodes denied by the retry throttle."},
	{ID: goSession.MetricRefreshDetached, Name: "gosession_refresh_detached_total", Help: "Callers that stopped waiting on a refresh episode."},
	{ID: goSession.MetricSessionExpired, Name: "gosession_session_expired_total", Help: "Sessions that needed a refresh without a refresh token."},
	{ID: goSession.MetricStaleTokenServed, Name: "gosession_stale_token_served_total", Help: "Still-valid access tokens served after a transient refresh failure."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricRefreshLatency, Name: "gosession_refresh_latency_seconds", Help: "Backend refresh latency per episode."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The engine
// keeps one extra unbounded bucket.
var HistogramUpperBounds = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// HistogramBoundSuffix names each bucket, including +Inf, for exporters that
// publish buckets as separate instruments.
var HistogramBoundSuffix = []string{
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the engine's bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
