// Package refresh exchanges refresh tokens for new token pairs while guaranteeing
// at most one in-flight exchange per refresh token in this process.
//
// # Episodes
//
// Concurrent [Coordinator.Refresh] calls presenting the same refresh token attach
// to one episode and all observe its single outcome. The episode is removed from
// the table in the same critical section that delivers its outcome, so a call made
// after settlement always starts a new episode. Episodes are keyed by the SHA-256
// digest of the token, never by the raw value.
//
// # Failure classification
//
// Failures are either transient (network errors, timeouts, 429, 5xx) or terminal
// (every other backend status, or no refresh token at all). See [ClassifyError].
// Refresh never returns a Go error; the classified [Result] carries it.
//
// # Cancellation
//
// The backend call runs detached from the caller's context and is bounded by the
// coordinator's timeout. A caller whose context ends stops waiting and receives a
// transient result; the call keeps running for the other waiters.
//
// # What this package must NOT do
//
//   - Import goSession or middleware.
//   - Mutate session records. Applying a [Result] is the session layer's job.
//   - Coordinate across processes.
package refresh
