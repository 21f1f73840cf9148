// Package middleware exposes the session gate: HTTP middleware that admits,
// redirects or rejects requests based on the classified state of the caller's
// session.
//
// # Gate
//
//   - [Gate.Decide] computes a [Decision] value for a request. It never writes
//     a response.
//   - [Guard] translates decisions: admit, redirect to login (307 for GET and
//     HEAD, 303 otherwise), or JSON 401 under the API prefix.
//   - [RequireSession] admits usable and recoverable sessions for route-level
//     proxying. Handlers must still call Engine.AccessToken before any
//     outbound call.
//   - [RedirectAuthenticated] sends callers with a live session away from
//     login and register pages.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Admission is
// derived from token.Classify; refreshes happen in the engine, never here.
//
// # What this package must NOT do
//
//   - Call the refresh coordinator or the backend.
//   - Access Redis directly (Engine handles I/O).
//   - Redirect to a target that did not pass [ResolveSafeRedirectTarget].
package middleware
