// Package token computes access-token expiry and classifies a session token into
// the usable, recoverable or invalid state consulted by the request gate.
//
// Everything here is pure: no I/O, no clocks read implicitly, no shared state.
// Callers pass the current time in epoch milliseconds.
//
// # Expiry resolution
//
// An explicit expiry recorded alongside the token always wins, including a
// negative one, which is already past. Zero means none was recorded and the
// unverified "exp" claim of the access token is used. Signature verification is
// the credential backend's job; this package only reads the timestamp.
//
// # What this package must NOT do
//
//   - Perform network calls or refreshes.
//   - Mutate the token it classifies.
package token
