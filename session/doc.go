// Package session defines the session token record consulted by the gate and the
// stores that persist it between requests.
//
// # Token record
//
// A [Token] holds the access token, its authoritative expiry in epoch milliseconds,
// the refresh token and the last refresh error sentinel. Absent fields are the zero
// value: an empty string or a zero expiry.
//
// # Encoding
//
// Records are serialized with a compact versioned binary format (default) or CBOR.
// The binary encoder is append-only: new versions add fields but never reinterpret
// old ones.
//
// # Architecture boundaries
//
// This package owns the [Token] model, its codecs and the [Store] implementations
// ([RedisStore], [MemoryStore]). It does NOT classify token state, talk to the
// credential backend, or decide admission. Those responsibilities belong to the
// token, refresh and middleware packages.
//
// # What this package must NOT do
//
//   - Import goSession, token, refresh or middleware (no upward imports).
//   - Make admission decisions.
//   - Log token values.
package session
