// Package goSession keeps server-side sessions for a web frontend whose
// credentials are issued by a separate backend: a short-lived JWT access
// token and a rotating opaque refresh token.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// goSession is the public surface. It exposes [Engine], [Builder], [Config]
// and value types (MetricsSnapshot, AuditEvent). Flow orchestration, retry
// throttling and audit dispatch live under internal/. The token record and its
// stores live in session, state classification in token, refresh
// coordination in refresh and the HTTP client in backend.
//
// # What this package must NOT do
//
//   - Import middleware or the metrics exporters (they import goSession).
//   - Perform I/O outside of Engine methods (Build only wires dependencies).
//   - Log access or refresh token values.
//
// # Performance contract
//
// State is the gate's hot path: one store read and no backend call.
// AccessToken performs at most one backend refresh per refresh token, however
// many requests ask concurrently.
package goSession
