// Package backend is the HTTP client for the credential-issuing backend: login,
// refresh and logout.
//
// Non-2xx responses surface as [*StatusError], whose StatusCode method lets the
// refresh package classify them. Transport failures are returned unwrapped from
// net/http so they classify as transient.
//
// Every call runs inside an OpenTelemetry client span.
package backend
