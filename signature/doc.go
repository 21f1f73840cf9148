// Package signature derives the per-identity client key and HMAC signature sent
// to the credential backend on authentication requests, so the backend can rate
// limit by identity behind a shared proxy address.
//
// Both functions are pure. Without a configured secret the client key is still
// sent but unsigned, which the backend ignores.
package signature
