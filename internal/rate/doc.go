// Package rate provides the Redis-backed retry throttle applied to refresh keys
// after transient backend failures.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Keys are
// "gsr:<refresh key>", where the refresh key is already a digest of the token.
// A success or terminal failure deletes the counter.
//
// # What this package must NOT do
//
//   - Decide what counts as transient (that is refresh.ClassifyError).
//   - Be imported outside the goSession module.
package rate
