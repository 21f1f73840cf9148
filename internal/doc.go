// Package internal holds the engine's private building blocks. Nothing here
// is part of the public goSession API.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: login, access-token and logout orchestration over the store and coordinator
//   - rate: Redis fixed-window retry throttle for transient refresh failures
//
// # What this package must NOT do
//
//   - Export types that appear in the public goSession API.
//   - Be imported by any package outside the goSession module.
package internal
