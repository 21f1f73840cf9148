// Package flows contains the orchestrators behind every Engine operation.
//
// Each flow function (RunLogin, RunAccessToken, RunLogout) accepts a typed
// dependency struct and returns a result value without side effects beyond
// those dependencies. The Engine builds the dependency structs once and stays
// thin.
//
// # Architecture boundaries
//
// Flow functions coordinate the session store, the backend client and the
// refresh coordinator. They do NOT own any of these resources; ownership stays
// with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goSession (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency interfaces.
package flows
