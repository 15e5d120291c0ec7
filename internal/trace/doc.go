// Package trace records committed tick snapshots to SQLite.
//
// The recorder hangs off the engine's tick observer hook: every commit
// appends the tag plus the variable and output environments under the
// run's correlation token. Traces serve observability and deterministic
// replay comparison; the compiled IR itself is never persisted.
package trace
