// Package engine executes a compiled pipeline under the deterministic
// three-phase tick scheduler: propose buffers write intents against a
// read-only committed environment, resolve collapses them through each
// variable's write policy, and commit publishes the results atomically.
// Algebraic SCCs iterate an inner microstep loop to a fixed point under
// a bounded budget; superdense tags (t, µ) order every scheduling point.
//
// Scheduling is single-threaded cooperative within one pipeline
// instance. Reactions run to completion and may not assume concurrency
// with any other reaction of the same pipeline; the only boundary where
// control leaves the engine is between ticks.
package engine
