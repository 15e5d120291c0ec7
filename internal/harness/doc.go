// Package harness runs conformance scenarios against compiled
// pipelines: a YAML scenario names a CUE pipeline, a tick count and the
// expected committed values per tick; the harness compiles, executes
// and asserts. Golden files capture full traces for regression
// comparison.
package harness
