// Package ir defines the frozen intermediate representation of a reactive
// dataflow pipeline: nodes, ports, shared variables, reactions with typed
// expression trees, and explicit edges.
//
// The IR is built once per compile by internal/compiler and then treated as
// read-only by every analysis pass and by the scheduler. Adjacency is stored
// by identifier (node ids, port names, variable names), never by ownership
// pointers, so cyclic graphs are representable without reference cycles.
package ir
