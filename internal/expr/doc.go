// Package expr evaluates the expression trees defined in internal/ir.
//
// Two evaluators are provided. The concrete evaluator maps a tree plus
// an environment to a runtime value, with ABSENT propagating through
// arithmetic. The three-valued evaluator runs over the constructive
// domain {⊥, ABSENT, present(v)} and is total and monotone in the order
// ⊥ ⊑ ABSENT, ⊥ ⊑ present(v); the causality pass iterates it to a least
// fixed point. The ⊥ marker never leaves this package and internal/compiler.
package expr
