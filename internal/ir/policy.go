package ir

import (
	"fmt"
	"strings"
)

// Intent is a pending write to a variable, buffered during the propose
// phase and collapsed by the variable's write policy during resolve.
type Intent struct {
	Variable string
	Producer NodeID
	Reaction string
	Value    Value
}

// WritePolicy collapses the intents targeting one variable in one tick
// into a single value. Policies must be deterministic under permutation
// of the intent slice, either by being commutative (monoidal merges) or
// by carrying an explicit tiebreak (LWW priority).
type WritePolicy interface {
	// Name identifies the policy in diagnostics and reports.
	Name() string
	// Monotone reports whether repeated merges only move values up a
	// lattice. Only monotone policies admit constructive cycles.
	Monotone() bool
	// Height is the bounded lattice height used to cap constructive
	// iteration. Zero means unbounded or not applicable.
	Height() int
	// Merge collapses the intents. ABSENT intents contribute the merge
	// identity and are dropped before collapsing.
	Merge(variable string, intents []Intent) (Value, error)
}

// WritePolicyError is the runtime error for a merge forbidden by the
// variable's policy. It aborts the current tick; committed state from
// prior ticks is untouched.
type WritePolicyError struct {
	Variable  string
	Producers []NodeID
}

// Error implements the error interface.
func (e *WritePolicyError) Error() string {
	names := make([]string, len(e.Producers))
	for i, p := range e.Producers {
		names[i] = string(p)
	}
	return fmt.Sprintf("write policy violation on %q: multiple writers [%s]",
		e.Variable, strings.Join(names, ", "))
}

// dropAbsent filters ABSENT intents: they carry "no value this tick" and
// contribute the identity of whatever merge follows.
func dropAbsent(intents []Intent) []Intent {
	kept := intents[:0:0]
	for _, in := range intents {
		if !IsAbsent(in.Value) {
			kept = append(kept, in)
		}
	}
	return kept
}

// ErrorPolicy forbids more than one concrete writer per tick.
type ErrorPolicy struct{}

// Name implements WritePolicy.
func (ErrorPolicy) Name() string { return "error" }

// Monotone implements WritePolicy.
func (ErrorPolicy) Monotone() bool { return false }

// Height implements WritePolicy.
func (ErrorPolicy) Height() int { return 0 }

// Merge implements WritePolicy.
func (ErrorPolicy) Merge(variable string, intents []Intent) (Value, error) {
	intents = dropAbsent(intents)
	if len(intents) == 0 {
		return Absent, nil
	}
	if len(intents) > 1 {
		producers := make([]NodeID, len(intents))
		for i, in := range intents {
			producers[i] = in.Producer
		}
		return nil, &WritePolicyError{Variable: variable, Producers: producers}
	}
	return intents[0].Value, nil
}

// LWWPolicy picks the writer latest in the producer priority list.
// Producers missing from the list rank lowest; among equals the intent
// proposed last wins, which is deterministic because propose order is
// the fixed topological schedule.
type LWWPolicy struct {
	Priority []NodeID
}

// Name implements WritePolicy.
func (*LWWPolicy) Name() string { return "lww" }

// Monotone implements WritePolicy.
func (*LWWPolicy) Monotone() bool { return false }

// Height implements WritePolicy.
func (*LWWPolicy) Height() int { return 0 }

// HasTies reports whether the priority list fails to totally order the
// given producers. The write-conflict pass uses this for WRITE002.
func (p *LWWPolicy) HasTies(producers []NodeID) bool {
	seen := make(map[int]bool, len(producers))
	for _, prod := range producers {
		rank := p.rank(prod)
		if seen[rank] {
			return true
		}
		seen[rank] = true
	}
	return false
}

func (p *LWWPolicy) rank(producer NodeID) int {
	for i, id := range p.Priority {
		if id == producer {
			return i
		}
	}
	return -1
}

// Merge implements WritePolicy.
func (p *LWWPolicy) Merge(variable string, intents []Intent) (Value, error) {
	intents = dropAbsent(intents)
	if len(intents) == 0 {
		return Absent, nil
	}
	best := intents[0]
	bestRank := p.rank(best.Producer)
	for _, in := range intents[1:] {
		if r := p.rank(in.Producer); r >= bestRank {
			best, bestRank = in, r
		}
	}
	return best.Value, nil
}

// MergeOp enumerates the built-in monoidal merges.
type MergeOp int

const (
	MergeSum MergeOp = iota
	MergeMax
	MergeMin
)

func (op MergeOp) String() string {
	switch op {
	case MergeSum:
		return "sum"
	case MergeMax:
		return "max"
	default:
		return "min"
	}
}

// MergePolicy merges any number of writers through a commutative monoid.
// ABSENT intents are the monoid identity. HeightBound caps constructive
// fixed-point iteration for cycles through the variable.
type MergePolicy struct {
	Op          MergeOp
	HeightBound int
}

// Name implements WritePolicy.
func (p *MergePolicy) Name() string { return p.Op.String() }

// Monotone implements WritePolicy.
func (*MergePolicy) Monotone() bool { return true }

// Height implements WritePolicy.
func (p *MergePolicy) Height() int { return p.HeightBound }

// Merge implements WritePolicy.
func (p *MergePolicy) Merge(variable string, intents []Intent) (Value, error) {
	intents = dropAbsent(intents)
	if len(intents) == 0 {
		return Absent, nil
	}
	acc := intents[0].Value
	for _, in := range intents[1:] {
		merged, err := p.combine(acc, in.Value)
		if err != nil {
			return nil, fmt.Errorf("merge %q: %w", variable, err)
		}
		acc = merged
	}
	return acc, nil
}

func (p *MergePolicy) combine(a, b Value) (Value, error) {
	ai, aInt := a.(Int)
	bi, bInt := b.(Int)
	if aInt && bInt {
		switch p.Op {
		case MergeSum:
			return ai + bi, nil
		case MergeMax:
			return Int(max(int64(ai), int64(bi))), nil
		default:
			return Int(min(int64(ai), int64(bi))), nil
		}
	}
	af, aNum := AsFloat(a)
	bf, bNum := AsFloat(b)
	if !aNum || !bNum {
		return nil, fmt.Errorf("%s merge over non-numeric values %s and %s",
			p.Op, FormatValue(a), FormatValue(b))
	}
	switch p.Op {
	case MergeSum:
		return Float(af + bf), nil
	case MergeMax:
		return Float(max(af, bf)), nil
	default:
		return Float(min(af, bf)), nil
	}
}

// ParsePolicy maps a surface policy name to a WritePolicy.
// LWW priority and merge heights are supplied by the descriptor.
func ParsePolicy(name string, priority []NodeID, height int) (WritePolicy, error) {
	switch name {
	case "error", "":
		return ErrorPolicy{}, nil
	case "lww":
		return &LWWPolicy{Priority: priority}, nil
	case "sum":
		return &MergePolicy{Op: MergeSum, HeightBound: height}, nil
	case "max":
		return &MergePolicy{Op: MergeMax, HeightBound: height}, nil
	case "min":
		return &MergePolicy{Op: MergeMin, HeightBound: height}, nil
	default:
		return nil, fmt.Errorf("unknown write policy %q", name)
	}
}
