package compiler

import (
	"fmt"

	"github.com/OdinManiac/regelum/internal/ir"
)

// Stable diagnostic codes. These are part of the public contract:
// tooling matches on them, so they never change meaning.
const (
	// Structural (STRUCT)
	CodeUnconnectedInput = "STRUCT001" // input neither connected nor defaulted
	CodeFanIn            = "STRUCT002" // input with more than one incoming edge

	// Types (TYPE)
	CodeTypeWidening = "TYPE001" // edge widens int -> float, or incompatible types

	// Write conflicts (WRITE)
	CodeErrorPolicyConflict = "WRITE001" // >1 writer under error policy
	CodeLWWAmbiguity        = "WRITE002" // LWW without a total producer order

	// Causality (CAUS)
	CodeCycleNonCore       = "CAUS001" // Raw node inside an algebraic cycle
	CodeCycleExtNoMonotone = "CAUS002" // Ext node without monotone contract in a cycle
	CodeNonConstructive    = "CAUS003" // fixed point does not determine every signal
	CodeCycleNonMonotone   = "CAUS004" // cycle through a non-monotone write policy

	// Initialization (INIT)
	CodeMissingInit      = "INIT001" // variable without initial value (strict)
	CodeMissingDelayInit = "INIT002" // delay buffer without default
	CodeReadBeforeWrite  = "INIT003" // no happens-before path initializing a read

	// Non-Zeno (ZEN)
	CodeMissingRank = "ZEN001" // self-dependent reaction without a well-founded rank

	// Synchronous dataflow (SDF)
	CodeRateInconsistent = "SDF001" // no positive integer firing vector

	// Continuous wrappers (CT)
	CodeContinuousNoDT    = "CT001" // dt input missing or without default
	CodeContinuousBadDT   = "CT002" // dt default not positive
	CodeContinuousNoPorts = "CT003" // u/state/y port convention violated
)

// Severity grades a diagnostic.
type Severity int

const (
	// SeverityInfo is advisory only.
	SeverityInfo Severity = iota
	// SeverityWarning does not block compilation.
	SeverityWarning
	// SeverityError blocks compilation.
	SeverityError
)

// String returns the surface name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return "info"
	}
}

// Diagnostic is one finding of the analysis pipeline.
type Diagnostic struct {
	Code     string   `json:"code"`
	Severity Severity `json:"-"`
	Message  string   `json:"message"`
	Location string   `json:"location,omitempty"` // offending node/reaction/variable
	Hint     string   `json:"hint,omitempty"`     // suggested fix
}

// String renders the diagnostic the way the report prints it.
func (d Diagnostic) String() string {
	s := fmt.Sprintf("[%s] %s: %s", d.Code, d.Severity, d.Message)
	if d.Location != "" {
		s += fmt.Sprintf(" (at %s)", d.Location)
	}
	if d.Hint != "" {
		s += fmt.Sprintf("\n    hint: %s", d.Hint)
	}
	return s
}

// Sink accumulates diagnostics so one compile surfaces every problem,
// not just the first. Severity is mode-dependent: best_effort demotes
// warnings to info, strict promotes the codes listed in promoted.
type Sink struct {
	mode        ir.Mode
	diagnostics []Diagnostic
}

// Codes strict mode promotes from warning to error.
var promoted = map[string]bool{
	CodeLWWAmbiguity: true,
	CodeMissingInit:  true,
}

// NewSink creates a sink grading severities for the given mode.
func NewSink(mode ir.Mode) *Sink {
	return &Sink{mode: mode}
}

// Error records an error diagnostic.
func (s *Sink) Error(code, message, location string) {
	s.add(Diagnostic{Code: code, Severity: SeverityError, Message: message, Location: location})
}

// Errorf records an error with a fix hint.
func (s *Sink) Errorf(code, message, location, hint string) {
	s.add(Diagnostic{Code: code, Severity: SeverityError, Message: message, Location: location, Hint: hint})
}

// Warning records a warning, graded by mode: promoted codes become
// errors under strict, and best_effort demotes to info.
func (s *Sink) Warning(code, message, location string) {
	s.Warningf(code, message, location, "")
}

// Warningf records a graded warning with a fix hint.
func (s *Sink) Warningf(code, message, location, hint string) {
	sev := SeverityWarning
	switch {
	case s.mode == ir.ModeStrict && promoted[code]:
		sev = SeverityError
	case s.mode == ir.ModeBestEffort:
		sev = SeverityInfo
	}
	s.add(Diagnostic{Code: code, Severity: sev, Message: message, Location: location, Hint: hint})
}

// Info records an advisory diagnostic.
func (s *Sink) Info(code, message, location string) {
	s.add(Diagnostic{Code: code, Severity: SeverityInfo, Message: message, Location: location})
}

func (s *Sink) add(d Diagnostic) {
	s.diagnostics = append(s.diagnostics, d)
}

// Diagnostics returns everything recorded so far, in emission order.
func (s *Sink) Diagnostics() []Diagnostic {
	return s.diagnostics
}

// HasErrors reports whether any recorded diagnostic is an error.
func (s *Sink) HasErrors() bool {
	for _, d := range s.diagnostics {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// CountBySeverity returns (errors, warnings, infos).
func (s *Sink) CountBySeverity() (errors, warnings, infos int) {
	for _, d := range s.diagnostics {
		switch d.Severity {
		case SeverityError:
			errors++
		case SeverityWarning:
			warnings++
		default:
			infos++
		}
	}
	return
}
