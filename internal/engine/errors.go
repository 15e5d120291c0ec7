package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/OdinManiac/regelum/internal/ir"
)

// ZenoError is raised when an SCC's microstep loop exhausts its budget
// without stabilizing. The tick aborts; committed state from earlier
// ticks is untouched.
type ZenoError struct {
	Tag     ir.Tag
	Members []string // reaction keys of the diverging SCC
	Limit   int
}

// Error implements the error interface.
func (e *ZenoError) Error() string {
	return fmt.Sprintf("microstep budget exceeded at %s: SCC [%s] did not stabilize within %d microsteps",
		e.Tag, strings.Join(e.Members, ", "), e.Limit)
}

// IsZenoError reports whether err is a Zeno budget violation.
// Uses errors.As to handle wrapped errors.
func IsZenoError(err error) bool {
	var ze *ZenoError
	return errors.As(err, &ze)
}

// IsWritePolicyError reports whether err is a write policy violation.
// Uses errors.As to handle wrapped errors.
func IsWritePolicyError(err error) bool {
	var we *ir.WritePolicyError
	return errors.As(err, &we)
}

// TickError wraps any failure inside one tick with the tag it occurred
// at. Partial intents of the failed tick are discarded.
type TickError struct {
	Tag ir.Tag
	Err error
}

// Error implements the error interface.
func (e *TickError) Error() string {
	return fmt.Sprintf("tick %s aborted: %v", e.Tag, e.Err)
}

// Unwrap exposes the underlying cause to errors.As/Is.
func (e *TickError) Unwrap() error {
	return e.Err
}
