package allocation

import (
	"errors"
	"fmt"

	"github.com/mlefebvre/hydronet/core/model"
)

// StructuralError reports a malformed input network discovered while building
// an allocation model. It aborts model construction for the whole run.
type StructuralError struct {
	Subnetwork model.SubnetworkID
	Reason     string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("allocation: subnetwork %d: %s", e.Subnetwork, e.Reason)
}

func structErrf(sub model.SubnetworkID, format string, args ...any) error {
	return &StructuralError{Subnetwork: sub, Reason: fmt.Sprintf(format, args...)}
}

// ErrInfeasible indicates the solver did not reach an optimal solution for an
// interval. No allocation is written back for that subnetwork and interval.
var ErrInfeasible = errors.New("allocation: lp infeasible")

// SolveError wraps a per-interval solver failure for one subnetwork. Failures
// are isolated: other subnetworks' models are unaffected.
type SolveError struct {
	Subnetwork model.SubnetworkID
	Time       float64
	Err        error
}

func (e *SolveError) Error() string {
	return fmt.Sprintf("allocation: subnetwork %d at t=%g: %v", e.Subnetwork, e.Time, e.Err)
}

func (e *SolveError) Unwrap() error { return e.Err }

// missingMapping reports a violated engine invariant: an allocation-graph node
// without a physical counterpart or vice versa. This is a programming error,
// not an input error.
func missingMapping(format string, args ...any) {
	panic("allocation: missing mapping: " + fmt.Sprintf(format, args...))
}
