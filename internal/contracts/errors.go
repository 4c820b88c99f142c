package contracts

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidProblem marks malformed input rejected before solving
	ErrInvalidProblem = errors.New("invalid allocation problem")

	// ErrSolverFault marks an unexpected internal failure of the solver
	ErrSolverFault = errors.New("solver fault")

	// ErrSolveInFlight is returned when a session already has an outstanding solve
	ErrSolveInFlight = errors.New("solve already in flight")

	// ErrWorkerTerminated is returned when submitting to a released worker
	ErrWorkerTerminated = errors.New("worker terminated")

	// ErrSolveTimeout is returned when the caller stopped waiting for a result
	ErrSolveTimeout = errors.New("solve timed out")

	// ErrStaleResult marks a result that was superseded by a newer request
	ErrStaleResult = errors.New("stale result discarded")

	// ErrPriceNotAvailable marks a market without a known price
	ErrPriceNotAvailable = errors.New("price not available")

	// ErrNotFound marks a missing resource
	ErrNotFound = errors.New("not found")
)

// ValidationError describes one rejected input field
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is(err, ErrInvalidProblem) match any validation failure
func (e ValidationError) Unwrap() error {
	return ErrInvalidProblem
}

// SolverFault wraps the cause of an internal solver failure
type SolverFault struct {
	Cause error
}

// NewSolverFault builds a fault from a recovered panic value or an error
func NewSolverFault(v interface{}) *SolverFault {
	if err, ok := v.(error); ok {
		return &SolverFault{Cause: err}
	}
	return &SolverFault{Cause: fmt.Errorf("%v", v)}
}

func (e *SolverFault) Error() string {
	return fmt.Sprintf("solver fault: %v", e.Cause)
}

// Unwrap exposes ErrSolverFault to errors.Is and the cause to errors.As
func (e *SolverFault) Unwrap() []error {
	return []error{ErrSolverFault, e.Cause}
}
