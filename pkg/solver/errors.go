package solver

import (
	"errors"
	"fmt"
)

// ErrStopped reports that a stop-time element or the caller halted the run;
// further Advance calls are refused until Reset.
var ErrStopped = errors.New("simulation stopped")

// NonConvergenceError means the iteration budget ran out for one timestep.
// The scheduler recovers by halving the timestep; it only reaches the caller
// wrapped in MinTimeStepError once the minimum timestep is exhausted too.
type NonConvergenceError struct {
	Iterations int
	Time       float64
	TimeStep   float64
}

func (e *NonConvergenceError) Error() string {
	return fmt.Sprintf("failed to converge in %d iterations at t=%g (dt=%g)",
		e.Iterations, e.Time, e.TimeStep)
}

// MinTimeStepError is the user-visible stop condition: the step was reduced
// to the configured floor and still did not converge.
type MinTimeStepError struct {
	Time    float64
	MinStep float64
	Last    error
}

func (e *MinTimeStepError) Error() string {
	return fmt.Sprintf("failed to converge at t=%g: timestep reduced to minimum %g: %v",
		e.Time, e.MinStep, e.Last)
}

func (e *MinTimeStepError) Unwrap() error { return e.Last }
