package entity

import "fmt"

// ValidationError rejects a command at the boundary, before any state
// mutation.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validationf builds a ValidationError with a formatted message.
func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ConcurrencyConflict marks a lost write race, e.g. a duplicate vote. The
// first writer wins; the conflict is logged as an event, never fatal.
type ConcurrencyConflict struct {
	Msg string
}

func (e *ConcurrencyConflict) Error() string { return e.Msg }

// SchedulerStateError rejects a simulation control that is not legal in the
// scheduler's current state. It never affects simulation state.
type SchedulerStateError struct {
	Op    string
	State SimState
}

func (e *SchedulerStateError) Error() string {
	return fmt.Sprintf("cannot %s while simulation is %s", e.Op, e.State)
}
