package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned when no transition is configured for a trigger
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrGuardFailed is returned when every configured transition was refused by its guard
	ErrGuardFailed = errors.New("guard condition failed")
)

// GuardError carries the refusal of the last guard evaluated for a trigger.
// It matches both ErrGuardFailed and Cause.
type GuardError struct {
	State   string
	Trigger string
	Cause   error
}

func (e *GuardError) Error() string {
	return fmt.Sprintf("%v: trigger %s from state %s: %v", ErrGuardFailed, e.Trigger, e.State, e.Cause)
}

func (e *GuardError) Unwrap() []error { return []error{ErrGuardFailed, e.Cause} }
