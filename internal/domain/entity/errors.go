package entity

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors shared by every layer. Typed errors below unwrap to them so
// callers can branch with errors.Is and still read the details with errors.As.
var (
	ErrNotFound               = errors.New("not found")
	ErrValidation             = errors.New("validation failed")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrInvalidTransition is returned when a stage change skips or rewinds stages
	ErrInvalidTransition    = errors.New("invalid stage transition")
	ErrPreconditionNotMet   = errors.New("precondition not met")
	ErrIncompleteEvidence   = errors.New("incomplete evidence")
	ErrIncompleteEvaluation = errors.New("incomplete evaluation")
	ErrPendingVisit         = errors.New("pending site visit")
	ErrConcurrency          = errors.New("concurrent modification")
	ErrLockTimeout          = errors.New("audit lock wait timed out")
	ErrStorage              = errors.New("storage error")
	// ErrConflict is returned when a unique key (audit code, finding code) already exists
	ErrConflict = errors.New("already exists")
)

// PreconditionKind narrows a PreconditionError to a specialised sentinel.
type PreconditionKind string

const (
	PreconditionGeneric            PreconditionKind = ""
	PreconditionIncompleteEvidence PreconditionKind = "incomplete_evidence"
	PreconditionIncompleteEval     PreconditionKind = "incomplete_evaluation"
	PreconditionPendingVisit       PreconditionKind = "pending_visit"
)

// PreconditionError reports a stage gate that did not pass. Missing lists the
// offending identifiers (section ids, visit ids) so a UI can point at them.
type PreconditionError struct {
	Stage   Stage
	Kind    PreconditionKind
	Reason  string
	Missing []string
}

func (e *PreconditionError) Error() string {
	msg := fmt.Sprintf("precondition not met at stage %s: %s", e.Stage, e.Reason)
	if len(e.Missing) > 0 {
		msg += " [" + strings.Join(e.Missing, ", ") + "]"
	}
	return msg
}

// Unwrap exposes both the base sentinel and the specialised one.
func (e *PreconditionError) Unwrap() []error {
	errs := []error{ErrPreconditionNotMet}
	switch e.Kind {
	case PreconditionIncompleteEvidence:
		errs = append(errs, ErrIncompleteEvidence)
	case PreconditionIncompleteEval:
		errs = append(errs, ErrIncompleteEvaluation)
	case PreconditionPendingVisit:
		errs = append(errs, ErrPendingVisit)
	}
	return errs
}

// NewPreconditionError builds a generic precondition failure.
func NewPreconditionError(stage Stage, reason string, missing ...string) *PreconditionError {
	return &PreconditionError{Stage: stage, Reason: reason, Missing: missing}
}

// NotFoundError identifies the missing entity.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFoundError formats key with %v.
func NewNotFoundError(entity string, key any) *NotFoundError {
	return &NotFoundError{Entity: entity, Key: fmt.Sprint(key)}
}

// TransitionError is returned when a lifecycle trigger is not allowed from the
// entity's current state.
type TransitionError struct {
	Entity  string
	From    string
	Trigger string
	// Stage marks a rejection by the stage controller; it also matches
	// ErrInvalidTransition.
	Stage bool
}

// NewStageTransitionError reports a stage controller trigger refused in from.
func NewStageTransitionError(from Stage, trigger string) *TransitionError {
	return &TransitionError{Entity: "audit", From: from.String(), Trigger: trigger, Stage: true}
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s cannot %s from state %s", e.Entity, e.Trigger, e.From)
}

func (e *TransitionError) Unwrap() []error {
	if e.Stage {
		return []error{ErrInvalidTransition, ErrInvalidStateTransition}
	}
	return []error{ErrInvalidStateTransition}
}

// LockTimeoutError is returned when the per-audit lock could not be taken in time.
type LockTimeoutError struct {
	AuditID int64
	Waited  time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("audit %d: lock not acquired after %s", e.AuditID, e.Waited)
}

func (e *LockTimeoutError) Unwrap() []error {
	return []error{ErrLockTimeout, ErrConcurrency}
}

// ValidationErrorf wraps ErrValidation with a formatted message.
func ValidationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
