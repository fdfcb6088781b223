/*
errors.go - Error taxonomy for the approval engine

PURPOSE:
  All error types in one place. Every structured error unwraps to exactly one
  sentinel, so callers (the HTTP layer in particular) classify with errors.Is.

ERROR CATEGORIES:
  ErrValidation          Missing or malformed input
  ErrPermissionDenied    Role/position/level gate refused the actor
  ErrInvalidTransition   Action not legal from the current state
  ErrInsufficientBalance Debit would make a leave balance negative
  ErrNotFound            Unknown id
  ErrConcurrencyConflict Pre-state changed under a guarded update

  Anything else is an unexpected persistence failure.

RETRIES:
  None of these are retried internally. A ConcurrencyConflict means someone
  else's write won; replaying blindly could double-apply a balance change.

SEE ALSO:
  - api/errors.go: HTTP status mapping
*/
package approval

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation          = errors.New("validation failed")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotFound            = errors.New("not found")
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrDuplicateEntry is returned when a ledger idempotency key was already used.
	ErrDuplicateEntry = fmt.Errorf("duplicate ledger entry: %w", ErrConcurrencyConflict)
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// PermissionError explains why the gate refused an actor.
type PermissionError struct {
	ActorID    string
	Capability Capability
	Reason     string
}

func (e *PermissionError) Error() string {
	if e.Capability == "" {
		return fmt.Sprintf("permission denied for %q: %s", e.ActorID, e.Reason)
	}
	return fmt.Sprintf("permission denied for %q on %s: %s", e.ActorID, e.Capability, e.Reason)
}

func (e *PermissionError) Unwrap() error { return ErrPermissionDenied }

// TransitionError reports an action that is illegal from the current state.
type TransitionError struct {
	Entity string
	ID     string
	From   string
	Action string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s %s %s in state %q", e.Action, e.Entity, e.ID, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// InsufficientBalanceError details a shortage on debit.
type InsufficientBalanceError struct {
	EmployeeID string
	Available  decimal.Decimal
	Requested  decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s: available %s, requested %s",
		e.EmployeeID, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError reports a lost compare-and-swap.
type ConflictError struct {
	Entity string
	ID     string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q was modified concurrently", e.Entity, e.ID)
}

func (e *ConflictError) Unwrap() error { return ErrConcurrencyConflict }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true for every error in the taxonomy. Everything
// else is an internal failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConcurrencyConflict)
}
