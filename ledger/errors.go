/*
errors.go - Error taxonomy for the leave ledger

ERROR CATEGORIES:
  1. Validation     - malformed input, unknown references
  2. Tenant         - entity belongs to another tenant (security boundary)
  3. State          - leave request no longer pending
  4. Not found      - id does not resolve
  5. Ledger         - insufficient balance, invariant violation, lost CAS race

  Ledger and state errors are fail-fast: the caller sees them and nothing
  is partially written. Notification delivery failures never surface here;
  see notify/.

USAGE:
  if errors.Is(err, ledger.ErrAlreadyProcessed) {
      // 409
  }
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation = errors.New("validation failed")

	// ErrTenantMismatch is returned when an entity is referenced from a
	// tenant it does not belong to. Never narrowed silently.
	ErrTenantMismatch = errors.New("tenant mismatch")

	// ErrAlreadyProcessed is returned when a leave request is not pending.
	ErrAlreadyProcessed = errors.New("leave request already processed")

	ErrNotFound = errors.New("not found")

	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrConcurrentModification is returned when a compare-and-swap write
	// finds the row changed since it was read.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrDuplicate is returned when a unique key already exists.
	ErrDuplicate = errors.New("duplicate key")

	ErrInvariantViolation = errors.New("ledger invariant violated")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid is shorthand for a *ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

type TenantMismatchError struct {
	Kind     string // "user", "leave_type", "leave"
	ID       string
	TenantID string // caller's tenant
	OwnerID  string // entity's tenant
}

func (e *TenantMismatchError) Error() string {
	return fmt.Sprintf("%s %s does not belong to tenant %s", e.Kind, e.ID, e.TenantID)
}

func (e *TenantMismatchError) Unwrap() error { return ErrTenantMismatch }

type AlreadyProcessedError struct {
	LeaveID string
	Status  LeaveStatus
}

func (e *AlreadyProcessedError) Error() string {
	return fmt.Sprintf("leave %s already %s", e.LeaveID, e.Status)
}

func (e *AlreadyProcessedError) Unwrap() error { return ErrAlreadyProcessed }

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NotFound is shorthand for a *NotFoundError.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

type InsufficientBalanceError struct {
	Key       BalanceKey
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %s, requested %s",
		e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

type InvariantError struct {
	Key   BalanceKey
	Field string
	Got   decimal.Decimal
	Want  decimal.Decimal
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("ledger row %s/%s/%s/%d: %s is %s, want %s",
		e.Key.TenantID, e.Key.UserID, e.Key.LeaveTypeID, e.Key.Year, e.Field, e.Got, e.Want)
}

func (e *InvariantError) Unwrap() error { return ErrInvariantViolation }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrTenantMismatch)
}

// IsConflict returns true if the error reports a state conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyProcessed) ||
		errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrDuplicate)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
