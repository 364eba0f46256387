package loan

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced loan or payment doesn't exist.
	ErrNotFound = errors.New("loan not found")

	// ErrClosed is returned for mutations against a closed contract.
	ErrClosed = errors.New("loan is closed")

	// ErrNoPendingChoice is returned when resolving an overpayment choice
	// that was never requested (or already resolved).
	ErrNoPendingChoice = errors.New("no pending overpayment choice")

	// ErrChoicePending is returned when a new payment arrives while a
	// significant overpayment is still awaiting a strategy.
	ErrChoicePending = errors.New("overpayment choice pending")

	// ErrInvalidInput wraps all validation failures.
	ErrInvalidInput = errors.New("invalid input")
)

// ValidationError carries the offending field. Rejected before any mutation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// PolicyError is a business-rule rejection with no partial effect.
type PolicyError struct {
	Rule    string
	Message string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Rule, e.Message)
}

// IsValidation reports whether err is client input that should map to 400.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsPolicy reports whether err is a business-rule rejection (422).
func IsPolicy(err error) bool {
	var pe *PolicyError
	return errors.As(err, &pe) || errors.Is(err, ErrClosed) || errors.Is(err, ErrChoicePending)
}

// IsNotFound reports whether err indicates a missing record (404).
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
