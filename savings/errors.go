package savings

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound     = errors.New("savings contract not found")
	ErrNotActive    = errors.New("savings contract is not active")
	ErrInvalidInput = errors.New("invalid input")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// MinBalanceError rejects a partial withdrawal that would breach the
// contract's minimum-balance floor. The balance is left untouched.
type MinBalanceError struct {
	SavingID int64
	Floor    decimal.Decimal
	WouldBe  decimal.Decimal
}

func (e *MinBalanceError) Error() string {
	return fmt.Sprintf("withdrawal would leave balance %s below floor %s", e.WouldBe, e.Floor)
}

// PayoutCapError rejects an interest payout that exceeds what had accrued
// by the end of the previous calendar month.
type PayoutCapError struct {
	SavingID  int64
	Requested decimal.Decimal
	Payable   decimal.Decimal
}

func (e *PayoutCapError) Error() string {
	return fmt.Sprintf("payout %s exceeds payable interest %s", e.Requested, e.Payable)
}

// InsufficientFundsError rejects a withdrawal beyond the current balance.
type InsufficientFundsError struct {
	SavingID  int64
	Requested decimal.Decimal
	Balance   decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("withdrawal %s exceeds balance %s", e.Requested, e.Balance)
}

// IsValidation reports whether err is client input that should map to 400.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsPolicy reports whether err is a business-rule rejection (422).
func IsPolicy(err error) bool {
	var mbe *MinBalanceError
	var pce *PayoutCapError
	var ife *InsufficientFundsError
	return errors.As(err, &mbe) || errors.As(err, &pce) || errors.As(err, &ife) || errors.Is(err, ErrNotActive)
}

// IsNotFound reports whether err indicates a missing record (404).
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
