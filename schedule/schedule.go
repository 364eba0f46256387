/*
Package schedule provides the pure schedule math for the ledger engine.

PURPOSE:
  Everything in this package is a deterministic function of its inputs:
  calendar-month arithmetic, amortization tables, interest-accrual plans.
  There is no storage, no clock, no I/O. Services layer persistence on top.

KEY CONCEPTS:
  - Row: one period of a loan repayment schedule (annuity or end-of-term)
  - SavingsRow: one period of a savings interest projection
  - BalanceEvent: a dated deposit/withdrawal/rate change used to split
    savings periods into sub-intervals

DETERMINISM:
  All monetary rounding is half-up to 2 decimals and is applied immediately
  after each computed figure, never deferred. Re-deriving a schedule from the
  same inputs must reproduce identical rows; persisted rows and recomputed
  rows are compared cent-for-cent by the reconciliation reports.

CONVENTIONS:
  Due dates are fixed calendar dates: period i falls due on AddMonths(start, i),
  with the day clamped to the target month's length. Annuity interest uses a
  monthly rate (annual/12), end-of-term interest uses actual days over a
  360-day year, savings interest uses actual days over a 365-day year.

SEE ALSO:
  - dates.go: calendar arithmetic
  - annuity.go, endofterm.go: loan generators
  - savings.go, events.go: savings generators
*/
package schedule

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Convention selects the loan repayment shape.
type Convention string

const (
	ConventionAnnuity   Convention = "annuity"
	ConventionEndOfTerm Convention = "end_of_term"
)

// Payout selects whether savings interest is paid out monthly or
// compounds into the displayed balance until term end.
type Payout string

const (
	PayoutMonthly   Payout = "monthly"
	PayoutEndOfTerm Payout = "end_of_term"
)

var (
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInvalidRate       = errors.New("rate must not be negative")
	ErrInvalidTerm       = errors.New("term must be at least one period")
	ErrUnknownConvention = errors.New("unknown schedule convention")
)

// Row is one period of a loan repayment schedule.
type Row struct {
	PeriodNo     int
	DueDate      time.Time
	Payment      decimal.Decimal
	Principal    decimal.Decimal
	Interest     decimal.Decimal
	BalanceAfter decimal.Decimal
}

// SavingsRow is one period of a savings interest projection.
type SavingsRow struct {
	PeriodNo     int
	PeriodStart  time.Time
	PeriodEnd    time.Time
	Interest     decimal.Decimal
	Cumulative   decimal.Decimal
	BalanceAfter decimal.Decimal
}

var (
	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(12)
	year360 = decimal.NewFromInt(360)
	year365 = decimal.NewFromInt(365)
)

// RoundMoney rounds half-up to the cent. This is the single rounding rule
// for the whole engine; schedules are only reproducible if every
// intermediate figure goes through it.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Generate dispatches to the generator for the given convention.
// It returns the period rows and the headline installment.
func Generate(conv Convention, amount, annualRatePct decimal.Decimal, term int, start time.Time) ([]Row, decimal.Decimal, error) {
	switch conv {
	case ConventionAnnuity:
		return Annuity(amount, annualRatePct, term, start)
	case ConventionEndOfTerm:
		return EndOfTerm(amount, annualRatePct, term, start)
	default:
		return nil, decimal.Zero, ErrUnknownConvention
	}
}

func validate(amount, annualRatePct decimal.Decimal, term int) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if annualRatePct.IsNegative() {
		return ErrInvalidRate
	}
	if term < 1 {
		return ErrInvalidTerm
	}
	return nil
}
