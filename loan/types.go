/*
Package loan implements loan contracts: schedule generation at origination,
payment allocation across interest/penalty/principal buckets, schedule
rebuilding after prepayments and rate/term changes, and administrative
repair of drifted schedules.

KEY CONCEPTS:
  - Contract: the loan itself, carrying the live outstanding balance
  - ScheduleRow: one contractual period; the set of rows IS the schedule
  - Payment: immutable record of one real-world cash movement
  - PendingChoice: a parked significant overpayment awaiting a strategy

RECONCILIATION INVARIANT:
  original principal - sum(principal_part over all payments) == balance.
  Repair() re-derives the schedule from the payment history whenever the
  persisted rows have drifted from that ground truth.

SEE ALSO:
  - allocate.go: the bucket-priority payment allocator
  - rebuild.go: schedule regeneration after prepayment/rate/term changes
  - repair.go: duplicate-row cleanup and full history replay
*/
package loan

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/coopfin/ledger-engine/schedule"
)

// =============================================================================
// CONTRACT STATUS - explicit state machine
// =============================================================================
// active -> overdue  when any unpaid row's due date has passed
// overdue -> active  when no such row remains (after payment or rebuild)
// any -> closed      when the balance reaches zero; closed is terminal

type Status string

const (
	StatusActive  Status = "active"
	StatusOverdue Status = "overdue"
	StatusClosed  Status = "closed"
)

// CanTransition reports whether the state machine permits moving from s to
// next. Closed is irreversible.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusActive:
		return next == StatusOverdue || next == StatusClosed
	case StatusOverdue:
		return next == StatusActive || next == StatusClosed
	default:
		return false
	}
}

// DeriveStatus computes the status implied by the schedule rows as of today.
// A closed contract stays closed regardless of row state.
func DeriveStatus(current Status, rows []ScheduleRow, today time.Time) Status {
	if current == StatusClosed {
		return StatusClosed
	}
	for i := range rows {
		if rows[i].Status != RowPaid && rows[i].DueDate.Before(schedule.DateOnly(today)) {
			return StatusOverdue
		}
	}
	return StatusActive
}

// =============================================================================
// SCHEDULE ROW
// =============================================================================

type RowStatus string

const (
	RowPending RowStatus = "pending"
	RowPartial RowStatus = "partial"
	RowPaid    RowStatus = "paid"
	RowOverdue RowStatus = "overdue"
)

// ScheduleRow is one contractual period of a loan. Payment covers principal
// plus interest; penalties are tracked separately on top.
type ScheduleRow struct {
	ID           int64
	LoanID       int64
	PeriodNo     int
	DueDate      time.Time
	Payment      decimal.Decimal
	Principal    decimal.Decimal
	Interest     decimal.Decimal
	Penalty      decimal.Decimal
	BalanceAfter decimal.Decimal
	PaidAmount   decimal.Decimal
	PaidDate     *time.Time
	Status       RowStatus
	OverdueDays  int
}

// TotalDue is the full contractual amount of the row including penalties.
func (r *ScheduleRow) TotalDue() decimal.Decimal {
	return r.Principal.Add(r.Interest).Add(r.Penalty)
}

// Outstanding is what is still owed on the row.
func (r *ScheduleRow) Outstanding() decimal.Decimal {
	out := r.TotalDue().Sub(r.PaidAmount)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

// =============================================================================
// CONTRACT
// =============================================================================

type Contract struct {
	ID             int64
	ContractNo     string
	MemberID       int64
	Amount         decimal.Decimal
	Rate           decimal.Decimal
	TermMonths     int
	Convention     schedule.Convention
	StartDate      time.Time
	EndDate        time.Time
	MonthlyPayment decimal.Decimal
	Balance        decimal.Decimal
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// =============================================================================
// PAYMENT
// =============================================================================

type PaymentType string

const (
	PaymentRegular      PaymentType = "regular"
	PaymentEarlyFull    PaymentType = "early_full"
	PaymentEarlyPartial PaymentType = "early_partial"
)

// Payment records a single cash movement against a loan. Created exactly
// once per real-world payment; admin corrections edit or delete the record
// and reverse its balance effect, they never duplicate it.
type Payment struct {
	ID            string
	LoanID        int64
	Date          time.Time
	Amount        decimal.Decimal
	PrincipalPart decimal.Decimal
	InterestPart  decimal.Decimal
	PenaltyPart   decimal.Decimal
	Type          PaymentType
	CreatedAt     time.Time
}

// =============================================================================
// OVERPAYMENT STRATEGY
// =============================================================================

type Strategy string

const (
	StrategyReduceTerm    Strategy = "reduce_term"
	StrategyReducePayment Strategy = "reduce_payment"
)

// PendingChoice parks a significant overpayment until the member picks a
// strategy. No financial state changes while a choice is pending.
type PendingChoice struct {
	LoanID    int64
	Amount    decimal.Decimal
	Date      time.Time
	CreatedAt time.Time
}

// OptionPreview shows what a strategy would do to the schedule.
type OptionPreview struct {
	Periods     int             `json:"periods"`
	Installment decimal.Decimal `json:"installment"`
}

// ChoiceRequest is the structured "needs decision" response for a
// significant overpayment. It is not an error: state is unchanged (apart
// from the parked choice) until the caller resolves it.
type ChoiceRequest struct {
	LoanID        int64           `json:"loan_id"`
	Amount        decimal.Decimal `json:"amount"`
	Date          time.Time       `json:"date"`
	ReduceTerm    OptionPreview   `json:"reduce_term"`
	ReducePayment OptionPreview   `json:"reduce_payment"`
}
