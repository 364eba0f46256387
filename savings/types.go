/*
Package savings implements savings contracts: projected interest schedules,
the day-granularity accrual ledger, payout capping, and wholesale schedule
recalculation when deposits, withdrawals or rate changes move the balance.

KEY CONCEPTS:
  - Contract: the deposit agreement with live balance and interest totals
  - ScheduleRow: period-level projected interest (regenerated wholesale,
    paid rows preserved)
  - Transaction: append-only ledger of balance movements
  - DailyAccrual: one row per (contract, day); the sum of these rows IS
    accrued_interest, reconciled rather than live-derived
  - RateChange: ordered audit of rate history, consulted by the schedule
    recalculator and the accrual backfill

SEE ALSO:
  - accrual.go: daily accrual run and gap backfill
  - service.go: contract operations and the recalculator
*/
package savings

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/coopfin/ledger-engine/schedule"
)

type Status string

const (
	StatusActive      Status = "active"
	StatusEarlyClosed Status = "early_closed"
	StatusClosed      Status = "closed"
)

type Contract struct {
	ID              int64
	ContractNo      string
	MemberID        int64
	Amount          decimal.Decimal // principal, grows with deposits
	Rate            decimal.Decimal
	TermMonths      int
	PayoutType      schedule.Payout
	StartDate       time.Time
	EndDate         time.Time
	CurrentBalance  decimal.Decimal
	AccruedInterest decimal.Decimal // sum of daily accrual rows
	PaidInterest    decimal.Decimal // cumulative payouts
	MinBalancePct   decimal.Decimal // partial-withdrawal floor, percent of amount at open
	AmountAtOpen    decimal.Decimal
	Status          Status
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type RowStatus string

const (
	RowPending RowStatus = "pending"
	RowPaid    RowStatus = "paid"
)

// ScheduleRow is one period of the projected interest table.
type ScheduleRow struct {
	ID           int64
	SavingID     int64
	PeriodNo     int
	PeriodStart  time.Time
	PeriodEnd    time.Time
	Interest     decimal.Decimal
	Cumulative   decimal.Decimal
	BalanceAfter decimal.Decimal
	Status       RowStatus
}

type TxType string

const (
	TxOpening           TxType = "opening"
	TxDeposit           TxType = "deposit"
	TxWithdrawal        TxType = "withdrawal"
	TxPartialWithdrawal TxType = "partial_withdrawal"
	TxInterestPayout    TxType = "interest_payout"
	TxInterestAccrual   TxType = "interest_accrual"
	TxRateChange        TxType = "rate_change"
	TxTermChange        TxType = "term_change"
	TxEarlyClose        TxType = "early_close"
)

// Transaction is an append-only ledger entry. Administrative correction or
// deletion must reverse the entry's effect on the contract's running totals.
type Transaction struct {
	ID          string
	SavingID    int64
	Date        time.Time
	Amount      decimal.Decimal
	Type        TxType
	IsCash      bool
	Description string
	CreatedAt   time.Time
}

// DailyAccrual records one day's simple interest on the live balance.
// At most one row exists per (contract, day); reruns are no-ops.
type DailyAccrual struct {
	ID       int64
	SavingID int64
	Date     time.Time
	Balance  decimal.Decimal
	Rate     decimal.Decimal
	Amount   decimal.Decimal
}

// RateChange is an append-only audit of the contract's rate history.
type RateChange struct {
	ID            int64
	SavingID      int64
	EffectiveDate time.Time
	OldRate       decimal.Decimal
	NewRate       decimal.Decimal
	Reason        string
	CreatedAt     time.Time
}
