package loan

import (
	"context"
	"time"
)

// =============================================================================
// STORE - persistence interface consumed by the loan service
// =============================================================================
// The core never builds SQL; it reads and writes typed rows through this
// interface. Implementations: store/sqlite (production), store/memory (tests).

type Store interface {
	CreateContract(ctx context.Context, c *Contract) error
	GetContract(ctx context.Context, id int64) (*Contract, error)
	UpdateContract(ctx context.Context, c *Contract) error

	// InsertScheduleRows persists rows in order. Row IDs are assigned.
	InsertScheduleRows(ctx context.Context, rows []ScheduleRow) error

	// ScheduleRows returns all rows for a loan ordered by period number.
	ScheduleRows(ctx context.Context, loanID int64) ([]ScheduleRow, error)

	// OutstandingRows returns not-fully-paid rows ordered by period number.
	OutstandingRows(ctx context.Context, loanID int64) ([]ScheduleRow, error)

	UpdateScheduleRow(ctx context.Context, row *ScheduleRow) error

	// DeleteUnpaidRows removes every row not marked paid and reports how
	// many were removed. Used by the rebuilder.
	DeleteUnpaidRows(ctx context.Context, loanID int64) (int, error)

	DeleteScheduleRow(ctx context.Context, rowID int64) error

	InsertPayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, id string) (*Payment, error)
	UpdatePayment(ctx context.Context, p *Payment) error
	DeletePayment(ctx context.Context, id string) error

	// Payments returns all payments for a loan ordered by payment date.
	Payments(ctx context.Context, loanID int64) ([]Payment, error)

	SavePendingChoice(ctx context.Context, pc *PendingChoice) error
	GetPendingChoice(ctx context.Context, loanID int64) (*PendingChoice, error)
	DeletePendingChoice(ctx context.Context, loanID int64) error

	// ListOverdueUnpaidRows returns unpaid rows due strictly before the
	// given day across all contracts. The overdue sweep uses it to find
	// the loans that need flagging.
	ListOverdueUnpaidRows(ctx context.Context, before time.Time) ([]ScheduleRow, error)
}

// TxStore runs a unit of work inside one all-or-nothing transaction.
// Every mutating service operation goes through WithTx; partial persistence
// of a schedule is the failure mode this boundary exists to prevent.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
