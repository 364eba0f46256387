package savings

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store is the persistence interface consumed by the savings service.
// Implementations: store/sqlite (production), store/memory (tests).
type Store interface {
	CreateContract(ctx context.Context, c *Contract) error
	GetContract(ctx context.Context, id int64) (*Contract, error)
	UpdateContract(ctx context.Context, c *Contract) error
	ListActiveContracts(ctx context.Context) ([]Contract, error)

	InsertScheduleRows(ctx context.Context, rows []ScheduleRow) error
	ScheduleRows(ctx context.Context, savingID int64) ([]ScheduleRow, error)

	// DeleteUnpaidScheduleRows removes rows not marked paid; paid rows are
	// history and survive every recalculation.
	DeleteUnpaidScheduleRows(ctx context.Context, savingID int64) (int, error)

	InsertTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, id string) (*Transaction, error)
	UpdateTransaction(ctx context.Context, tx *Transaction) error
	DeleteTransaction(ctx context.Context, id string) error

	// Transactions returns all entries for a contract ordered by date.
	Transactions(ctx context.Context, savingID int64) ([]Transaction, error)

	// InsertDailyAccrual fails on a duplicate (contract, day) pair.
	InsertDailyAccrual(ctx context.Context, a *DailyAccrual) error
	DailyAccrualExists(ctx context.Context, savingID int64, day time.Time) (bool, error)
	DailyAccruals(ctx context.Context, savingID int64) ([]DailyAccrual, error)

	// AccruedThrough sums daily accrual amounts with date <= through.
	AccruedThrough(ctx context.Context, savingID int64, through time.Time) (decimal.Decimal, error)

	InsertRateChange(ctx context.Context, rc *RateChange) error

	// RateChanges returns the rate history ordered by effective date.
	RateChanges(ctx context.Context, savingID int64) ([]RateChange, error)
}

// TxStore runs a unit of work inside one all-or-nothing transaction.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
