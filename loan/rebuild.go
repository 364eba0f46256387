package loan

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coopfin/ledger-engine/schedule"
)

// =============================================================================
// SCHEDULE REBUILDER
// =============================================================================
// Regeneration replaces every not-fully-paid row with a fresh table computed
// from the contract's current balance, rate and a chosen period count. Paid
// rows are history and are never touched; numbering continues after the last
// paid period so the contract keeps a single gapless sequence for life.

type rebuildResult struct {
	Rows        []ScheduleRow
	Installment decimal.Decimal
}

// rebuildSchedule regenerates the unpaid remainder of a schedule inside the
// caller's transaction. The anchor is the last paid row's due date; when no
// row was ever paid, fallbackAnchor (normally the triggering payment or
// request date) is used. The contract's term, end date and installment are
// updated in place but NOT persisted here; callers persist the contract via
// their status refresh.
func rebuildSchedule(ctx context.Context, st Store, c *Contract, periods int, fallbackAnchor time.Time) (*rebuildResult, error) {
	rows, err := st.ScheduleRows(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	lastPaidNo := 0
	anchor := schedule.DateOnly(fallbackAnchor)
	for i := range rows {
		if rows[i].Status == RowPaid && rows[i].PeriodNo > lastPaidNo {
			lastPaidNo = rows[i].PeriodNo
			anchor = rows[i].DueDate
		}
	}

	if _, err := st.DeleteUnpaidRows(ctx, c.ID); err != nil {
		return nil, err
	}

	gen, installment, err := schedule.Generate(c.Convention, c.Balance, c.Rate, periods, anchor)
	if err != nil {
		return nil, err
	}

	newRows := rowsFromGenerated(c.ID, lastPaidNo, gen)
	if err := st.InsertScheduleRows(ctx, newRows); err != nil {
		return nil, err
	}

	c.TermMonths = lastPaidNo + periods
	c.EndDate = newRows[len(newRows)-1].DueDate
	c.MonthlyPayment = installment

	return &rebuildResult{Rows: newRows, Installment: installment}, nil
}

// rowsFromGenerated converts generator output to schedule rows, continuing
// period numbering from offset.
func rowsFromGenerated(loanID int64, offset int, gen []schedule.Row) []ScheduleRow {
	rows := make([]ScheduleRow, 0, len(gen))
	for _, g := range gen {
		rows = append(rows, ScheduleRow{
			LoanID:       loanID,
			PeriodNo:     offset + g.PeriodNo,
			DueDate:      g.DueDate,
			Payment:      g.Payment,
			Principal:    g.Principal,
			Interest:     g.Interest,
			Penalty:      decimal.Zero,
			BalanceAfter: g.BalanceAfter,
			PaidAmount:   decimal.Zero,
			Status:       RowPending,
		})
	}
	return rows
}
