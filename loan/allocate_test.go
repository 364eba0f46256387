package loan_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopfin/ledger-engine/loan"
	"github.com/coopfin/ledger-engine/schedule"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s got %s %v", want, got, msgAndArgs)
}

func mkRow(id int64, periodNo int, due time.Time, principal, interest, penalty, paid string) loan.ScheduleRow {
	return loan.ScheduleRow{
		ID:         id,
		LoanID:     1,
		PeriodNo:   periodNo,
		DueDate:    due,
		Payment:    dec(principal).Add(dec(interest)),
		Principal:  dec(principal),
		Interest:   dec(interest),
		Penalty:    dec(penalty),
		PaidAmount: dec(paid),
		Status:     loan.RowPending,
	}
}

// =============================================================================
// BUCKET PRIORITY
// =============================================================================

func TestAllocate_InterestBeforePenaltyBeforePrincipal(t *testing.T) {
	// GIVEN: A row owing 100 interest, 50 penalty, 850 principal
	// WHEN: Tendering 120
	// THEN: Interest fills first, the rest goes to penalty, principal gets nothing

	due := schedule.Date(2026, time.March, 15)
	rows := []loan.ScheduleRow{mkRow(1, 1, due, "850", "100", "50", "0")}

	alloc := loan.Allocate(rows, dec("120"), due)

	assertMoney(t, "100.00", alloc.InterestPart)
	assertMoney(t, "20.00", alloc.PenaltyPart)
	assertMoney(t, "0.00", alloc.PrincipalPart)
	assert.True(t, alloc.Surplus.IsZero())

	require.Len(t, alloc.Rows, 1)
	assert.Equal(t, loan.RowPartial, alloc.Rows[0].Status)
	assertMoney(t, "120.00", alloc.Rows[0].PaidAmount)
}

func TestAllocate_PriorPartialPaymentCountsAgainstEarlierBuckets(t *testing.T) {
	// GIVEN: The same row with 120 already paid (100 interest + 20 penalty)
	// WHEN: Tendering another 30
	// THEN: It completes the penalty bucket, not interest

	due := schedule.Date(2026, time.March, 15)
	rows := []loan.ScheduleRow{mkRow(1, 1, due, "850", "100", "50", "120")}

	alloc := loan.Allocate(rows, dec("30"), due)

	assert.True(t, alloc.InterestPart.IsZero())
	assertMoney(t, "30.00", alloc.PenaltyPart)
	assert.True(t, alloc.PrincipalPart.IsZero())
}

func TestAllocate_WalksRowsOldestFirstAndReportsSurplus(t *testing.T) {
	// GIVEN: Two rows of 100 principal each
	// WHEN: Tendering 250
	// THEN: Both rows are fully paid and 50 is surplus

	d1 := schedule.Date(2026, time.February, 15)
	d2 := schedule.Date(2026, time.March, 15)
	rows := []loan.ScheduleRow{
		mkRow(1, 1, d1, "100", "0", "0", "0"),
		mkRow(2, 2, d2, "100", "0", "0", "0"),
	}

	alloc := loan.Allocate(rows, dec("250"), d2)

	assertMoney(t, "200.00", alloc.PrincipalPart)
	assertMoney(t, "50.00", alloc.Surplus)
	require.Len(t, alloc.Rows, 2)
	for _, r := range alloc.Rows {
		assert.Equal(t, loan.RowPaid, r.Status)
		require.NotNil(t, r.PaidDate)
		assert.Equal(t, schedule.DateOnly(d2), *r.PaidDate)
	}
	assertMoney(t, "200.00", alloc.Total())
}

func TestAllocate_SkipsFullyPaidRows(t *testing.T) {
	d1 := schedule.Date(2026, time.February, 15)
	d2 := schedule.Date(2026, time.March, 15)
	paidRow := mkRow(1, 1, d1, "100", "10", "0", "110")
	paidRow.Status = loan.RowPaid
	rows := []loan.ScheduleRow{
		paidRow,
		mkRow(2, 2, d2, "100", "10", "0", "0"),
	}

	alloc := loan.Allocate(rows, dec("110"), d2)

	// The settled row is untouched; the tender lands entirely on row 2.
	require.Len(t, alloc.Rows, 1)
	assert.Equal(t, 2, alloc.Rows[0].PeriodNo)
	assertMoney(t, "10.00", alloc.InterestPart)
	assertMoney(t, "100.00", alloc.PrincipalPart)
	assert.True(t, alloc.Surplus.IsZero())
}

func TestAllocate_ZeroTenderTouchesNothing(t *testing.T) {
	due := schedule.Date(2026, time.March, 15)
	rows := []loan.ScheduleRow{mkRow(1, 1, due, "100", "10", "0", "0")}

	alloc := loan.Allocate(rows, decimal.Zero, due)

	assert.Empty(t, alloc.Rows)
	assert.True(t, alloc.Total().IsZero())
	assert.True(t, alloc.Surplus.IsZero())
}
