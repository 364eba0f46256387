package loan_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopfin/ledger-engine/loan"
	"github.com/coopfin/ledger-engine/schedule"
)

// =============================================================================
// ADMINISTRATIVE REPAIR
// =============================================================================

func TestRepair_RemovesDuplicatePeriodRows(t *testing.T) {
	// GIVEN: A loan whose schedule carries a duplicate of period 1
	// WHEN: Running repair
	// THEN: One row per period survives, the paid one preferred

	svc, st := newTestService(t)
	ctx := context.Background()
	c, _, err := svc.Create(ctx, loan.CreateInput{
		ContractNo: "LN-0010", MemberID: 3, Amount: dec("1000"), Rate: dec("0"),
		TermMonths: 2, Convention: schedule.ConventionAnnuity,
		StartDate: schedule.Date(2027, time.January, 15),
	})
	require.NoError(t, err)

	_, err = svc.ApplyPayment(ctx, c.ID, dec("500"), schedule.Date(2027, time.February, 15))
	require.NoError(t, err)

	// A historical double insert left a second pending period-1 row.
	rows, err := st.ScheduleRows(ctx, c.ID)
	require.NoError(t, err)
	dup := rows[0]
	dup.ID = 0
	dup.Status = loan.RowPending
	dup.PaidAmount = decimal.Zero
	dup.PaidDate = nil
	require.NoError(t, st.InsertScheduleRows(ctx, []loan.ScheduleRow{dup}))

	result, err := svc.Repair(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.RemovedDuplicates)
	assertMoney(t, "500.00", result.NewBalance)

	rows, err = st.ScheduleRows(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, loan.RowPaid, rows[0].Status, "replay restores period 1 as paid")
	assert.Equal(t, loan.RowPending, rows[1].Status)
}

func TestRepair_RederivesBalanceAndRowsFromPaymentHistory(t *testing.T) {
	// GIVEN: Schedule rows drifted away from the recorded payments
	// WHEN: Running repair
	// THEN: Payments are the ground truth; rows and balance are rebuilt from them

	svc, st := newTestService(t)
	ctx := context.Background()
	c := standardLoan(t, svc)

	_, err := svc.ApplyPayment(ctx, c.ID, dec("10661.85"), schedule.Date(2026, time.February, 15))
	require.NoError(t, err)

	// Drift: a missed update left period 2 looking mostly paid and the
	// contract balance wrong.
	rows, err := st.ScheduleRows(ctx, c.ID)
	require.NoError(t, err)
	rows[1].PaidAmount = dec("9999")
	rows[1].Status = loan.RowPartial
	require.NoError(t, st.UpdateScheduleRow(ctx, &rows[1]))

	drifted, err := st.GetContract(ctx, c.ID)
	require.NoError(t, err)
	drifted.Balance = dec("77777.77")
	require.NoError(t, st.UpdateContract(ctx, drifted))

	result, err := svc.Repair(ctx, c.ID)
	require.NoError(t, err)
	assert.Zero(t, result.RemovedDuplicates)
	// 120,000 - the one recorded principal part of 9,461.85.
	assertMoney(t, "110538.15", result.NewBalance)

	rows, err = st.ScheduleRows(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, loan.RowPaid, rows[0].Status)
	assert.Equal(t, loan.RowPending, rows[1].Status, "drifted paid amount wiped by replay")
	assert.True(t, rows[1].PaidAmount.IsZero())
}

func TestRepair_ClosesLoanWhenHistoryCoversPrincipal(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	c, _, err := svc.Create(ctx, loan.CreateInput{
		ContractNo: "LN-0011", MemberID: 3, Amount: dec("1000"), Rate: dec("0"),
		TermMonths: 2, Convention: schedule.ConventionAnnuity,
		StartDate: schedule.Date(2027, time.January, 15),
	})
	require.NoError(t, err)

	_, err = svc.ApplyPayment(ctx, c.ID, dec("1000"), schedule.Date(2027, time.March, 15))
	require.NoError(t, err)

	// Drift the contract open again; repair must re-close it from history.
	drifted, err := st.GetContract(ctx, c.ID)
	require.NoError(t, err)
	drifted.Balance = dec("1000")
	drifted.Status = loan.StatusActive
	require.NoError(t, st.UpdateContract(ctx, drifted))

	result, err := svc.Repair(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, result.NewBalance.IsZero())

	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, loan.StatusClosed, got.Status)
}

// =============================================================================
// PAYMENT CORRECTIONS
// =============================================================================

func TestDeletePayment_RestoresPrincipalToBalance(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	c := standardLoan(t, svc)

	result, err := svc.ApplyPayment(ctx, c.ID, dec("10661.85"), schedule.Date(2026, time.February, 15))
	require.NoError(t, err)
	assertMoney(t, "110538.15", result.NewBalance)

	require.NoError(t, svc.DeletePayment(ctx, result.Payment.ID))

	got, _, payments, err := svc.Detail(ctx, c.ID)
	require.NoError(t, err)
	assertMoney(t, "120000.00", got.Balance)
	assert.Empty(t, payments)
}

func TestDeletePayment_ReopensClosedLoan(t *testing.T) {
	// GIVEN: A loan closed by its final payment
	// WHEN: That payment is deleted
	// THEN: The principal returns and the loan reopens

	svc, _ := newTestService(t)
	ctx := context.Background()
	c, _, err := svc.Create(ctx, loan.CreateInput{
		ContractNo: "LN-0012", MemberID: 3, Amount: dec("1000"), Rate: dec("0"),
		TermMonths: 2, Convention: schedule.ConventionAnnuity,
		StartDate: schedule.Date(2027, time.January, 15),
	})
	require.NoError(t, err)

	result, err := svc.ApplyPayment(ctx, c.ID, dec("1000"), schedule.Date(2027, time.March, 15))
	require.NoError(t, err)
	assert.True(t, result.Closed)

	require.NoError(t, svc.DeletePayment(ctx, result.Payment.ID))

	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, loan.StatusActive, got.Status)
	assertMoney(t, "1000.00", got.Balance)
}

func TestUpdatePayment_PrincipalDeltaShiftsBalance(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	c := standardLoan(t, svc)

	result, err := svc.ApplyPayment(ctx, c.ID, dec("10661.85"), schedule.Date(2026, time.February, 15))
	require.NoError(t, err)

	// Teller keyed the split wrong; principal was really 9,000.
	newPrincipal := dec("9000")
	newInterest := dec("1661.85")
	err = svc.UpdatePayment(ctx, loan.PaymentUpdate{
		PaymentID:     result.Payment.ID,
		PrincipalPart: &newPrincipal,
		InterestPart:  &newInterest,
	})
	require.NoError(t, err)

	got, _, payments, err := svc.Detail(ctx, c.ID)
	require.NoError(t, err)
	// 461.85 less principal retired than before.
	assertMoney(t, "111000.00", got.Balance)
	require.Len(t, payments, 1)
	assertMoney(t, "9000.00", payments[0].PrincipalPart)
	assertMoney(t, "1661.85", payments[0].InterestPart)
}

func TestUpdatePayment_UnknownPayment(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.UpdatePayment(context.Background(), loan.PaymentUpdate{PaymentID: "missing"})
	assert.ErrorIs(t, err, loan.ErrNotFound)
}
