package loan_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coopfin/ledger-engine/loan"
	"github.com/coopfin/ledger-engine/schedule"
	"github.com/coopfin/ledger-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestService(t *testing.T) (*loan.Service, *memory.LoanStore) {
	t.Helper()
	st := memory.NewLoanStore()
	return loan.NewService(st, zap.NewNop()), st
}

// standardLoan originates 120,000 at 12% over 12 months starting 2026-01-15.
// Installment 10,661.85; first due date 2026-02-15.
func standardLoan(t *testing.T, svc *loan.Service) *loan.Contract {
	t.Helper()
	c, rows, err := svc.Create(context.Background(), loan.CreateInput{
		ContractNo: "LN-0001",
		MemberID:   7,
		Amount:     dec("120000"),
		Rate:       dec("12"),
		TermMonths: 12,
		Convention: schedule.ConventionAnnuity,
		StartDate:  schedule.Date(2026, time.January, 15),
	})
	require.NoError(t, err)
	require.Len(t, rows, 12)
	return c
}

// =============================================================================
// ORIGINATION
// =============================================================================

func TestCreate_PersistsContractAndSchedule(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	c := standardLoan(t, svc)

	assert.Equal(t, loan.StatusActive, c.Status)
	assertMoney(t, "120000.00", c.Balance)
	assertMoney(t, "10661.85", c.MonthlyPayment)
	assert.Equal(t, schedule.Date(2027, time.January, 15), c.EndDate)

	got, rows, payments, err := svc.Detail(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ContractNo, got.ContractNo)
	require.Len(t, rows, 12)
	assert.Empty(t, payments)

	// Rows come back in period order with pending status.
	for i, r := range rows {
		assert.Equal(t, i+1, r.PeriodNo)
		assert.Equal(t, loan.RowPending, r.Status)
	}
	assertMoney(t, "1200.00", rows[0].Interest)
	assert.True(t, rows[11].BalanceAfter.IsZero())
}

func TestCreate_RejectsInvalidInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Create(ctx, loan.CreateInput{
		ContractNo: "LN-X", Amount: dec("-5"), Rate: dec("12"), TermMonths: 12,
		Convention: schedule.ConventionAnnuity, StartDate: schedule.Date(2026, time.January, 1),
	})
	assert.True(t, loan.IsValidation(err))

	_, _, err = svc.Create(ctx, loan.CreateInput{
		ContractNo: "LN-X", Amount: dec("1000"), Rate: dec("12"), TermMonths: 12,
		Convention: "bullet", StartDate: schedule.Date(2026, time.January, 1),
	})
	assert.True(t, loan.IsValidation(err))
}

func TestGet_UnknownLoan(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Get(context.Background(), 404)
	assert.ErrorIs(t, err, loan.ErrNotFound)
}

// =============================================================================
// REGULAR PAYMENTS
// =============================================================================

func TestApplyPayment_ExactInstallmentSettlesFirstRow(t *testing.T) {
	// GIVEN: A fresh standard loan
	// WHEN: Paying exactly one installment on its due date
	// THEN: Row 1 is paid, the parts split per the schedule, balance drops by principal

	svc, _ := newTestService(t)
	ctx := context.Background()
	c := standardLoan(t, svc)

	result, err := svc.ApplyPayment(ctx, c.ID, dec("10661.85"), schedule.Date(2026, time.February, 15))
	require.NoError(t, err)
	require.NotNil(t, result.Payment)
	assert.Nil(t, result.Choice)

	assertMoney(t, "1200.00", result.Payment.InterestPart)
	assertMoney(t, "9461.85", result.Payment.PrincipalPart)
	assert.True(t, result.Payment.PenaltyPart.IsZero())
	assertMoney(t, "110538.15", result.NewBalance)
	assert.False(t, result.Recalculated)
	assert.False(t, result.Closed)

	_, rows, payments, err := svc.Detail(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, loan.RowPaid, rows[0].Status)
	assert.Equal(t, loan.RowPending, rows[1].Status)
	require.Len(t, payments, 1)
	assert.Equal(t, loan.PaymentRegular, payments[0].Type)
}

func TestApplyPayment_PartialPaymentFillsInterestFirst(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	c := standardLoan(t, svc)

	result, err := svc.ApplyPayment(ctx, c.ID, dec("500"), schedule.Date(2026, time.February, 15))
	require.NoError(t, err)

	assertMoney(t, "500.00", result.Payment.InterestPart)
	assert.True(t, result.Payment.PrincipalPart.IsZero())
	assertMoney(t, "120000.00", result.NewBalance)

	_, rows, _, err := svc.Detail(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, loan.RowPartial, rows[0].Status)
	assertMoney(t, "500.00", rows[0].PaidAmount)
}

func TestApplyPayment_SmallSurplusAppliedToPrincipalAutomatically(t *testing.T) {
	// GIVEN: A standard loan
	// WHEN: Paying one installment plus 1,000 (below half an installment)
	// THEN: The surplus goes to principal and the schedule is rebuilt, no choice

	svc, _ := newTestService(t)
	ctx := context.Background()
	c := standardLoan(t, svc)

	result, err := svc.ApplyPayment(ctx, c.ID, dec("11661.85"), schedule.Date(2026, time.February, 15))
	require.NoError(t, err)
	assert.Nil(t, result.Choice)

	assertMoney(t, "10461.85", result.Payment.PrincipalPart) // 9461.85 + 1000 surplus
	assertMoney(t, "109538.15", result.NewBalance)
	assert.True(t, result.Recalculated)
	assertMoney(t, "10565.40", result.NewInstallment)
	assert.Len(t, result.Schedule, 11)
}

func TestApplyPayment_ValidationAndClosedGuards(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	c := standardLoan(t, svc)

	_, err := svc.ApplyPayment(ctx, c.ID, dec("0"), schedule.Date(2026, time.February, 15))
	assert.True(t, loan.IsValidation(err))

	_, err = svc.ApplyEarlyRepayment(ctx, c.ID, dec("120000"), schedule.Date(2026, time.February, 1), loan.StrategyReduceTerm)
	require.NoError(t, err)

	_, err = svc.ApplyPayment(ctx, c.ID, dec("100"), schedule.Date(2026, time.March, 15))
	assert.ErrorIs(t, err, loan.ErrClosed)
}

func TestApplyPayment_FinalPaymentClosesLoan(t *testing.T) {
	// GIVEN: A zero-rate 1,000 loan over 2 months
	// WHEN: Paying the full amount on the last due date
	// THEN: The loan closes and every row is paid

	svc, _ := newTestService(t)
	ctx := context.Background()
	c, _, err := svc.Create(ctx, loan.CreateInput{
		ContractNo: "LN-0002", MemberID: 7, Amount: dec("1000"), Rate: dec("0"),
		TermMonths: 2, Convention: schedule.ConventionAnnuity,
		StartDate: schedule.Date(2026, time.January, 15),
	})
	require.NoError(t, err)

	result, err := svc.ApplyPayment(ctx, c.ID, dec("1000"), schedule.Date(2026, time.March, 15))
	require.NoError(t, err)
	assert.True(t, result.Closed)
	assert.True(t, result.NewBalance.IsZero())

	got, rows, _, err := svc.Detail(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, loan.StatusClosed, got.Status)
	for _, r := range rows {
		assert.Equal(t, loan.RowPaid, r.Status)
	}
}

// =============================================================================
// SIGNIFICANT OVERPAYMENT - CHOICE FLOW
// =============================================================================

func TestApplyPayment_SignificantOverpaymentParksChoice(t *testing.T) {
	// GIVEN: A standard loan with nothing overdue
	// WHEN: Paying one installment plus 6,000 (beyond half an installment)
	// THEN: Nothing is applied; both strategy previews come back

	svc, _ := newTestService(t)
	ctx := context.Background()
	c := standardLoan(t, svc)

	result, err := svc.ApplyPayment(ctx, c.ID, dec("16661.85"), schedule.Date(2026, time.February, 15))
	require.NoError(t, err)
	require.NotNil(t, result.Choice)
	assert.Nil(t, result.Payment)
	assertMoney(t, "120000.00", result.NewBalance, "balance untouched while parked")

	choice := result.Choice
	assert.Equal(t, c.ID, choice.LoanID)
	assertMoney(t, "16661.85", choice.Amount)
	assert.Equal(t, 11, choice.ReducePayment.Periods)
	assert.Less(t, choice.ReduceTerm.Periods, 11)

	// No payment record, no row changes.
	_, rows, payments, err := svc.Detail(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)
	assert.Equal(t, loan.RowPending, rows[0].Status)
}

func TestApplyPayment_RejectedWhileChoicePending(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	c := standardLoan(t, svc)

	_, err := svc.ApplyPayment(ctx, c.ID, dec("16661.85"), schedule.Date(2026, time.February, 15))
	require.NoError(t, err)

	_, err = svc.ApplyPayment(ctx, c.ID, dec("100"), schedule.Date(2026, time.February, 16))
	assert.ErrorIs(t, err, loan.ErrChoicePending)
}

func TestResolveOverpayment_ReducePayment(t *testing.T) {
	// GIVEN: A parked 16,661.85 overpayment
	// WHEN: Resolving with reduce_payment
	// THEN: Surplus retires principal, same period count, lower installment

	svc, _ := newTestService(t)
	ctx := context.Background()
	c := standardLoan(t, svc)

	_, err := svc.ApplyPayment(ctx, c.ID, dec("16661.85"), schedule.Date(2026, time.February, 15))
	require.NoError(t, err)

	result, err := svc.ResolveOverpaymentChoice(ctx, c.ID, loan.StrategyReducePayment)
	require.NoError(t, err)
	require.NotNil(t, result.Payment)
	assert.Nil(t, result.Choice)

	// 9,461.85 contractual principal + 6,000 surplus.
	assertMoney(t, "104538.15", result.NewBalance)
	assert.True(t, result.Recalculated)
	assert.Len(t, result.Schedule, 11)
	assertMoney(t, "10083.13", result.NewInstallment)

	// The parked choice is gone; the next payment goes through normally.
	_, err = svc.ApplyPayment(ctx, c.ID, result.NewInstallment, schedule.Date(2026, time.March, 15))
	assert.NoError(t, err)
}

func TestResolveOverpayment_ReduceTermKeepsInstallmentNearPrior(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	c := standardLoan(t, svc)

	_, err := svc.ApplyPayment(ctx, c.ID, dec("16661.85"), schedule.Date(2026, time.February, 15))
	require.NoError(t, err)

	result, err := svc.ResolveOverpaymentChoice(ctx, c.ID, loan.StrategyReduceTerm)
	require.NoError(t, err)
	assert.True(t, result.Recalculated)
	assert.Less(t, len(result.Schedule), 11, "term must shrink")

	// Reduce-term trades fewer periods for an installment within 110% of the old one.
	ceiling := dec("10661.85").Mul(dec("1.1"))
	assert.True(t, result.NewInstallment.LessThanOrEqual(ceiling),
		"installment %s must stay within 110%% of the prior one", result.NewInstallment)
}

func TestResolveOverpayment_NoPendingChoice(t *testing.T) {
	svc, _ := newTestService(t)
	c := standardLoan(t, svc)

	_, err := svc.ResolveOverpaymentChoice(context.Background(), c.ID, loan.StrategyReduceTerm)
	assert.ErrorIs(t, err, loan.ErrNoPendingChoice)
}

func TestApplyPayment_LargeSurplusWithOverdueRowsAppliesImmediately(t *testing.T) {
	// GIVEN: A loan with row 1 already past due
	// WHEN: Paying both due rows plus a large surplus
	// THEN: No choice is requested; arrears take priority and surplus retires principal

	svc, _ := newTestService(t)
	ctx := context.Background()
	c := standardLoan(t, svc)

	result, err := svc.ApplyPayment(ctx, c.ID, dec("27323.70"), schedule.Date(2026, time.March, 20))
	require.NoError(t, err)
	assert.Nil(t, result.Choice)
	require.NotNil(t, result.Payment)

	// Rows 1-2 contractual principal (9,461.85 + 9,556.47) + 6,000 surplus.
	assertMoney(t, "94981.68", result.NewBalance)
	assert.True(t, result.Recalculated)
}

// =============================================================================
// EARLY REPAYMENT
// =============================================================================

func TestEarlyRepayment_FullAmountClosesLoan(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	c := standardLoan(t, svc)

	result, err := svc.ApplyEarlyRepayment(ctx, c.ID, dec("120000"), schedule.Date(2026, time.February, 1), loan.StrategyReduceTerm)
	require.NoError(t, err)
	assert.True(t, result.Closed)
	assert.True(t, result.NewBalance.IsZero())
	assert.Equal(t, loan.PaymentEarlyFull, result.Payment.Type)
	assertMoney(t, "120000.00", result.Payment.PrincipalPart)

	got, rows, _, err := svc.Detail(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, loan.StatusClosed, got.Status)
	for _, r := range rows {
		assert.Equal(t, loan.RowPaid, r.Status)
	}
}

func TestEarlyRepayment_PartialReducePayment(t *testing.T) {
	// GIVEN: A standard loan before its first due date
	// WHEN: Repaying 20,000 with reduce_payment
	// THEN: Same remaining period count, installment recomputed on the lower balance

	svc, _ := newTestService(t)
	ctx := context.Background()
	c := standardLoan(t, svc)

	result, err := svc.ApplyEarlyRepayment(ctx, c.ID, dec("20000"), schedule.Date(2026, time.February, 1), loan.StrategyReducePayment)
	require.NoError(t, err)
	assert.False(t, result.Closed)
	assert.Equal(t, loan.PaymentEarlyPartial, result.Payment.Type)
	assertMoney(t, "100000.00", result.NewBalance)
	assert.True(t, result.Recalculated)
	assert.Len(t, result.Schedule, 12)
	assertMoney(t, "8884.88", result.NewInstallment)
}

func TestEarlyRepayment_PartialReduceTerm(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	c := standardLoan(t, svc)

	result, err := svc.ApplyEarlyRepayment(ctx, c.ID, dec("20000"), schedule.Date(2026, time.February, 1), loan.StrategyReduceTerm)
	require.NoError(t, err)
	assertMoney(t, "100000.00", result.NewBalance)

	// Shortest term whose installment stays within 110% of 10,661.85: 9 periods.
	assert.Len(t, result.Schedule, 9)
	assertMoney(t, "11674.04", result.NewInstallment)
}

// =============================================================================
// RATE AND TERM CHANGES
// =============================================================================

func TestChangeRate_RebuildsUnpaidRemainderOnly(t *testing.T) {
	// GIVEN: A standard loan with period 1 paid
	// WHEN: Dropping the rate to 6%
	// THEN: Paid history survives, periods 2..12 are regenerated at the new rate

	svc, _ := newTestService(t)
	ctx := context.Background()
	c := standardLoan(t, svc)

	_, err := svc.ApplyPayment(ctx, c.ID, dec("10661.85"), schedule.Date(2026, time.February, 15))
	require.NoError(t, err)

	result, err := svc.ChangeRate(ctx, c.ID, dec("6"), schedule.Date(2026, time.February, 20), "board decision")
	require.NoError(t, err)
	assert.True(t, result.Recalculated)
	assertMoney(t, "10352.90", result.NewInstallment)

	got, rows, _, err := svc.Detail(ctx, c.ID)
	require.NoError(t, err)
	assertMoney(t, "6", got.Rate)
	require.Len(t, rows, 12)
	assert.Equal(t, loan.RowPaid, rows[0].Status)
	assert.Equal(t, 2, rows[1].PeriodNo, "numbering continues after the paid period")
	// New remainder anchors on the paid row's due date.
	assert.Equal(t, schedule.Date(2026, time.March, 15), rows[1].DueDate)
	// Interest on 110,538.15 at 0.5% monthly.
	assertMoney(t, "552.69", rows[1].Interest)
}

func TestChangeTerm_ExtendsRemainingSchedule(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	c := standardLoan(t, svc)

	_, err := svc.ApplyPayment(ctx, c.ID, dec("10661.85"), schedule.Date(2026, time.February, 15))
	require.NoError(t, err)

	result, err := svc.ChangeTerm(ctx, c.ID, 18, schedule.Date(2026, time.February, 20))
	require.NoError(t, err)
	assert.Len(t, result.Schedule, 17)
	assertMoney(t, "7102.97", result.NewInstallment)

	got, rows, _, err := svc.Detail(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 18, got.TermMonths)
	assert.Len(t, rows, 18)
	// 17 remaining periods anchored on the paid row's 2026-02-15 due date.
	assert.Equal(t, schedule.Date(2027, time.July, 15), got.EndDate)
}

func TestChangeTerm_RejectsTermInsidePaidPeriods(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	c := standardLoan(t, svc)

	_, err := svc.ApplyPayment(ctx, c.ID, dec("10661.85"), schedule.Date(2026, time.February, 15))
	require.NoError(t, err)

	_, err = svc.ChangeTerm(ctx, c.ID, 1, schedule.Date(2026, time.February, 20))
	assert.True(t, loan.IsValidation(err))
}

// txGuardStore fails any schedule read that arrives on the base handle while
// a transaction is open, so a read escaping the WithTx boundary fails loudly
// instead of silently returning a stale snapshot.
type txGuardStore struct {
	*memory.LoanStore
	inTx bool
}

func (g *txGuardStore) WithTx(ctx context.Context, fn func(loan.Store) error) error {
	g.inTx = true
	defer func() { g.inTx = false }()
	return g.LoanStore.WithTx(ctx, fn)
}

func (g *txGuardStore) ScheduleRows(ctx context.Context, loanID int64) ([]loan.ScheduleRow, error) {
	if g.inTx {
		return nil, errors.New("schedule read escaped the open transaction")
	}
	return g.LoanStore.ScheduleRows(ctx, loanID)
}

func TestChangeTerm_ReadsScheduleThroughTransaction(t *testing.T) {
	// GIVEN: A store that rejects schedule reads bypassing an open transaction
	// WHEN: Changing the term after one paid installment
	// THEN: The restructure completes using the tx-scoped handle alone

	st := &txGuardStore{LoanStore: memory.NewLoanStore()}
	svc := loan.NewService(st, zap.NewNop())
	ctx := context.Background()
	c := standardLoan(t, svc)

	_, err := svc.ApplyPayment(ctx, c.ID, dec("10661.85"), schedule.Date(2026, time.February, 15))
	require.NoError(t, err)

	result, err := svc.ChangeTerm(ctx, c.ID, 18, schedule.Date(2026, time.February, 20))
	require.NoError(t, err)
	assert.Len(t, result.Schedule, 17)
	assertMoney(t, "7102.97", result.NewInstallment)
}

// =============================================================================
// OVERDUE SWEEP
// =============================================================================

func TestSweepOverdue_FlagsRowsAndContract(t *testing.T) {
	// GIVEN: A loan whose first two due dates have passed unpaid
	// WHEN: Sweeping as of 2026-04-01
	// THEN: Those rows flag overdue with day counts and the contract follows

	svc, _ := newTestService(t)
	ctx := context.Background()
	c := standardLoan(t, svc)

	flagged, err := svc.SweepOverdue(ctx, schedule.Date(2026, time.April, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, flagged)

	got, rows, _, err := svc.Detail(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, loan.StatusOverdue, got.Status)
	assert.Equal(t, loan.RowOverdue, rows[0].Status)
	assert.Equal(t, 45, rows[0].OverdueDays) // Feb 15 -> Apr 1
	assert.Equal(t, loan.RowOverdue, rows[1].Status)
	assert.Equal(t, loan.RowPending, rows[2].Status)
}

func TestSweepOverdue_PayingArrearsRestoresActive(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	c := standardLoan(t, svc)

	_, err := svc.SweepOverdue(ctx, schedule.Date(2026, time.April, 1))
	require.NoError(t, err)

	// Clear both overdue rows.
	_, err = svc.ApplyPayment(ctx, c.ID, dec("21323.70"), schedule.Date(2026, time.April, 1))
	require.NoError(t, err)

	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, loan.StatusActive, got.Status)
}

func TestSweepOverdue_IgnoresDriftRowsOfClosedLoans(t *testing.T) {
	// GIVEN: A closed loan carrying a leftover unpaid row from historical drift
	// WHEN: Sweeping well past that row's due date
	// THEN: Nothing is flagged and the contract stays closed

	svc, st := newTestService(t)
	ctx := context.Background()
	c := standardLoan(t, svc)

	_, err := svc.ApplyEarlyRepayment(ctx, c.ID, dec("120000"), schedule.Date(2026, time.February, 1), loan.StrategyReduceTerm)
	require.NoError(t, err)

	require.NoError(t, st.InsertScheduleRows(ctx, []loan.ScheduleRow{{
		LoanID:   c.ID,
		PeriodNo: 13,
		DueDate:  schedule.Date(2026, time.February, 15),
		Status:   loan.RowPending,
	}}))

	flagged, err := svc.SweepOverdue(ctx, schedule.Date(2026, time.April, 1))
	require.NoError(t, err)
	assert.Zero(t, flagged)

	got, rows, _, err := svc.Detail(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, loan.StatusClosed, got.Status)
	assert.Equal(t, loan.RowPending, rows[len(rows)-1].Status)
}

// =============================================================================
// RECONCILIATION INVARIANT
// =============================================================================

func TestBalanceEqualsAmountMinusRecordedPrincipal(t *testing.T) {
	// GIVEN: A mix of regular, partial and surplus payments
	// THEN: original amount - sum(principal parts) == live balance, always

	svc, _ := newTestService(t)
	ctx := context.Background()
	c := standardLoan(t, svc)

	_, err := svc.ApplyPayment(ctx, c.ID, dec("10661.85"), schedule.Date(2026, time.February, 15))
	require.NoError(t, err)
	_, err = svc.ApplyPayment(ctx, c.ID, dec("500"), schedule.Date(2026, time.March, 10))
	require.NoError(t, err)
	_, err = svc.ApplyPayment(ctx, c.ID, dec("12000"), schedule.Date(2026, time.March, 15))
	require.NoError(t, err)

	got, _, payments, err := svc.Detail(ctx, c.ID)
	require.NoError(t, err)

	paidPrincipal := decimal.Zero
	for _, p := range payments {
		paidPrincipal = paidPrincipal.Add(p.PrincipalPart)
	}
	assert.True(t, got.Amount.Sub(paidPrincipal).Equal(got.Balance),
		"amount %s - principal %s != balance %s", got.Amount, paidPrincipal, got.Balance)
}
