package savings_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopfin/ledger-engine/savings"
	"github.com/coopfin/ledger-engine/schedule"
)

// =============================================================================
// DAILY ACCRUAL
// =============================================================================

func TestAccrueDaily_WritesOneRowPerContractDay(t *testing.T) {
	// GIVEN: The standard 50,000 @ 8% contract started Jan 10
	// WHEN: Accruing Jan 11
	// THEN: One ledger row at 50000 * 8% / 365 and the running total moves

	svc, st := newTestService(t)
	ctx := context.Background()
	c := standardContract(t, svc)

	result, err := svc.AccrueDaily(ctx, schedule.Date(2026, time.January, 11))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Zero(t, result.Skipped)
	assertMoney(t, "10.96", result.TotalAccrued)

	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assertMoney(t, "10.96", got.AccruedInterest)

	rows, err := st.DailyAccruals(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assertMoney(t, "50000.00", rows[0].Balance)
	assertMoney(t, "8", rows[0].Rate)
	assert.Equal(t, schedule.Date(2026, time.January, 11), rows[0].Date)
}

func TestAccrueDaily_RerunIsNoOp(t *testing.T) {
	// The (contract, day) uniqueness is the idempotency key: a crashed run
	// can simply be restarted.

	svc, st := newTestService(t)
	ctx := context.Background()
	c := standardContract(t, svc)

	day := schedule.Date(2026, time.January, 11)
	_, err := svc.AccrueDaily(ctx, day)
	require.NoError(t, err)

	result, err := svc.AccrueDaily(ctx, day)
	require.NoError(t, err)
	assert.Zero(t, result.Processed)
	assert.Equal(t, 1, result.Skipped)

	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assertMoney(t, "10.96", got.AccruedInterest, "running total must not double-count")

	rows, err := st.DailyAccruals(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestAccrueDaily_SkipsStartDateAndNonActiveContracts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	c := standardContract(t, svc)

	// No interest for the opening day itself.
	result, err := svc.AccrueDaily(ctx, schedule.Date(2026, time.January, 10))
	require.NoError(t, err)
	assert.Zero(t, result.Processed)
	assert.Equal(t, 1, result.Skipped)

	// A closed contract drops out of the run entirely.
	_, err = svc.EarlyClose(ctx, c.ID, schedule.Date(2026, time.January, 20))
	require.NoError(t, err)

	result, err = svc.AccrueDaily(ctx, schedule.Date(2026, time.January, 21))
	require.NoError(t, err)
	assert.Zero(t, result.Processed)
	assert.Zero(t, result.Skipped)
}

func TestAccrueDaily_UsesCurrentRate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	c := standardContract(t, svc)

	require.NoError(t, svc.ChangeRate(ctx, c.ID, dec("4"), schedule.Date(2026, time.January, 20), "repricing"))

	result, err := svc.AccrueDaily(ctx, schedule.Date(2026, time.January, 21))
	require.NoError(t, err)
	// 50000 * 4% / 365.
	assertMoney(t, "5.48", result.TotalAccrued)
}

// =============================================================================
// BACKFILL
// =============================================================================

func TestBackfill_FillsOnlyMissingDays(t *testing.T) {
	// GIVEN: Jan 12 already accrued
	// WHEN: Backfilling Jan 11-13
	// THEN: Only the two missing days are written

	svc, st := newTestService(t)
	ctx := context.Background()
	c := standardContract(t, svc)

	_, err := svc.AccrueDaily(ctx, schedule.Date(2026, time.January, 12))
	require.NoError(t, err)

	result, err := svc.Backfill(ctx, c.ID, schedule.Date(2026, time.January, 11), schedule.Date(2026, time.January, 13))
	require.NoError(t, err)
	assert.Equal(t, 2, result.DaysAccrued)
	assertMoney(t, "21.92", result.TotalAmount)

	rows, err := st.DailyAccruals(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assertMoney(t, "32.88", got.AccruedInterest)
}

func TestBackfill_ReplaysRetroactiveDeposits(t *testing.T) {
	// GIVEN: A deposit entered with a back-dated value date of Jan 12
	// WHEN: Backfilling Jan 11-13
	// THEN: Jan 11 accrues on 50,000; Jan 12-13 on 60,000

	svc, st := newTestService(t)
	ctx := context.Background()
	c := standardContract(t, svc)

	require.NoError(t, svc.Deposit(ctx, c.ID, dec("10000"), schedule.Date(2026, time.January, 12), false, "back-dated"))

	result, err := svc.Backfill(ctx, c.ID, schedule.Date(2026, time.January, 11), schedule.Date(2026, time.January, 13))
	require.NoError(t, err)
	assert.Equal(t, 3, result.DaysAccrued)
	// 10.96 + 13.15 + 13.15
	assertMoney(t, "37.26", result.TotalAmount)

	rows, err := st.DailyAccruals(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assertMoney(t, "50000.00", rows[0].Balance)
	assertMoney(t, "60000.00", rows[1].Balance)
	assertMoney(t, "60000.00", rows[2].Balance)
}

func TestBackfill_RejectsInvertedRange(t *testing.T) {
	svc, _ := newTestService(t)
	c := standardContract(t, svc)

	_, err := svc.Backfill(context.Background(), c.ID,
		schedule.Date(2026, time.February, 1), schedule.Date(2026, time.January, 1))
	assert.True(t, savings.IsValidation(err))
}

// =============================================================================
// INTEREST PAYOUT
// =============================================================================

func TestPayoutInterest_CappedAtPreviousMonthEnd(t *testing.T) {
	// GIVEN: 21 accrued days in January (230.16)
	// WHEN: Paying out in early February
	// THEN: Up to 230.16 is payable; anything beyond is rejected untouched

	svc, _ := newTestService(t)
	ctx := context.Background()
	c := standardContract(t, svc)

	_, err := svc.Backfill(ctx, c.ID, schedule.Date(2026, time.January, 11), schedule.Date(2026, time.January, 31))
	require.NoError(t, err)

	err = svc.PayoutInterest(ctx, c.ID, dec("300"), schedule.Date(2026, time.February, 5), true)
	var pce *savings.PayoutCapError
	require.ErrorAs(t, err, &pce)
	assertMoney(t, "230.16", pce.Payable)

	require.NoError(t, svc.PayoutInterest(ctx, c.ID, dec("230.16"), schedule.Date(2026, time.February, 5), true))

	got, _, txs, err := svc.Detail(ctx, c.ID)
	require.NoError(t, err)
	assertMoney(t, "230.16", got.PaidInterest)
	last := txs[len(txs)-1]
	assert.Equal(t, savings.TxInterestPayout, last.Type)

	// Everything payable is out; the next payout has nothing to draw on.
	err = svc.PayoutInterest(ctx, c.ID, dec("0.01"), schedule.Date(2026, time.February, 6), true)
	assert.ErrorAs(t, err, &pce)
}

func TestPayoutInterest_CurrentMonthAccrualsNotPayable(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	c := standardContract(t, svc)

	// Accruals exist only for the current month.
	_, err := svc.AccrueDaily(ctx, schedule.Date(2026, time.January, 11))
	require.NoError(t, err)

	err = svc.PayoutInterest(ctx, c.ID, dec("10"), schedule.Date(2026, time.January, 20), true)
	var pce *savings.PayoutCapError
	require.ErrorAs(t, err, &pce)
	assert.True(t, pce.Payable.IsZero())
}

// =============================================================================
// EARLY CLOSE
// =============================================================================

func TestEarlyClose_PunitiveRateAndClawback(t *testing.T) {
	// GIVEN: 230.16 accrued, 100 already paid out
	// WHEN: Closing early (retained interest 0.1% of opening = 50.00)
	// THEN: The 50 overpaid beyond the retained interest is clawed back

	svc, _ := newTestService(t)
	ctx := context.Background()
	c := standardContract(t, svc)

	_, err := svc.Backfill(ctx, c.ID, schedule.Date(2026, time.January, 11), schedule.Date(2026, time.January, 31))
	require.NoError(t, err)
	require.NoError(t, svc.PayoutInterest(ctx, c.ID, dec("100"), schedule.Date(2026, time.February, 5), true))

	result, err := svc.EarlyClose(ctx, c.ID, schedule.Date(2026, time.February, 10))
	require.NoError(t, err)
	assertMoney(t, "50.00", result.EarlyInterest)
	assertMoney(t, "49950.00", result.FinalAmount)

	got, _, txs, err := svc.Detail(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, savings.StatusEarlyClosed, got.Status)
	last := txs[len(txs)-1]
	assert.Equal(t, savings.TxEarlyClose, last.Type)

	// The contract no longer accepts movements.
	err = svc.Deposit(ctx, c.ID, dec("100"), schedule.Date(2026, time.February, 11), true, "")
	assert.ErrorIs(t, err, savings.ErrNotActive)
}

func TestEarlyClose_NoClawbackWhenNothingPaidOut(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	c := standardContract(t, svc)

	result, err := svc.EarlyClose(ctx, c.ID, schedule.Date(2026, time.January, 20))
	require.NoError(t, err)
	assertMoney(t, "50.00", result.EarlyInterest)
	assertMoney(t, "50000.00", result.FinalAmount)
}
