package shares_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coopfin/ledger-engine/schedule"
	"github.com/coopfin/ledger-engine/shares"
	"github.com/coopfin/ledger-engine/store/memory"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestService(t *testing.T) *shares.Service {
	t.Helper()
	return shares.NewService(memory.NewShareStore(), zap.NewNop())
}

func TestOpen_AssignsAccountNumberAndRecordsContribution(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	a, err := svc.Open(ctx, 7, dec("100"), schedule.Date(2026, time.March, 1))
	require.NoError(t, err)
	assert.Equal(t, "SH-000001", a.AccountNo)
	assert.Equal(t, shares.StatusActive, a.Status)
	assert.True(t, dec("100").Equal(a.Balance))

	_, txs, err := svc.Detail(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, shares.In, txs[0].Direction)
	assert.True(t, dec("100").Equal(txs[0].Amount))
}

func TestOpen_ZeroInitialHasNoLedgerEntry(t *testing.T) {
	svc := newTestService(t)
	a, err := svc.Open(context.Background(), 7, decimal.Zero, schedule.Date(2026, time.March, 1))
	require.NoError(t, err)
	assert.True(t, a.Balance.IsZero())

	_, txs, err := svc.Detail(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestApply_ContributionsAndPayoutsTrackTotals(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	a, err := svc.Open(ctx, 7, dec("100"), schedule.Date(2026, time.March, 1))
	require.NoError(t, err)

	require.NoError(t, svc.Apply(ctx, a.ID, dec("50"), shares.In, schedule.Date(2026, time.April, 1), "annual contribution"))
	require.NoError(t, svc.Apply(ctx, a.ID, dec("30"), shares.Out, schedule.Date(2026, time.May, 1), "partial payout"))

	got, txs, err := svc.Detail(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, dec("120").Equal(got.Balance))
	assert.True(t, dec("150").Equal(got.TotalIn))
	assert.True(t, dec("30").Equal(got.TotalOut))
	assert.Len(t, txs, 3)
}

func TestApply_PayoutBeyondBalanceRejected(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	a, err := svc.Open(ctx, 7, dec("100"), schedule.Date(2026, time.March, 1))
	require.NoError(t, err)

	err = svc.Apply(ctx, a.ID, dec("150"), shares.Out, schedule.Date(2026, time.April, 1), "")
	var ife *shares.InsufficientFundsError
	require.ErrorAs(t, err, &ife)
	assert.True(t, dec("100").Equal(ife.Balance))

	got, txs, err := svc.Detail(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, dec("100").Equal(got.Balance), "rejected payout must not move the balance")
	assert.Len(t, txs, 1)
}

func TestApply_ValidatesInput(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	a, err := svc.Open(ctx, 7, dec("100"), schedule.Date(2026, time.March, 1))
	require.NoError(t, err)

	err = svc.Apply(ctx, a.ID, dec("-5"), shares.In, schedule.Date(2026, time.April, 1), "")
	assert.ErrorIs(t, err, shares.ErrInvalidInput)

	err = svc.Apply(ctx, a.ID, dec("5"), "sideways", schedule.Date(2026, time.April, 1), "")
	assert.ErrorIs(t, err, shares.ErrInvalidInput)
}

func TestGet_UnknownAccount(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Get(context.Background(), 404)
	assert.ErrorIs(t, err, shares.ErrNotFound)
}
