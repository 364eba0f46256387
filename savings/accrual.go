package savings

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/coopfin/ledger-engine/schedule"
)

// =============================================================================
// DAILY ACCRUAL LEDGER
// =============================================================================
// One row per (contract, calendar day), holding the balance, rate and the
// day's simple interest: balance * rate / 100 / 365, rounded half-up. The
// contract's accrued_interest is the running sum of these rows. The
// uniqueness of (contract, day) is the idempotency key that makes reruns
// and crash-resumption safe.

// AccrualResult summarizes one daily run.
type AccrualResult struct {
	Date         time.Time       `json:"date"`
	Processed    int             `json:"processed"`
	Skipped      int             `json:"skipped"`
	TotalAccrued decimal.Decimal `json:"total_accrued"`
}

// BackfillResult summarizes a gap backfill.
type BackfillResult struct {
	DaysAccrued int             `json:"days_accrued"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// AccrueDaily accrues one day's interest on every active contract. A
// contract is skipped when its balance is non-positive, the date is not
// after its start date, the amount rounds to zero, or a row for that day
// already exists. Contracts commit independently, so a partially completed
// run can simply be rerun.
func (s *Service) AccrueDaily(ctx context.Context, date time.Time) (*AccrualResult, error) {
	day := schedule.DateOnly(date)
	contracts, err := s.store.ListActiveContracts(ctx)
	if err != nil {
		return nil, err
	}

	result := &AccrualResult{Date: day, TotalAccrued: decimal.Zero}
	for i := range contracts {
		c := contracts[i]
		accrued, err := s.accrueOne(ctx, &c, day)
		if err != nil {
			return result, err
		}
		if accrued == nil {
			result.Skipped++
			continue
		}
		result.Processed++
		result.TotalAccrued = result.TotalAccrued.Add(*accrued)
	}

	s.log.Info("daily accrual run",
		zap.String("date", day.Format("2006-01-02")),
		zap.Int("processed", result.Processed),
		zap.Int("skipped", result.Skipped),
		zap.String("total", result.TotalAccrued.StringFixed(2)))
	return result, nil
}

// accrueOne accrues a single contract for a single day inside its own
// transaction. Returns nil when the day was skipped.
func (s *Service) accrueOne(ctx context.Context, c *Contract, day time.Time) (*decimal.Decimal, error) {
	if !c.CurrentBalance.IsPositive() {
		return nil, nil
	}
	if !day.After(c.StartDate) {
		return nil, nil
	}
	amount := dailyInterest(c.CurrentBalance, c.Rate)
	if !amount.IsPositive() {
		return nil, nil
	}

	var accrued *decimal.Decimal
	err := s.store.WithTx(ctx, func(st Store) error {
		exists, err := st.DailyAccrualExists(ctx, c.ID, day)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		if err := st.InsertDailyAccrual(ctx, &DailyAccrual{
			SavingID: c.ID,
			Date:     day,
			Balance:  c.CurrentBalance,
			Rate:     c.Rate,
			Amount:   amount,
		}); err != nil {
			return err
		}
		fresh, err := st.GetContract(ctx, c.ID)
		if err != nil {
			return err
		}
		fresh.AccruedInterest = fresh.AccruedInterest.Add(amount)
		if err := st.UpdateContract(ctx, fresh); err != nil {
			return err
		}
		accrued = &amount
		return nil
	})
	if err != nil {
		return nil, err
	}
	return accrued, nil
}

// Backfill reconstructs the balance for each day in [from, to] by replaying
// the contract's transactions and rate changes, and inserts any missing
// daily rows. Existing rows are left alone, so a backfill never
// double-counts. Used after transactions are entered retroactively.
func (s *Service) Backfill(ctx context.Context, id int64, from, to time.Time) (*BackfillResult, error) {
	fromDay := schedule.DateOnly(from)
	toDay := schedule.DateOnly(to)
	if toDay.Before(fromDay) {
		return nil, &ValidationError{Field: "date_to", Message: "must not precede date_from"}
	}

	result := &BackfillResult{TotalAmount: decimal.Zero}
	err := s.store.WithTx(ctx, func(st Store) error {
		c, err := st.GetContract(ctx, id)
		if err != nil {
			return err
		}

		txs, err := st.Transactions(ctx, id)
		if err != nil {
			return err
		}
		rateChanges, err := st.RateChanges(ctx, id)
		if err != nil {
			return err
		}

		replay := newHistoryReplay(c, txs, rateChanges)
		totalNew := decimal.Zero

		for day := fromDay; !day.After(toDay); day = day.AddDate(0, 0, 1) {
			balance, rate := replay.positionOn(day)
			if !day.After(c.StartDate) || !balance.IsPositive() {
				continue
			}
			amount := dailyInterest(balance, rate)
			if !amount.IsPositive() {
				continue
			}
			exists, err := st.DailyAccrualExists(ctx, id, day)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			if err := st.InsertDailyAccrual(ctx, &DailyAccrual{
				SavingID: id,
				Date:     day,
				Balance:  balance,
				Rate:     rate,
				Amount:   amount,
			}); err != nil {
				return err
			}
			result.DaysAccrued++
			result.TotalAmount = result.TotalAmount.Add(amount)
			totalNew = totalNew.Add(amount)
		}

		if totalNew.IsPositive() {
			c.AccruedInterest = c.AccruedInterest.Add(totalNew)
			return st.UpdateContract(ctx, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("accrual backfill",
		zap.Int64("saving_id", id),
		zap.Int("days", result.DaysAccrued),
		zap.String("total", result.TotalAmount.StringFixed(2)))
	return result, nil
}

func dailyInterest(balance, ratePct decimal.Decimal) decimal.Decimal {
	return schedule.RoundMoney(balance.Mul(ratePct).Div(decimal.NewFromInt(100)).Div(decimal.NewFromInt(365)))
}

// =============================================================================
// HISTORY REPLAY - balance/rate reconstruction for backfill
// =============================================================================

type historyEvent struct {
	at      time.Time
	delta   decimal.Decimal
	newRate *decimal.Decimal
}

type historyReplay struct {
	events      []historyEvent
	initialRate decimal.Decimal
}

func newHistoryReplay(c *Contract, txs []Transaction, rateChanges []RateChange) *historyReplay {
	r := &historyReplay{initialRate: c.Rate}
	if len(rateChanges) > 0 {
		r.initialRate = rateChanges[0].OldRate
	}
	for _, tx := range txs {
		switch tx.Type {
		case TxOpening, TxDeposit:
			r.events = append(r.events, historyEvent{at: tx.Date, delta: tx.Amount})
		case TxWithdrawal, TxPartialWithdrawal:
			r.events = append(r.events, historyEvent{at: tx.Date, delta: tx.Amount.Neg()})
		}
	}
	for _, rc := range rateChanges {
		rate := rc.NewRate
		r.events = append(r.events, historyEvent{at: rc.EffectiveDate, delta: decimal.Zero, newRate: &rate})
	}
	return r
}

// positionOn returns the balance and rate effective on the given day,
// counting events dated on or before it.
func (r *historyReplay) positionOn(day time.Time) (decimal.Decimal, decimal.Decimal) {
	balance := decimal.Zero
	rate := r.initialRate
	for _, ev := range r.events {
		if ev.at.After(day) {
			continue
		}
		balance = balance.Add(ev.delta)
		if ev.newRate != nil {
			rate = *ev.newRate
		}
	}
	return balance, rate
}
