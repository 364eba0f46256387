package schedule

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// EVENT-AWARE SAVINGS PROJECTION
// =============================================================================
// The plain SavingsPlan assumes the balance never moves. Real contracts see
// mid-period deposits, withdrawals and rate changes, and a deposit must earn
// interest only from its value date forward. The recalculator therefore
// splits each period at every event date and accrues per sub-interval at the
// balance and rate effective during that sub-interval.

// EventKind classifies a balance- or rate-changing event.
type EventKind int

const (
	EventDeposit EventKind = iota
	EventWithdrawal
	EventRateChange
)

// BalanceEvent is a dated change applied to a savings contract.
// Amount is used for deposits/withdrawals, NewRate for rate changes.
type BalanceEvent struct {
	At      time.Time
	Kind    EventKind
	Amount  decimal.Decimal
	NewRate decimal.Decimal
}

// SavingsPlanWithEvents projects period interest over a term while replaying
// a time-ordered list of balance events. Events dated on or before the
// contract start adjust the opening position; later events split the period
// they fall into. Each sub-interval's interest is rounded independently and
// the period row carries the sum.
func SavingsPlanWithEvents(opening, annualRatePct decimal.Decimal, term int, start time.Time, payout Payout, events []BalanceEvent) ([]SavingsRow, error) {
	if err := validate(opening, annualRatePct, term); err != nil {
		return nil, err
	}

	evs := make([]BalanceEvent, len(events))
	copy(evs, events)
	sort.SliceStable(evs, func(i, j int) bool { return evs[i].At.Before(evs[j].At) })

	balance := opening
	rate := annualRatePct
	startDay := DateOnly(start)

	// Events at or before the start date take effect immediately.
	next := 0
	for next < len(evs) && !DateOnly(evs[next].At).After(startDay) {
		balance, rate = applyEvent(balance, rate, evs[next])
		next++
	}

	rows := make([]SavingsRow, 0, term)
	cumulative := decimal.Zero
	for i := 1; i <= term; i++ {
		periodStart := startDay
		if i > 1 {
			periodStart = AddMonths(start, i-1)
		}
		periodEnd := AddMonths(start, i)

		interest := decimal.Zero
		cursor := periodStart
		for next < len(evs) && !DateOnly(evs[next].At).After(periodEnd) {
			at := DateOnly(evs[next].At)
			if at.After(cursor) {
				interest = interest.Add(accrue(balance, rate, cursor, at))
				cursor = at
			}
			balance, rate = applyEvent(balance, rate, evs[next])
			next++
		}
		if periodEnd.After(cursor) {
			interest = interest.Add(accrue(balance, rate, cursor, periodEnd))
		}

		cumulative = cumulative.Add(interest)
		balanceAfter := balance
		if payout == PayoutEndOfTerm {
			balanceAfter = balance.Add(cumulative)
		}

		rows = append(rows, SavingsRow{
			PeriodNo:     i,
			PeriodStart:  periodStart,
			PeriodEnd:    periodEnd,
			Interest:     interest,
			Cumulative:   cumulative,
			BalanceAfter: balanceAfter,
		})
	}
	return rows, nil
}

func accrue(balance, annualRatePct decimal.Decimal, from, to time.Time) decimal.Decimal {
	if !balance.IsPositive() {
		return decimal.Zero
	}
	days := decimal.NewFromInt(int64(DaysBetween(from, to)))
	return RoundMoney(balance.Mul(annualRatePct).Div(hundred).Mul(days).Div(year365))
}

func applyEvent(balance, rate decimal.Decimal, ev BalanceEvent) (decimal.Decimal, decimal.Decimal) {
	switch ev.Kind {
	case EventDeposit:
		return balance.Add(ev.Amount), rate
	case EventWithdrawal:
		return balance.Sub(ev.Amount), rate
	case EventRateChange:
		return balance, ev.NewRate
	}
	return balance, rate
}
