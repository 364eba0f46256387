package schedule

import (
	"time"

	"github.com/shopspring/decimal"
)

// SavingsPlan projects simple interest on a savings contract, one row per
// month of the term.
//
// Interest per period is principal * rate/100 * days/365 with actual day
// counts. Note the 365-day base: savings and loans deliberately use
// different denominators. For end-of-term payout the displayed balance
// includes the accumulated interest; for monthly payout it stays at the
// principal because interest leaves the contract each period.
func SavingsPlan(amount, annualRatePct decimal.Decimal, term int, start time.Time, payout Payout) ([]SavingsRow, error) {
	if err := validate(amount, annualRatePct, term); err != nil {
		return nil, err
	}

	rows := make([]SavingsRow, 0, term)
	cumulative := decimal.Zero
	for i := 1; i <= term; i++ {
		periodStart := DateOnly(start)
		if i > 1 {
			periodStart = AddMonths(start, i-1)
		}
		periodEnd := AddMonths(start, i)

		days := decimal.NewFromInt(int64(DaysBetween(periodStart, periodEnd)))
		interest := RoundMoney(amount.Mul(annualRatePct).Div(hundred).Mul(days).Div(year365))
		cumulative = cumulative.Add(interest)

		balanceAfter := amount
		if payout == PayoutEndOfTerm {
			balanceAfter = amount.Add(cumulative)
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
