package schedule

import (
	"time"

	"github.com/shopspring/decimal"
)

// EndOfTerm generates an interest-only schedule with a single principal
// repayment in the final period.
//
// Interest per period is balance * rate/100 * days/360, where days is the
// actual day count between consecutive due dates. The headline figure is
// the first period's interest payment.
func EndOfTerm(amount, annualRatePct decimal.Decimal, term int, start time.Time) ([]Row, decimal.Decimal, error) {
	if err := validate(amount, annualRatePct, term); err != nil {
		return nil, decimal.Zero, err
	}

	rows := make([]Row, 0, term)
	balance := amount
	prev := DateOnly(start)
	for i := 1; i <= term; i++ {
		due := AddMonths(start, i)
		days := decimal.NewFromInt(int64(DaysBetween(prev, due)))
		interest := RoundMoney(balance.Mul(annualRatePct).Div(hundred).Mul(days).Div(year360))

		var principal, payment decimal.Decimal
		if i == term {
			principal = balance
			payment = principal.Add(interest)
			balance = decimal.Zero
		} else {
			principal = decimal.Zero
			payment = interest
		}

		rows = append(rows, Row{
			PeriodNo:     i,
			DueDate:      due,
			Payment:      payment,
			Principal:    principal,
			Interest:     interest,
			BalanceAfter: balance,
		})
		prev = due
	}
	return rows, rows[0].Payment, nil
}
