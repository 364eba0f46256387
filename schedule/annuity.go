package schedule

import (
	"time"

	"github.com/shopspring/decimal"
)

// Annuity generates an equal-installment amortization table.
//
// payment = A*r*(1+r)^n / ((1+r)^n - 1) with r the monthly rate, rounded
// half-up. Per period the interest is round(balance * r) and principal is
// the installment remainder (floored at zero, which rounding can produce on
// small balances). The final period ignores the formula and repays whatever
// balance remains, so the principal column always sums exactly to A.
//
// A zero rate degenerates to n equal principal-only installments of A/n,
// the last one absorbing the rounding remainder.
func Annuity(amount, annualRatePct decimal.Decimal, term int, start time.Time) ([]Row, decimal.Decimal, error) {
	if err := validate(amount, annualRatePct, term); err != nil {
		return nil, decimal.Zero, err
	}

	monthlyRate := annualRatePct.Div(hundred).Div(twelve)
	installment := annuityPayment(amount, monthlyRate, term)

	rows := make([]Row, 0, term)
	balance := amount
	for i := 1; i <= term; i++ {
		interest := RoundMoney(balance.Mul(monthlyRate))

		var principal, payment decimal.Decimal
		if i == term {
			principal = balance
			payment = principal.Add(interest)
		} else {
			principal = installment.Sub(interest)
			if principal.IsNegative() {
				principal = decimal.Zero
			}
			payment = installment
		}

		balance = balance.Sub(principal)
		if balance.IsNegative() {
			balance = decimal.Zero
		}

		rows = append(rows, Row{
			PeriodNo:     i,
			DueDate:      AddMonths(start, i),
			Payment:      payment,
			Principal:    principal,
			Interest:     interest,
			BalanceAfter: balance,
		})
	}
	return rows, installment, nil
}

// AnnuityPayment returns the rounded installment without building the table.
// The rebuilder uses it to search candidate terms after a prepayment.
func AnnuityPayment(amount, annualRatePct decimal.Decimal, term int) (decimal.Decimal, error) {
	if err := validate(amount, annualRatePct, term); err != nil {
		return decimal.Zero, err
	}
	return annuityPayment(amount, annualRatePct.Div(hundred).Div(twelve), term), nil
}

func annuityPayment(amount, monthlyRate decimal.Decimal, term int) decimal.Decimal {
	if monthlyRate.IsZero() {
		return RoundMoney(amount.Div(decimal.NewFromInt(int64(term))))
	}
	growth := decimal.NewFromInt(1).Add(monthlyRate).Pow(decimal.NewFromInt(int64(term)))
	raw := amount.Mul(monthlyRate).Mul(growth).Div(growth.Sub(decimal.NewFromInt(1)))
	return RoundMoney(raw)
}
