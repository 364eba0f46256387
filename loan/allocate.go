package loan

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/coopfin/ledger-engine/schedule"
)

// =============================================================================
// PAYMENT ALLOCATOR
// =============================================================================
// A tendered amount walks the outstanding rows oldest-first. Within a row
// the priority is interest, then penalty, then principal. Whatever already
// sits in PaidAmount is assumed to have satisfied the buckets in that same
// priority order, so the remaining dues can be decomposed deterministically
// from the row's contractual figures alone.
//
// Tender left over after every row is fully covered is surplus. Surplus
// routes to principal, never to a future row's interest; whether it
// triggers an automatic rebuild or a choice request is the service's call.

// Allocation is the outcome of spreading a tender across schedule rows.
type Allocation struct {
	PrincipalPart decimal.Decimal
	InterestPart  decimal.Decimal
	PenaltyPart   decimal.Decimal

	// Surplus is tender remaining after all given rows were fully paid.
	Surplus decimal.Decimal

	// Rows holds updated copies of every row the tender touched.
	Rows []ScheduleRow
}

// Total is the amount absorbed by schedule rows (excludes surplus).
func (a *Allocation) Total() decimal.Decimal {
	return a.PrincipalPart.Add(a.InterestPart).Add(a.PenaltyPart)
}

// Allocate spreads tender across rows in the order given. Rows are not
// mutated; updated copies are returned. Fully covered rows are marked paid
// with the payment date, partially covered rows partial.
func Allocate(rows []ScheduleRow, tender decimal.Decimal, payDate time.Time) Allocation {
	payDay := schedule.DateOnly(payDate)
	remaining := tender
	alloc := Allocation{
		PrincipalPart: decimal.Zero,
		InterestPart:  decimal.Zero,
		PenaltyPart:   decimal.Zero,
	}

	for i := range rows {
		if !remaining.IsPositive() {
			break
		}
		row := rows[i]
		owedInterest, owedPenalty, owedPrincipal := decomposeOwed(&row)
		if !owedInterest.Add(owedPenalty).Add(owedPrincipal).IsPositive() {
			continue
		}

		var toInterest, toPenalty, toPrincipal decimal.Decimal
		toInterest, remaining = draw(remaining, owedInterest)
		toPenalty, remaining = draw(remaining, owedPenalty)
		toPrincipal, remaining = draw(remaining, owedPrincipal)

		alloc.InterestPart = alloc.InterestPart.Add(toInterest)
		alloc.PenaltyPart = alloc.PenaltyPart.Add(toPenalty)
		alloc.PrincipalPart = alloc.PrincipalPart.Add(toPrincipal)

		row.PaidAmount = row.PaidAmount.Add(toInterest).Add(toPenalty).Add(toPrincipal)
		if row.PaidAmount.GreaterThanOrEqual(row.TotalDue()) {
			row.Status = RowPaid
		} else {
			row.Status = RowPartial
		}
		paid := payDay
		row.PaidDate = &paid
		alloc.Rows = append(alloc.Rows, row)
	}

	alloc.Surplus = remaining
	return alloc
}

// decomposeOwed splits a row's outstanding amount back into its buckets,
// assuming prior payments satisfied interest, then penalty, then principal.
func decomposeOwed(row *ScheduleRow) (interest, penalty, principal decimal.Decimal) {
	paid := row.PaidAmount

	interest = row.Interest.Sub(paid)
	if interest.IsNegative() {
		interest = decimal.Zero
	}
	paid = paid.Sub(row.Interest)
	if paid.IsNegative() {
		paid = decimal.Zero
	}

	penalty = row.Penalty.Sub(paid)
	if penalty.IsNegative() {
		penalty = decimal.Zero
	}
	paid = paid.Sub(row.Penalty)
	if paid.IsNegative() {
		paid = decimal.Zero
	}

	principal = row.Principal.Sub(paid)
	if principal.IsNegative() {
		principal = decimal.Zero
	}
	return interest, penalty, principal
}

// draw takes min(available, owed) and returns (taken, rest).
func draw(available, owed decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if available.GreaterThanOrEqual(owed) {
		return owed, available.Sub(owed)
	}
	return available, decimal.Zero
}

// dueRows filters rows whose due date is on or before the payment date:
// the "nearest dues" a regular payment is expected to cover. When nothing
// is due yet (payment ahead of schedule), the next upcoming row is the
// nearest due so an ordinary early installment still lands on its row.
func dueRows(rows []ScheduleRow, payDate time.Time) []ScheduleRow {
	payDay := schedule.DateOnly(payDate)
	var due []ScheduleRow
	for i := range rows {
		if !rows[i].DueDate.After(payDay) {
			due = append(due, rows[i])
		}
	}
	if len(due) == 0 && len(rows) > 0 {
		due = rows[:1]
	}
	return due
}
