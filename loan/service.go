package loan

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/coopfin/ledger-engine/schedule"
)

// overpaymentThreshold: a surplus above half the current installment is a
// significant overpayment and needs an explicit strategy choice.
var overpaymentThreshold = decimal.NewFromFloat(0.5)

// Service orchestrates loan mutations. Every mutating method runs inside a
// single store transaction: either all row updates, the payment record and
// the contract update commit together, or none of them do.
type Service struct {
	store TxStore
	log   *zap.Logger
}

func NewService(store TxStore, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, log: log}
}

// =============================================================================
// ORIGINATION
// =============================================================================

type CreateInput struct {
	ContractNo string
	MemberID   int64
	Amount     decimal.Decimal
	Rate       decimal.Decimal
	TermMonths int
	Convention schedule.Convention
	StartDate  time.Time
}

func (in *CreateInput) validate() error {
	if !in.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "must be positive"}
	}
	if in.Rate.IsNegative() {
		return &ValidationError{Field: "rate", Message: "must not be negative"}
	}
	if in.TermMonths < 1 {
		return &ValidationError{Field: "term_months", Message: "must be at least 1"}
	}
	if in.Convention != schedule.ConventionAnnuity && in.Convention != schedule.ConventionEndOfTerm {
		return &ValidationError{Field: "convention", Message: "must be annuity or end_of_term"}
	}
	if in.ContractNo == "" {
		return &ValidationError{Field: "contract_no", Message: "required"}
	}
	return nil
}

// Create originates a loan and persists its full schedule.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Contract, []ScheduleRow, error) {
	if err := in.validate(); err != nil {
		return nil, nil, err
	}

	gen, installment, err := schedule.Generate(in.Convention, in.Amount, in.Rate, in.TermMonths, in.StartDate)
	if err != nil {
		return nil, nil, err
	}

	c := &Contract{
		ContractNo:     in.ContractNo,
		MemberID:       in.MemberID,
		Amount:         in.Amount,
		Rate:           in.Rate,
		TermMonths:     in.TermMonths,
		Convention:     in.Convention,
		StartDate:      schedule.DateOnly(in.StartDate),
		EndDate:        gen[len(gen)-1].DueDate,
		MonthlyPayment: installment,
		Balance:        in.Amount,
		Status:         StatusActive,
	}

	var rows []ScheduleRow
	err = s.store.WithTx(ctx, func(st Store) error {
		if err := st.CreateContract(ctx, c); err != nil {
			return err
		}
		rows = rowsFromGenerated(c.ID, 0, gen)
		return st.InsertScheduleRows(ctx, rows)
	})
	if err != nil {
		return nil, nil, err
	}

	s.log.Info("loan created",
		zap.Int64("loan_id", c.ID),
		zap.String("contract_no", c.ContractNo),
		zap.String("amount", c.Amount.StringFixed(2)),
		zap.String("installment", installment.StringFixed(2)))
	return c, rows, nil
}

// Preview generates a schedule without persisting anything.
func (s *Service) Preview(conv schedule.Convention, amount, rate decimal.Decimal, term int, start time.Time) ([]schedule.Row, decimal.Decimal, error) {
	return schedule.Generate(conv, amount, rate, term, start)
}

func (s *Service) Get(ctx context.Context, id int64) (*Contract, error) {
	return s.store.GetContract(ctx, id)
}

// Detail loads a contract with its schedule and payment history.
func (s *Service) Detail(ctx context.Context, id int64) (*Contract, []ScheduleRow, []Payment, error) {
	c, err := s.store.GetContract(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	rows, err := s.store.ScheduleRows(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	payments, err := s.store.Payments(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	return c, rows, payments, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

// PaymentResult reports what a payment did. Exactly one of Payment or
// Choice is set: a parked significant overpayment carries no allocation.
type PaymentResult struct {
	Payment        *Payment
	NewBalance     decimal.Decimal
	Closed         bool
	Recalculated   bool
	NewInstallment decimal.Decimal
	Schedule       []ScheduleRow
	Choice         *ChoiceRequest
}

// ApplyPayment allocates a tendered amount against the loan's outstanding
// rows. A significant overpayment (surplus beyond the nearest dues greater
// than half an installment, with nothing overdue) is parked as a pending
// choice instead of being applied.
func (s *Service) ApplyPayment(ctx context.Context, loanID int64, amount decimal.Decimal, date time.Time) (*PaymentResult, error) {
	if !amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Message: "must be positive"}
	}

	var result *PaymentResult
	err := s.store.WithTx(ctx, func(st Store) error {
		c, err := st.GetContract(ctx, loanID)
		if err != nil {
			return err
		}
		if c.Status == StatusClosed {
			return ErrClosed
		}
		if pc, err := st.GetPendingChoice(ctx, loanID); err != nil {
			return err
		} else if pc != nil {
			return ErrChoicePending
		}

		r, err := s.applyLocked(ctx, st, c, amount, date, PaymentRegular, nil)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Choice != nil {
		s.log.Info("significant overpayment parked",
			zap.Int64("loan_id", loanID),
			zap.String("amount", amount.StringFixed(2)))
	} else {
		s.log.Info("payment applied",
			zap.Int64("loan_id", loanID),
			zap.String("amount", amount.StringFixed(2)),
			zap.String("new_balance", result.NewBalance.StringFixed(2)),
			zap.Bool("recalculated", result.Recalculated))
	}
	return result, nil
}

// ResolveOverpaymentChoice applies a previously parked overpayment using
// the chosen strategy.
func (s *Service) ResolveOverpaymentChoice(ctx context.Context, loanID int64, strategy Strategy) (*PaymentResult, error) {
	if strategy != StrategyReduceTerm && strategy != StrategyReducePayment {
		return nil, &ValidationError{Field: "strategy", Message: "must be reduce_term or reduce_payment"}
	}

	var result *PaymentResult
	err := s.store.WithTx(ctx, func(st Store) error {
		pc, err := st.GetPendingChoice(ctx, loanID)
		if err != nil {
			return err
		}
		if pc == nil {
			return ErrNoPendingChoice
		}
		if err := st.DeletePendingChoice(ctx, loanID); err != nil {
			return err
		}

		c, err := st.GetContract(ctx, loanID)
		if err != nil {
			return err
		}
		if c.Status == StatusClosed {
			return ErrClosed
		}

		r, err := s.applyLocked(ctx, st, c, pc.Amount, pc.Date, PaymentRegular, &strategy)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// applyLocked is the shared payment path. When strategy is nil a qualifying
// surplus produces a ChoiceRequest; otherwise the surplus is applied and
// the schedule rebuilt per the strategy.
func (s *Service) applyLocked(ctx context.Context, st Store, c *Contract, amount decimal.Decimal, date time.Time, ptype PaymentType, strategy *Strategy) (*PaymentResult, error) {
	outstanding, err := st.OutstandingRows(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	payDay := schedule.DateOnly(date)

	// Corruption state: balance left but the schedule is exhausted.
	// Everything goes straight to principal.
	if len(outstanding) == 0 {
		principal := amount
		if principal.GreaterThan(c.Balance) {
			principal = c.Balance
		}
		alloc := Allocation{PrincipalPart: principal, InterestPart: decimal.Zero, PenaltyPart: decimal.Zero, Surplus: decimal.Zero}
		return s.settle(ctx, st, c, &alloc, amount, decimal.Zero, payDay, ptype, nil)
	}

	due := dueRows(outstanding, payDay)
	alloc := Allocate(due, amount, payDay)

	if alloc.Surplus.IsPositive() && strategy == nil {
		threshold := c.MonthlyPayment.Mul(overpaymentThreshold)
		if !hasOverdue(outstanding, payDay) && alloc.Surplus.GreaterThan(threshold) {
			choice, err := s.buildChoice(c, &alloc, outstanding, amount, payDay)
			if err != nil {
				return nil, err
			}
			if err := st.SavePendingChoice(ctx, &PendingChoice{LoanID: c.ID, Amount: amount, Date: payDay}); err != nil {
				return nil, err
			}
			return &PaymentResult{NewBalance: c.Balance, Choice: choice}, nil
		}
	}

	// Surplus routes to principal, capped by the remaining balance.
	extra := decimal.Zero
	if alloc.Surplus.IsPositive() {
		extra = alloc.Surplus
		room := c.Balance.Sub(alloc.PrincipalPart)
		if extra.GreaterThan(room) {
			extra = room
		}
		if extra.IsNegative() {
			extra = decimal.Zero
		}
		alloc.PrincipalPart = alloc.PrincipalPart.Add(extra)
	}

	return s.settle(ctx, st, c, &alloc, amount, extra, payDay, ptype, strategy)
}

// settle persists an allocation: row updates, the payment record, the new
// balance and any schedule rebuild the surplus demands. extra is the
// surplus principal beyond the rows' contractual dues.
func (s *Service) settle(ctx context.Context, st Store, c *Contract, alloc *Allocation, amount, extra decimal.Decimal, payDay time.Time, ptype PaymentType, strategy *Strategy) (*PaymentResult, error) {
	for i := range alloc.Rows {
		if err := st.UpdateScheduleRow(ctx, &alloc.Rows[i]); err != nil {
			return nil, err
		}
	}

	payment := &Payment{
		ID:            uuid.NewString(),
		LoanID:        c.ID,
		Date:          payDay,
		Amount:        amount,
		PrincipalPart: alloc.PrincipalPart,
		InterestPart:  alloc.InterestPart,
		PenaltyPart:   alloc.PenaltyPart,
		Type:          ptype,
	}
	if err := st.InsertPayment(ctx, payment); err != nil {
		return nil, err
	}

	newBalance := c.Balance.Sub(alloc.PrincipalPart)
	if newBalance.IsNegative() {
		newBalance = decimal.Zero
	}
	c.Balance = newBalance

	result := &PaymentResult{Payment: payment, NewBalance: newBalance}

	if newBalance.IsZero() {
		if err := s.closeLocked(ctx, st, c, payDay); err != nil {
			return nil, err
		}
		result.Closed = true
		return result, nil
	}

	// Extra principal beyond the rows' contractual dues shortens or
	// lightens the remaining schedule.
	if extra.IsPositive() {
		remaining, err := st.OutstandingRows(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		periods := len(remaining)
		if strategy != nil && *strategy == StrategyReduceTerm {
			periods, _ = s.searchReduceTerm(c, periods)
		}
		if periods < 1 {
			periods = 1
		}
		rb, err := rebuildSchedule(ctx, st, c, periods, payDay)
		if err != nil {
			return nil, err
		}
		result.Recalculated = true
		result.NewInstallment = rb.Installment
		result.Schedule = rb.Rows
	}

	if err := s.refreshStatus(ctx, st, c, payDay); err != nil {
		return nil, err
	}
	return result, nil
}

func hasOverdue(rows []ScheduleRow, payDay time.Time) bool {
	for i := range rows {
		if rows[i].Status == RowOverdue {
			return true
		}
		if rows[i].Status != RowPaid && rows[i].DueDate.Before(payDay) {
			return true
		}
	}
	return false
}

// buildChoice precomputes both strategies for a parked overpayment.
func (s *Service) buildChoice(c *Contract, alloc *Allocation, outstanding []ScheduleRow, amount decimal.Decimal, payDay time.Time) (*ChoiceRequest, error) {
	// Balance if the payment were applied with all surplus to principal.
	principal := alloc.PrincipalPart.Add(alloc.Surplus)
	if principal.GreaterThan(c.Balance) {
		principal = c.Balance
	}
	newBalance := c.Balance.Sub(principal)

	remaining := 0
	for i := range outstanding {
		if !rowFullyCoveredBy(alloc, &outstanding[i]) {
			remaining++
		}
	}
	if remaining < 1 {
		remaining = 1
	}

	reducePaymentInstallment, err := installmentFor(c.Convention, newBalance, c.Rate, remaining, payDay)
	if err != nil {
		return nil, err
	}

	shorter, shorterInstallment := searchTerm(c.Convention, newBalance, c.Rate, c.MonthlyPayment, remaining, payDay)

	return &ChoiceRequest{
		LoanID:        c.ID,
		Amount:        amount,
		Date:          payDay,
		ReducePayment: OptionPreview{Periods: remaining, Installment: reducePaymentInstallment},
		ReduceTerm:    OptionPreview{Periods: shorter, Installment: shorterInstallment},
	}, nil
}

func rowFullyCoveredBy(alloc *Allocation, row *ScheduleRow) bool {
	for i := range alloc.Rows {
		if alloc.Rows[i].ID == row.ID && alloc.Rows[i].PeriodNo == row.PeriodNo {
			return alloc.Rows[i].Status == RowPaid
		}
	}
	return false
}

// searchReduceTerm finds the shortest remaining term whose installment does
// not exceed 110% of the current one.
func (s *Service) searchReduceTerm(c *Contract, remaining int) (int, decimal.Decimal) {
	return searchTerm(c.Convention, c.Balance, c.Rate, c.MonthlyPayment, remaining, c.StartDate)
}

var reduceTermCeiling = decimal.NewFromFloat(1.1)

func searchTerm(conv schedule.Convention, balance, rate, priorInstallment decimal.Decimal, remaining int, anchor time.Time) (int, decimal.Decimal) {
	limit := priorInstallment.Mul(reduceTermCeiling)
	for t := 1; t < remaining; t++ {
		p, err := installmentFor(conv, balance, rate, t, anchor)
		if err != nil {
			continue
		}
		if p.LessThanOrEqual(limit) {
			return t, p
		}
	}
	t := remaining - 1
	if t < 1 {
		t = 1
	}
	p, err := installmentFor(conv, balance, rate, t, anchor)
	if err != nil {
		p = priorInstallment
	}
	return t, p
}

func installmentFor(conv schedule.Convention, balance, rate decimal.Decimal, term int, anchor time.Time) (decimal.Decimal, error) {
	if conv == schedule.ConventionAnnuity {
		return schedule.AnnuityPayment(balance, rate, term)
	}
	_, installment, err := schedule.Generate(conv, balance, rate, term, anchor)
	return installment, err
}

// closeLocked marks a contract fully repaid: balance zero, every remaining
// row paid, terminal status.
func (s *Service) closeLocked(ctx context.Context, st Store, c *Contract, payDay time.Time) error {
	rows, err := st.OutstandingRows(ctx, c.ID)
	if err != nil {
		return err
	}
	for i := range rows {
		rows[i].Status = RowPaid
		paid := payDay
		rows[i].PaidDate = &paid
		if err := st.UpdateScheduleRow(ctx, &rows[i]); err != nil {
			return err
		}
	}
	c.Balance = decimal.Zero
	c.Status = StatusClosed
	return st.UpdateContract(ctx, c)
}

func (s *Service) refreshStatus(ctx context.Context, st Store, c *Contract, today time.Time) error {
	rows, err := st.ScheduleRows(ctx, c.ID)
	if err != nil {
		return err
	}
	next := DeriveStatus(c.Status, rows, today)
	if c.Status.CanTransition(next) {
		c.Status = next
	}
	return st.UpdateContract(ctx, c)
}

// =============================================================================
// EARLY REPAYMENT / RATE / TERM CHANGES
// =============================================================================

// ApplyEarlyRepayment retires principal ahead of schedule. A repayment that
// covers the whole balance closes the loan; a partial one rebuilds the
// remaining schedule per the chosen strategy.
func (s *Service) ApplyEarlyRepayment(ctx context.Context, loanID int64, amount decimal.Decimal, date time.Time, strategy Strategy) (*PaymentResult, error) {
	if !amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Message: "must be positive"}
	}
	if strategy != StrategyReduceTerm && strategy != StrategyReducePayment {
		return nil, &ValidationError{Field: "strategy", Message: "must be reduce_term or reduce_payment"}
	}

	payDay := schedule.DateOnly(date)
	var result *PaymentResult
	err := s.store.WithTx(ctx, func(st Store) error {
		c, err := st.GetContract(ctx, loanID)
		if err != nil {
			return err
		}
		if c.Status == StatusClosed {
			return ErrClosed
		}

		newBalance := c.Balance.Sub(amount)
		if !newBalance.IsPositive() {
			retired := c.Balance
			payment := &Payment{
				ID:            uuid.NewString(),
				LoanID:        c.ID,
				Date:          payDay,
				Amount:        amount,
				PrincipalPart: retired,
				InterestPart:  decimal.Zero,
				PenaltyPart:   decimal.Zero,
				Type:          PaymentEarlyFull,
			}
			if err := st.InsertPayment(ctx, payment); err != nil {
				return err
			}
			if err := s.closeLocked(ctx, st, c, payDay); err != nil {
				return err
			}
			result = &PaymentResult{Payment: payment, NewBalance: decimal.Zero, Closed: true}
			return nil
		}

		payment := &Payment{
			ID:            uuid.NewString(),
			LoanID:        c.ID,
			Date:          payDay,
			Amount:        amount,
			PrincipalPart: amount,
			InterestPart:  decimal.Zero,
			PenaltyPart:   decimal.Zero,
			Type:          PaymentEarlyPartial,
		}
		if err := st.InsertPayment(ctx, payment); err != nil {
			return err
		}

		remaining, err := st.OutstandingRows(ctx, c.ID)
		if err != nil {
			return err
		}
		periods := len(remaining)
		c.Balance = newBalance

		if strategy == StrategyReduceTerm {
			periods, _ = searchTerm(c.Convention, newBalance, c.Rate, c.MonthlyPayment, periods, payDay)
		}
		if periods < 1 {
			periods = 1
		}

		rb, err := rebuildSchedule(ctx, st, c, periods, payDay)
		if err != nil {
			return err
		}
		if err := s.refreshStatus(ctx, st, c, payDay); err != nil {
			return err
		}
		result = &PaymentResult{
			Payment:        payment,
			NewBalance:     newBalance,
			Recalculated:   true,
			NewInstallment: rb.Installment,
			Schedule:       rb.Rows,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("early repayment",
		zap.Int64("loan_id", loanID),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("strategy", string(strategy)),
		zap.Bool("closed", result.Closed))
	return result, nil
}

// ChangeRate regenerates the unpaid remainder of the schedule at a new rate.
func (s *Service) ChangeRate(ctx context.Context, loanID int64, newRate decimal.Decimal, effectiveDate time.Time, reason string) (*PaymentResult, error) {
	if newRate.IsNegative() {
		return nil, &ValidationError{Field: "rate", Message: "must not be negative"}
	}
	return s.restructure(ctx, loanID, effectiveDate, func(_ Store, c *Contract, remaining int) (int, error) {
		c.Rate = newRate
		return remaining, nil
	}, "rate change: "+reason)
}

// ChangeTerm stretches or shortens the contract to a new total term.
func (s *Service) ChangeTerm(ctx context.Context, loanID int64, newTermMonths int, effectiveDate time.Time) (*PaymentResult, error) {
	if newTermMonths < 1 {
		return nil, &ValidationError{Field: "term_months", Message: "must be at least 1"}
	}
	return s.restructure(ctx, loanID, effectiveDate, func(st Store, c *Contract, remaining int) (int, error) {
		rows, err := st.ScheduleRows(ctx, c.ID)
		if err != nil {
			return 0, err
		}
		paid := 0
		for i := range rows {
			if rows[i].Status == RowPaid && rows[i].PeriodNo > paid {
				paid = rows[i].PeriodNo
			}
		}
		periods := newTermMonths - paid
		if periods < 1 {
			return 0, &ValidationError{Field: "term_months", Message: "new term does not extend past paid periods"}
		}
		return periods, nil
	}, "term change")
}

// restructure runs the common rate/term flow. The adjust callback receives
// the tx-scoped store; reads through any other handle would escape the
// transaction boundary.
func (s *Service) restructure(ctx context.Context, loanID int64, effectiveDate time.Time, adjust func(Store, *Contract, int) (int, error), what string) (*PaymentResult, error) {
	day := schedule.DateOnly(effectiveDate)
	var result *PaymentResult
	err := s.store.WithTx(ctx, func(st Store) error {
		c, err := st.GetContract(ctx, loanID)
		if err != nil {
			return err
		}
		if c.Status == StatusClosed {
			return ErrClosed
		}

		remaining, err := st.OutstandingRows(ctx, c.ID)
		if err != nil {
			return err
		}
		periods, err := adjust(st, c, len(remaining))
		if err != nil {
			return err
		}
		if periods < 1 {
			periods = 1
		}

		rb, err := rebuildSchedule(ctx, st, c, periods, day)
		if err != nil {
			return err
		}
		if err := s.refreshStatus(ctx, st, c, day); err != nil {
			return err
		}
		result = &PaymentResult{
			NewBalance:     c.Balance,
			Recalculated:   true,
			NewInstallment: rb.Installment,
			Schedule:       rb.Rows,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("loan restructured", zap.Int64("loan_id", loanID), zap.String("what", what))
	return result, nil
}

// =============================================================================
// STATUS SWEEP
// =============================================================================

// SweepOverdue marks overdue rows and re-derives contract statuses across
// every open loan. Triggered nightly by an external scheduler; each
// contract commits independently so a partial sweep is safe to rerun.
func (s *Service) SweepOverdue(ctx context.Context, today time.Time) (int, error) {
	day := schedule.DateOnly(today)

	// Cheap cross-contract scan to find the loans that need work. The
	// authoritative flagging re-reads each loan's rows inside its own
	// transaction, so rows paid after this scan are not flagged.
	due, err := s.store.ListOverdueUnpaidRows(ctx, day)
	if err != nil {
		return 0, err
	}
	seen := make(map[int64]bool, len(due))
	loanIDs := make([]int64, 0, len(due))
	for i := range due {
		if !seen[due[i].LoanID] {
			seen[due[i].LoanID] = true
			loanIDs = append(loanIDs, due[i].LoanID)
		}
	}
	sort.Slice(loanIDs, func(i, j int) bool { return loanIDs[i] < loanIDs[j] })

	flagged := 0
	for _, loanID := range loanIDs {
		err := s.store.WithTx(ctx, func(st Store) error {
			c, err := st.GetContract(ctx, loanID)
			if err != nil {
				return err
			}
			if c.Status == StatusClosed {
				return nil
			}
			rows, err := st.ScheduleRows(ctx, c.ID)
			if err != nil {
				return err
			}
			for j := range rows {
				row := &rows[j]
				if row.Status == RowPaid {
					continue
				}
				if row.DueDate.Before(day) {
					row.Status = RowOverdue
					row.OverdueDays = schedule.DaysBetween(row.DueDate, day)
					if err := st.UpdateScheduleRow(ctx, row); err != nil {
						return err
					}
					flagged++
				}
			}
			next := DeriveStatus(c.Status, rows, day)
			if next != c.Status && c.Status.CanTransition(next) {
				c.Status = next
				return st.UpdateContract(ctx, c)
			}
			return nil
		})
		if err != nil {
			return flagged, err
		}
	}
	return flagged, nil
}

// =============================================================================
// ADMINISTRATIVE PAYMENT CORRECTIONS
// =============================================================================
// Payments are immutable except for explicit correction: editing or deleting
// a payment reverses its principal effect on the contract balance. These are
// the only paths that may reopen a closed loan, because they change the
// ground truth the closed state was derived from.

type PaymentUpdate struct {
	PaymentID     string
	Date          *time.Time
	Amount        *decimal.Decimal
	PrincipalPart *decimal.Decimal
	InterestPart  *decimal.Decimal
	PenaltyPart   *decimal.Decimal
}

func (s *Service) UpdatePayment(ctx context.Context, upd PaymentUpdate) error {
	return s.store.WithTx(ctx, func(st Store) error {
		p, err := st.GetPayment(ctx, upd.PaymentID)
		if err != nil {
			return err
		}
		oldPrincipal := p.PrincipalPart

		if upd.Date != nil {
			p.Date = schedule.DateOnly(*upd.Date)
		}
		if upd.Amount != nil {
			p.Amount = *upd.Amount
		}
		if upd.PrincipalPart != nil {
			p.PrincipalPart = *upd.PrincipalPart
		}
		if upd.InterestPart != nil {
			p.InterestPart = *upd.InterestPart
		}
		if upd.PenaltyPart != nil {
			p.PenaltyPart = *upd.PenaltyPart
		}
		if err := st.UpdatePayment(ctx, p); err != nil {
			return err
		}

		delta := p.PrincipalPart.Sub(oldPrincipal)
		if delta.IsZero() {
			return nil
		}
		return s.shiftBalance(ctx, st, p.LoanID, delta.Neg())
	})
}

func (s *Service) DeletePayment(ctx context.Context, paymentID string) error {
	return s.store.WithTx(ctx, func(st Store) error {
		p, err := st.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if err := st.DeletePayment(ctx, paymentID); err != nil {
			return err
		}
		if p.PrincipalPart.IsPositive() {
			return s.shiftBalance(ctx, st, p.LoanID, p.PrincipalPart)
		}
		return nil
	})
}

func (s *Service) shiftBalance(ctx context.Context, st Store, loanID int64, delta decimal.Decimal) error {
	c, err := st.GetContract(ctx, loanID)
	if err != nil {
		return err
	}
	c.Balance = c.Balance.Add(delta)
	if c.Balance.IsNegative() {
		c.Balance = decimal.Zero
	}
	if c.Balance.IsZero() {
		c.Status = StatusClosed
	} else if c.Status == StatusClosed {
		// Correction restored principal on a closed loan.
		c.Status = StatusActive
	}
	return st.UpdateContract(ctx, c)
}
