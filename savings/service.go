package savings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/coopfin/ledger-engine/schedule"
)

// earlyCloseRatePct: interest retained on early close, as a percent of the
// opening principal. Interest already paid out beyond it is clawed back
// from the returned balance.
var earlyCloseRatePct = decimal.NewFromFloat(0.1)

// Service orchestrates savings mutations inside store transactions.
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
// OPENING
// =============================================================================

type OpenInput struct {
	ContractNo    string
	MemberID      int64
	Amount        decimal.Decimal
	Rate          decimal.Decimal
	TermMonths    int
	PayoutType    schedule.Payout
	StartDate     time.Time
	MinBalancePct decimal.Decimal
}

func (in *OpenInput) validate() error {
	if !in.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "must be positive"}
	}
	if in.Rate.IsNegative() {
		return &ValidationError{Field: "rate", Message: "must not be negative"}
	}
	if in.TermMonths < 1 {
		return &ValidationError{Field: "term_months", Message: "must be at least 1"}
	}
	if in.PayoutType != schedule.PayoutMonthly && in.PayoutType != schedule.PayoutEndOfTerm {
		return &ValidationError{Field: "payout_type", Message: "must be monthly or end_of_term"}
	}
	if in.MinBalancePct.IsNegative() || in.MinBalancePct.GreaterThan(decimal.NewFromInt(100)) {
		return &ValidationError{Field: "min_balance_pct", Message: "must be between 0 and 100"}
	}
	if in.ContractNo == "" {
		return &ValidationError{Field: "contract_no", Message: "required"}
	}
	return nil
}

// Open creates a savings contract, its projected schedule and the opening
// ledger entry.
func (s *Service) Open(ctx context.Context, in OpenInput) (*Contract, []ScheduleRow, error) {
	if err := in.validate(); err != nil {
		return nil, nil, err
	}

	plan, err := schedule.SavingsPlan(in.Amount, in.Rate, in.TermMonths, in.StartDate, in.PayoutType)
	if err != nil {
		return nil, nil, err
	}

	start := schedule.DateOnly(in.StartDate)
	c := &Contract{
		ContractNo:      in.ContractNo,
		MemberID:        in.MemberID,
		Amount:          in.Amount,
		Rate:            in.Rate,
		TermMonths:      in.TermMonths,
		PayoutType:      in.PayoutType,
		StartDate:       start,
		EndDate:         schedule.AddMonths(start, in.TermMonths),
		CurrentBalance:  in.Amount,
		AccruedInterest: decimal.Zero,
		PaidInterest:    decimal.Zero,
		MinBalancePct:   in.MinBalancePct,
		AmountAtOpen:    in.Amount,
		Status:          StatusActive,
	}

	var rows []ScheduleRow
	err = s.store.WithTx(ctx, func(st Store) error {
		if err := st.CreateContract(ctx, c); err != nil {
			return err
		}
		rows = rowsFromPlan(c.ID, 0, plan)
		if err := st.InsertScheduleRows(ctx, rows); err != nil {
			return err
		}
		return st.InsertTransaction(ctx, &Transaction{
			ID:          uuid.NewString(),
			SavingID:    c.ID,
			Date:        start,
			Amount:      in.Amount,
			Type:        TxOpening,
			Description: "opening deposit",
		})
	})
	if err != nil {
		return nil, nil, err
	}

	s.log.Info("savings contract opened",
		zap.Int64("saving_id", c.ID),
		zap.String("contract_no", c.ContractNo),
		zap.String("amount", c.Amount.StringFixed(2)))
	return c, rows, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Contract, error) {
	return s.store.GetContract(ctx, id)
}

// Detail loads a contract with its schedule and ledger.
func (s *Service) Detail(ctx context.Context, id int64) (*Contract, []ScheduleRow, []Transaction, error) {
	c, err := s.store.GetContract(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	rows, err := s.store.ScheduleRows(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	txs, err := s.store.Transactions(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	return c, rows, txs, nil
}

// Preview generates a projected schedule without persisting anything.
func (s *Service) Preview(amount, rate decimal.Decimal, term int, start time.Time, payout schedule.Payout) ([]schedule.SavingsRow, error) {
	return schedule.SavingsPlan(amount, rate, term, start, payout)
}

// =============================================================================
// BALANCE MOVEMENTS
// =============================================================================

// Deposit adds funds. The principal grows and the projected schedule is
// recalculated; the new money earns interest from its value date forward.
func (s *Service) Deposit(ctx context.Context, id int64, amount decimal.Decimal, date time.Time, isCash bool, description string) error {
	if !amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "must be positive"}
	}
	return s.mutate(ctx, id, func(st Store, c *Contract) error {
		c.CurrentBalance = c.CurrentBalance.Add(amount)
		c.Amount = c.Amount.Add(amount)
		if err := st.InsertTransaction(ctx, &Transaction{
			ID:          uuid.NewString(),
			SavingID:    id,
			Date:        schedule.DateOnly(date),
			Amount:      amount,
			Type:        TxDeposit,
			IsCash:      isCash,
			Description: description,
		}); err != nil {
			return err
		}
		return s.recalcLocked(ctx, st, c)
	})
}

// Withdraw removes funds up to the full balance.
func (s *Service) Withdraw(ctx context.Context, id int64, amount decimal.Decimal, date time.Time, isCash bool, description string) error {
	if !amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "must be positive"}
	}
	return s.mutate(ctx, id, func(st Store, c *Contract) error {
		if amount.GreaterThan(c.CurrentBalance) {
			return &InsufficientFundsError{SavingID: id, Requested: amount, Balance: c.CurrentBalance}
		}
		c.CurrentBalance = c.CurrentBalance.Sub(amount)
		if err := st.InsertTransaction(ctx, &Transaction{
			ID:          uuid.NewString(),
			SavingID:    id,
			Date:        schedule.DateOnly(date),
			Amount:      amount,
			Type:        TxWithdrawal,
			IsCash:      isCash,
			Description: description,
		}); err != nil {
			return err
		}
		return s.recalcLocked(ctx, st, c)
	})
}

// PartialWithdraw removes funds subject to the minimum-balance floor:
// the balance may not drop below amount_at_open * min_balance_pct / 100.
func (s *Service) PartialWithdraw(ctx context.Context, id int64, amount decimal.Decimal, date time.Time, isCash bool, description string) error {
	if !amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "must be positive"}
	}
	return s.mutate(ctx, id, func(st Store, c *Contract) error {
		floor := schedule.RoundMoney(c.AmountAtOpen.Mul(c.MinBalancePct).Div(decimal.NewFromInt(100)))
		wouldBe := c.CurrentBalance.Sub(amount)
		if wouldBe.LessThan(floor) {
			return &MinBalanceError{SavingID: id, Floor: floor, WouldBe: wouldBe}
		}
		c.CurrentBalance = wouldBe
		if err := st.InsertTransaction(ctx, &Transaction{
			ID:          uuid.NewString(),
			SavingID:    id,
			Date:        schedule.DateOnly(date),
			Amount:      amount,
			Type:        TxPartialWithdrawal,
			IsCash:      isCash,
			Description: description,
		}); err != nil {
			return err
		}
		return s.recalcLocked(ctx, st, c)
	})
}

// PayoutInterest pays accrued interest out to the member. The payable
// amount is capped at what had accrued by the end of the previous calendar
// month, minus what was already paid out: payouts never draw on interest
// not yet accrued by month-end.
func (s *Service) PayoutInterest(ctx context.Context, id int64, amount decimal.Decimal, date time.Time, isCash bool) error {
	if !amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "must be positive"}
	}
	return s.mutate(ctx, id, func(st Store, c *Contract) error {
		monthEnd := schedule.EndOfPreviousMonth(date)
		accrued, err := st.AccruedThrough(ctx, id, monthEnd)
		if err != nil {
			return err
		}
		payable := accrued.Sub(c.PaidInterest)
		if amount.GreaterThan(payable) {
			return &PayoutCapError{SavingID: id, Requested: amount, Payable: payable}
		}
		c.PaidInterest = c.PaidInterest.Add(amount)
		return st.InsertTransaction(ctx, &Transaction{
			ID:       uuid.NewString(),
			SavingID: id,
			Date:     schedule.DateOnly(date),
			Amount:   amount,
			Type:     TxInterestPayout,
			IsCash:   isCash,
		})
	})
}

// =============================================================================
// RATE / TERM CHANGES, EARLY CLOSE
// =============================================================================

// ChangeRate records the rate change in the audit history and recalculates
// the projected schedule; the daily accrual job picks the new rate up from
// the contract, and backfills consult the history per sub-period.
func (s *Service) ChangeRate(ctx context.Context, id int64, newRate decimal.Decimal, effectiveDate time.Time, reason string) error {
	if newRate.IsNegative() {
		return &ValidationError{Field: "rate", Message: "must not be negative"}
	}
	return s.mutate(ctx, id, func(st Store, c *Contract) error {
		day := schedule.DateOnly(effectiveDate)
		if err := st.InsertRateChange(ctx, &RateChange{
			SavingID:      id,
			EffectiveDate: day,
			OldRate:       c.Rate,
			NewRate:       newRate,
			Reason:        reason,
		}); err != nil {
			return err
		}
		if err := st.InsertTransaction(ctx, &Transaction{
			ID:          uuid.NewString(),
			SavingID:    id,
			Date:        day,
			Amount:      decimal.Zero,
			Type:        TxRateChange,
			Description: reason,
		}); err != nil {
			return err
		}
		c.Rate = newRate
		return s.recalcLocked(ctx, st, c)
	})
}

// ChangeTerm moves the contract end date and recalculates the projection.
func (s *Service) ChangeTerm(ctx context.Context, id int64, newTermMonths int, date time.Time) error {
	if newTermMonths < 1 {
		return &ValidationError{Field: "term_months", Message: "must be at least 1"}
	}
	return s.mutate(ctx, id, func(st Store, c *Contract) error {
		c.TermMonths = newTermMonths
		c.EndDate = schedule.AddMonths(c.StartDate, newTermMonths)
		if err := st.InsertTransaction(ctx, &Transaction{
			ID:       uuid.NewString(),
			SavingID: id,
			Date:     schedule.DateOnly(date),
			Amount:   decimal.Zero,
			Type:     TxTermChange,
		}); err != nil {
			return err
		}
		return s.recalcLocked(ctx, st, c)
	})
}

// EarlyCloseResult reports the settlement of an early close.
type EarlyCloseResult struct {
	FinalAmount   decimal.Decimal `json:"final_amount"`
	EarlyInterest decimal.Decimal `json:"early_interest"`
}

// EarlyClose settles the contract before term. Interest is recomputed at
// the punitive early-close rate (0.1% of the opening principal); interest
// already paid out beyond that is clawed back from the returned balance.
func (s *Service) EarlyClose(ctx context.Context, id int64, date time.Time) (*EarlyCloseResult, error) {
	var result *EarlyCloseResult
	err := s.mutate(ctx, id, func(st Store, c *Contract) error {
		earlyInterest := schedule.RoundMoney(c.AmountAtOpen.Mul(earlyCloseRatePct).Div(decimal.NewFromInt(100)))
		overpaid := c.PaidInterest.Sub(earlyInterest)
		final := c.CurrentBalance
		if overpaid.IsPositive() {
			final = final.Sub(overpaid)
		}

		c.Status = StatusEarlyClosed
		c.CurrentBalance = final
		c.AccruedInterest = earlyInterest

		if err := st.InsertTransaction(ctx, &Transaction{
			ID:          uuid.NewString(),
			SavingID:    id,
			Date:        schedule.DateOnly(date),
			Amount:      final,
			Type:        TxEarlyClose,
			Description: "early close settlement",
		}); err != nil {
			return err
		}
		result = &EarlyCloseResult{FinalAmount: final, EarlyInterest: earlyInterest}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("savings contract closed early",
		zap.Int64("saving_id", id),
		zap.String("final_amount", result.FinalAmount.StringFixed(2)))
	return result, nil
}

// =============================================================================
// RECALCULATION
// =============================================================================

// Recalculate regenerates the projected schedule from the transaction and
// rate-change history. Rows already marked paid are preserved.
func (s *Service) Recalculate(ctx context.Context, id int64) error {
	return s.mutate(ctx, id, func(st Store, c *Contract) error {
		return s.recalcLocked(ctx, st, c)
	})
}

// RecalcAllActive sweeps every active contract. Each contract commits
// independently; failures are collected, not fatal.
func (s *Service) RecalcAllActive(ctx context.Context) (recalculated int, errs []error) {
	contracts, err := s.store.ListActiveContracts(ctx)
	if err != nil {
		return 0, []error{err}
	}
	for i := range contracts {
		if err := s.Recalculate(ctx, contracts[i].ID); err != nil {
			errs = append(errs, err)
			continue
		}
		recalculated++
	}
	return recalculated, errs
}

// recalcLocked rebuilds the unpaid schedule rows inside the caller's
// transaction and persists the contract.
func (s *Service) recalcLocked(ctx context.Context, st Store, c *Contract) error {
	txs, err := st.Transactions(ctx, c.ID)
	if err != nil {
		return err
	}
	rateChanges, err := st.RateChanges(ctx, c.ID)
	if err != nil {
		return err
	}

	initialRate := c.Rate
	if len(rateChanges) > 0 {
		initialRate = rateChanges[0].OldRate
	}

	events := buildEvents(txs, rateChanges)
	plan, err := schedule.SavingsPlanWithEvents(c.AmountAtOpen, initialRate, c.TermMonths, c.StartDate, c.PayoutType, events)
	if err != nil {
		return err
	}

	existing, err := st.ScheduleRows(ctx, c.ID)
	if err != nil {
		return err
	}
	maxPaid := 0
	for i := range existing {
		if existing[i].Status == RowPaid && existing[i].PeriodNo > maxPaid {
			maxPaid = existing[i].PeriodNo
		}
	}

	if _, err := st.DeleteUnpaidScheduleRows(ctx, c.ID); err != nil {
		return err
	}

	var fresh []ScheduleRow
	for _, p := range plan {
		if p.PeriodNo <= maxPaid {
			continue
		}
		fresh = append(fresh, ScheduleRow{
			SavingID:     c.ID,
			PeriodNo:     p.PeriodNo,
			PeriodStart:  p.PeriodStart,
			PeriodEnd:    p.PeriodEnd,
			Interest:     p.Interest,
			Cumulative:   p.Cumulative,
			BalanceAfter: p.BalanceAfter,
			Status:       RowPending,
		})
	}
	if len(fresh) > 0 {
		if err := st.InsertScheduleRows(ctx, fresh); err != nil {
			return err
		}
	}
	return nil
}

// buildEvents merges balance movements and rate changes into the event
// stream the generator splits periods on.
func buildEvents(txs []Transaction, rateChanges []RateChange) []schedule.BalanceEvent {
	var events []schedule.BalanceEvent
	for _, tx := range txs {
		switch tx.Type {
		case TxDeposit:
			events = append(events, schedule.BalanceEvent{At: tx.Date, Kind: schedule.EventDeposit, Amount: tx.Amount})
		case TxWithdrawal, TxPartialWithdrawal:
			events = append(events, schedule.BalanceEvent{At: tx.Date, Kind: schedule.EventWithdrawal, Amount: tx.Amount})
		}
	}
	for _, rc := range rateChanges {
		events = append(events, schedule.BalanceEvent{At: rc.EffectiveDate, Kind: schedule.EventRateChange, NewRate: rc.NewRate})
	}
	return events
}

// =============================================================================
// ADMINISTRATIVE CORRECTIONS
// =============================================================================
// The ledger is append-only in normal operation. Corrections edit or remove
// an entry AND reverse its effect on the contract's running totals, then
// recalculate the projection.

func (s *Service) UpdateTransaction(ctx context.Context, txID string, newAmount decimal.Decimal, newDate time.Time) error {
	if !newAmount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "must be positive"}
	}
	return s.store.WithTx(ctx, func(st Store) error {
		tx, err := st.GetTransaction(ctx, txID)
		if err != nil {
			return err
		}
		c, err := st.GetContract(ctx, tx.SavingID)
		if err != nil {
			return err
		}

		reverseEffect(c, tx)
		tx.Amount = newAmount
		tx.Date = schedule.DateOnly(newDate)
		applyEffect(c, tx)

		if err := st.UpdateTransaction(ctx, tx); err != nil {
			return err
		}
		if err := s.recalcLocked(ctx, st, c); err != nil {
			return err
		}
		return st.UpdateContract(ctx, c)
	})
}

func (s *Service) DeleteTransaction(ctx context.Context, txID string) error {
	return s.store.WithTx(ctx, func(st Store) error {
		tx, err := st.GetTransaction(ctx, txID)
		if err != nil {
			return err
		}
		c, err := st.GetContract(ctx, tx.SavingID)
		if err != nil {
			return err
		}

		reverseEffect(c, tx)
		if err := st.DeleteTransaction(ctx, txID); err != nil {
			return err
		}
		if err := s.recalcLocked(ctx, st, c); err != nil {
			return err
		}
		return st.UpdateContract(ctx, c)
	})
}

func applyEffect(c *Contract, tx *Transaction) {
	switch tx.Type {
	case TxDeposit:
		c.CurrentBalance = c.CurrentBalance.Add(tx.Amount)
		c.Amount = c.Amount.Add(tx.Amount)
	case TxWithdrawal, TxPartialWithdrawal:
		c.CurrentBalance = c.CurrentBalance.Sub(tx.Amount)
	case TxInterestPayout:
		c.PaidInterest = c.PaidInterest.Add(tx.Amount)
	case TxInterestAccrual:
		c.AccruedInterest = c.AccruedInterest.Add(tx.Amount)
	}
}

func reverseEffect(c *Contract, tx *Transaction) {
	switch tx.Type {
	case TxDeposit:
		c.CurrentBalance = c.CurrentBalance.Sub(tx.Amount)
		c.Amount = c.Amount.Sub(tx.Amount)
	case TxWithdrawal, TxPartialWithdrawal:
		c.CurrentBalance = c.CurrentBalance.Add(tx.Amount)
	case TxInterestPayout:
		c.PaidInterest = c.PaidInterest.Sub(tx.Amount)
	case TxInterestAccrual:
		c.AccruedInterest = c.AccruedInterest.Sub(tx.Amount)
	}
}

// mutate wraps the common active-contract transaction pattern.
func (s *Service) mutate(ctx context.Context, id int64, fn func(Store, *Contract) error) error {
	return s.store.WithTx(ctx, func(st Store) error {
		c, err := st.GetContract(ctx, id)
		if err != nil {
			return err
		}
		if c.Status != StatusActive {
			return ErrNotActive
		}
		if err := fn(st, c); err != nil {
			return err
		}
		c.UpdatedAt = time.Now().UTC()
		return st.UpdateContract(ctx, c)
	})
}

func rowsFromPlan(savingID int64, offset int, plan []schedule.SavingsRow) []ScheduleRow {
	rows := make([]ScheduleRow, 0, len(plan))
	for _, p := range plan {
		rows = append(rows, ScheduleRow{
			SavingID:     savingID,
			PeriodNo:     offset + p.PeriodNo,
			PeriodStart:  p.PeriodStart,
			PeriodEnd:    p.PeriodEnd,
			Interest:     p.Interest,
			Cumulative:   p.Cumulative,
			BalanceAfter: p.BalanceAfter,
			Status:       RowPending,
		})
	}
	return rows
}
