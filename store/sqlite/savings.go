package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coopfin/ledger-engine/savings"
	"github.com/coopfin/ledger-engine/schedule"
)

// SavingsStore implements savings.TxStore against SQLite.
type SavingsStore struct {
	db *sql.DB // nil inside a transaction
	q  querier
}

// WithTx executes fn within a database transaction.
func (s *SavingsStore) WithTx(ctx context.Context, fn func(savings.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&SavingsStore{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// =============================================================================
// CONTRACTS
// =============================================================================

const savingColumns = `id, contract_no, member_id, amount, rate, term_months, payout_type,
	start_date, end_date, current_balance, accrued_interest, paid_interest,
	min_balance_pct, amount_at_open, status, created_at, updated_at`

func (s *SavingsStore) CreateContract(ctx context.Context, c *savings.Contract) error {
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	res, err := s.q.ExecContext(ctx, `
		INSERT INTO savings (contract_no, member_id, amount, rate, term_months, payout_type,
			start_date, end_date, current_balance, accrued_interest, paid_interest,
			min_balance_pct, amount_at_open, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ContractNo, c.MemberID, c.Amount.String(), c.Rate.String(), c.TermMonths,
		string(c.PayoutType), fmtDate(c.StartDate), fmtDate(c.EndDate),
		c.CurrentBalance.String(), c.AccruedInterest.String(), c.PaidInterest.String(),
		c.MinBalancePct.String(), c.AmountAtOpen.String(), string(c.Status),
		fmtTime(now), fmtTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to insert savings contract: %w", err)
	}
	c.ID, err = res.LastInsertId()
	return err
}

func (s *SavingsStore) GetContract(ctx context.Context, id int64) (*savings.Contract, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+savingColumns+` FROM savings WHERE id = ?`, id)
	c, err := scanSaving(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, savings.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan savings contract: %w", err)
	}
	return c, nil
}

func (s *SavingsStore) UpdateContract(ctx context.Context, c *savings.Contract) error {
	c.UpdatedAt = time.Now().UTC()
	res, err := s.q.ExecContext(ctx, `
		UPDATE savings SET contract_no = ?, amount = ?, rate = ?, term_months = ?,
			payout_type = ?, start_date = ?, end_date = ?, current_balance = ?,
			accrued_interest = ?, paid_interest = ?, min_balance_pct = ?,
			amount_at_open = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		c.ContractNo, c.Amount.String(), c.Rate.String(), c.TermMonths,
		string(c.PayoutType), fmtDate(c.StartDate), fmtDate(c.EndDate),
		c.CurrentBalance.String(), c.AccruedInterest.String(), c.PaidInterest.String(),
		c.MinBalancePct.String(), c.AmountAtOpen.String(), string(c.Status),
		fmtTime(c.UpdatedAt), c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update savings contract: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return savings.ErrNotFound
	}
	return nil
}

func (s *SavingsStore) ListActiveContracts(ctx context.Context) ([]savings.Contract, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+savingColumns+` FROM savings WHERE status = 'active' ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []savings.Contract
	for rows.Next() {
		c, err := scanSaving(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan savings contract: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func scanSaving(sc rowScanner) (*savings.Contract, error) {
	var c savings.Contract
	var amount, rate, payout, startDate, endDate, balance, accrued, paid, minPct, atOpen, status, createdAt, updatedAt string

	err := sc.Scan(&c.ID, &c.ContractNo, &c.MemberID, &amount, &rate, &c.TermMonths,
		&payout, &startDate, &endDate, &balance, &accrued, &paid, &minPct, &atOpen,
		&status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	c.Amount = parseDec(amount)
	c.Rate = parseDec(rate)
	c.PayoutType = schedule.Payout(payout)
	c.StartDate = parseDate(startDate)
	c.EndDate = parseDate(endDate)
	c.CurrentBalance = parseDec(balance)
	c.AccruedInterest = parseDec(accrued)
	c.PaidInterest = parseDec(paid)
	c.MinBalancePct = parseDec(minPct)
	c.AmountAtOpen = parseDec(atOpen)
	c.Status = savings.Status(status)
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// =============================================================================
// SCHEDULE ROWS
// =============================================================================

func (s *SavingsStore) InsertScheduleRows(ctx context.Context, rows []savings.ScheduleRow) error {
	for i := range rows {
		r := &rows[i]
		res, err := s.q.ExecContext(ctx, `
			INSERT INTO savings_schedule (saving_id, period_no, period_start, period_end,
				interest, cumulative, balance_after, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.SavingID, r.PeriodNo, fmtDate(r.PeriodStart), fmtDate(r.PeriodEnd),
			r.Interest.String(), r.Cumulative.String(), r.BalanceAfter.String(), string(r.Status),
		)
		if err != nil {
			return fmt.Errorf("failed to insert savings schedule row %d: %w", r.PeriodNo, err)
		}
		r.ID, _ = res.LastInsertId()
	}
	return nil
}

func (s *SavingsStore) ScheduleRows(ctx context.Context, savingID int64) ([]savings.ScheduleRow, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, saving_id, period_no, period_start, period_end, interest, cumulative, balance_after, status
		FROM savings_schedule WHERE saving_id = ? ORDER BY period_no, id`, savingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query savings schedule: %w", err)
	}
	defer rows.Close()

	var out []savings.ScheduleRow
	for rows.Next() {
		var r savings.ScheduleRow
		var periodStart, periodEnd, interest, cumulative, balanceAfter, status string

		if err := rows.Scan(&r.ID, &r.SavingID, &r.PeriodNo, &periodStart, &periodEnd,
			&interest, &cumulative, &balanceAfter, &status); err != nil {
			return nil, fmt.Errorf("failed to scan savings schedule row: %w", err)
		}

		r.PeriodStart = parseDate(periodStart)
		r.PeriodEnd = parseDate(periodEnd)
		r.Interest = parseDec(interest)
		r.Cumulative = parseDec(cumulative)
		r.BalanceAfter = parseDec(balanceAfter)
		r.Status = savings.RowStatus(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SavingsStore) DeleteUnpaidScheduleRows(ctx context.Context, savingID int64) (int, error) {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM savings_schedule WHERE saving_id = ? AND status != 'paid'`, savingID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete unpaid savings rows: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (s *SavingsStore) InsertTransaction(ctx context.Context, tx *savings.Transaction) error {
	tx.CreatedAt = time.Now().UTC()
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO savings_transactions (id, saving_id, date, amount, type, is_cash, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.SavingID, fmtDate(tx.Date), tx.Amount.String(), string(tx.Type),
		tx.IsCash, tx.Description, fmtTime(tx.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert savings transaction: %w", err)
	}
	return nil
}

func (s *SavingsStore) GetTransaction(ctx context.Context, id string) (*savings.Transaction, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, saving_id, date, amount, type, is_cash, description, created_at
		FROM savings_transactions WHERE id = ?`, id)

	tx, err := scanSavingsTx(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, savings.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *SavingsStore) UpdateTransaction(ctx context.Context, tx *savings.Transaction) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE savings_transactions SET date = ?, amount = ?, type = ?, is_cash = ?, description = ?
		WHERE id = ?`,
		fmtDate(tx.Date), tx.Amount.String(), string(tx.Type), tx.IsCash, tx.Description, tx.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update savings transaction: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return savings.ErrNotFound
	}
	return nil
}

func (s *SavingsStore) DeleteTransaction(ctx context.Context, id string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM savings_transactions WHERE id = ?`, id)
	return err
}

func (s *SavingsStore) Transactions(ctx context.Context, savingID int64) ([]savings.Transaction, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, saving_id, date, amount, type, is_cash, description, created_at
		FROM savings_transactions WHERE saving_id = ? ORDER BY date, created_at`, savingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query savings transactions: %w", err)
	}
	defer rows.Close()

	var out []savings.Transaction
	for rows.Next() {
		tx, err := scanSavingsTx(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tx)
	}
	return out, rows.Err()
}

func scanSavingsTx(sc rowScanner) (*savings.Transaction, error) {
	var tx savings.Transaction
	var date, amount, txType, createdAt string

	err := sc.Scan(&tx.ID, &tx.SavingID, &date, &amount, &txType, &tx.IsCash, &tx.Description, &createdAt)
	if err != nil {
		return nil, err
	}

	tx.Date = parseDate(date)
	tx.Amount = parseDec(amount)
	tx.Type = savings.TxType(txType)
	tx.CreatedAt = parseTime(createdAt)
	return &tx, nil
}

// =============================================================================
// DAILY ACCRUALS
// =============================================================================

func (s *SavingsStore) InsertDailyAccrual(ctx context.Context, a *savings.DailyAccrual) error {
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO savings_daily_accruals (saving_id, accrual_date, balance, rate, amount)
		VALUES (?, ?, ?, ?, ?)`,
		a.SavingID, fmtDate(a.Date), a.Balance.String(), a.Rate.String(), a.Amount.String(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("daily accrual already exists for saving %d on %s", a.SavingID, fmtDate(a.Date))
		}
		return fmt.Errorf("failed to insert daily accrual: %w", err)
	}
	a.ID, _ = res.LastInsertId()
	return nil
}

func (s *SavingsStore) DailyAccrualExists(ctx context.Context, savingID int64, day time.Time) (bool, error) {
	var count int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM savings_daily_accruals WHERE saving_id = ? AND accrual_date = ?`,
		savingID, fmtDate(day),
	).Scan(&count)
	return count > 0, err
}

func (s *SavingsStore) DailyAccruals(ctx context.Context, savingID int64) ([]savings.DailyAccrual, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, saving_id, accrual_date, balance, rate, amount
		FROM savings_daily_accruals WHERE saving_id = ? ORDER BY accrual_date`, savingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily accruals: %w", err)
	}
	defer rows.Close()

	var out []savings.DailyAccrual
	for rows.Next() {
		var a savings.DailyAccrual
		var date, balance, rate, amount string

		if err := rows.Scan(&a.ID, &a.SavingID, &date, &balance, &rate, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan daily accrual: %w", err)
		}

		a.Date = parseDate(date)
		a.Balance = parseDec(balance)
		a.Rate = parseDec(rate)
		a.Amount = parseDec(amount)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SavingsStore) AccruedThrough(ctx context.Context, savingID int64, through time.Time) (decimal.Decimal, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT amount FROM savings_daily_accruals WHERE saving_id = ? AND accrual_date <= ?`,
		savingID, fmtDate(through))
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()

	// Sum in decimal, not in SQL: the amounts are TEXT and SQLite would
	// coerce them to floats.
	sum := decimal.Zero
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, err
		}
		sum = sum.Add(parseDec(amount))
	}
	return sum, rows.Err()
}

// =============================================================================
// RATE CHANGES
// =============================================================================

func (s *SavingsStore) InsertRateChange(ctx context.Context, rc *savings.RateChange) error {
	rc.CreatedAt = time.Now().UTC()
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO savings_rate_changes (saving_id, effective_date, old_rate, new_rate, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rc.SavingID, fmtDate(rc.EffectiveDate), rc.OldRate.String(), rc.NewRate.String(),
		rc.Reason, fmtTime(rc.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert rate change: %w", err)
	}
	rc.ID, _ = res.LastInsertId()
	return nil
}

func (s *SavingsStore) RateChanges(ctx context.Context, savingID int64) ([]savings.RateChange, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, saving_id, effective_date, old_rate, new_rate, reason, created_at
		FROM savings_rate_changes WHERE saving_id = ? ORDER BY effective_date, id`, savingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rate changes: %w", err)
	}
	defer rows.Close()

	var out []savings.RateChange
	for rows.Next() {
		var rc savings.RateChange
		var date, oldRate, newRate, createdAt string

		if err := rows.Scan(&rc.ID, &rc.SavingID, &date, &oldRate, &newRate, &rc.Reason, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan rate change: %w", err)
		}

		rc.EffectiveDate = parseDate(date)
		rc.OldRate = parseDec(oldRate)
		rc.NewRate = parseDec(newRate)
		rc.CreatedAt = parseTime(createdAt)
		out = append(out, rc)
	}
	return out, rows.Err()
}
