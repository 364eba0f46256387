package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/coopfin/ledger-engine/loan"
	"github.com/coopfin/ledger-engine/schedule"
)

// LoanStore implements loan.TxStore against SQLite.
type LoanStore struct {
	db *sql.DB // nil inside a transaction
	q  querier
}

// WithTx executes fn within a database transaction.
func (s *LoanStore) WithTx(ctx context.Context, fn func(loan.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&LoanStore{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// =============================================================================
// CONTRACTS
// =============================================================================

const loanColumns = `id, contract_no, member_id, amount, rate, term_months, convention,
	start_date, end_date, monthly_payment, balance, status, created_at, updated_at`

func (s *LoanStore) CreateContract(ctx context.Context, c *loan.Contract) error {
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	res, err := s.q.ExecContext(ctx, `
		INSERT INTO loans (contract_no, member_id, amount, rate, term_months, convention,
			start_date, end_date, monthly_payment, balance, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ContractNo, c.MemberID, c.Amount.String(), c.Rate.String(), c.TermMonths,
		string(c.Convention), fmtDate(c.StartDate), fmtDate(c.EndDate),
		c.MonthlyPayment.String(), c.Balance.String(), string(c.Status),
		fmtTime(now), fmtTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to insert loan: %w", err)
	}
	c.ID, err = res.LastInsertId()
	return err
}

func (s *LoanStore) GetContract(ctx context.Context, id int64) (*loan.Contract, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+loanColumns+` FROM loans WHERE id = ?`, id)
	return scanLoan(row)
}

func (s *LoanStore) UpdateContract(ctx context.Context, c *loan.Contract) error {
	c.UpdatedAt = time.Now().UTC()
	res, err := s.q.ExecContext(ctx, `
		UPDATE loans SET contract_no = ?, amount = ?, rate = ?, term_months = ?,
			convention = ?, start_date = ?, end_date = ?, monthly_payment = ?,
			balance = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		c.ContractNo, c.Amount.String(), c.Rate.String(), c.TermMonths,
		string(c.Convention), fmtDate(c.StartDate), fmtDate(c.EndDate),
		c.MonthlyPayment.String(), c.Balance.String(), string(c.Status),
		fmtTime(c.UpdatedAt), c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return loan.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(row *sql.Row) (*loan.Contract, error) {
	var c loan.Contract
	var amount, rate, convention, startDate, endDate, monthly, balance, status, createdAt, updatedAt string

	err := row.Scan(&c.ID, &c.ContractNo, &c.MemberID, &amount, &rate, &c.TermMonths,
		&convention, &startDate, &endDate, &monthly, &balance, &status, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, loan.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan loan: %w", err)
	}

	c.Amount = parseDec(amount)
	c.Rate = parseDec(rate)
	c.Convention = schedule.Convention(convention)
	c.StartDate = parseDate(startDate)
	c.EndDate = parseDate(endDate)
	c.MonthlyPayment = parseDec(monthly)
	c.Balance = parseDec(balance)
	c.Status = loan.Status(status)
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// =============================================================================
// SCHEDULE ROWS
// =============================================================================

const loanRowColumns = `id, loan_id, period_no, due_date, payment, principal, interest,
	penalty, balance_after, paid_amount, paid_date, status, overdue_days`

func (s *LoanStore) InsertScheduleRows(ctx context.Context, rows []loan.ScheduleRow) error {
	for i := range rows {
		r := &rows[i]
		res, err := s.q.ExecContext(ctx, `
			INSERT INTO loan_schedule (loan_id, period_no, due_date, payment, principal,
				interest, penalty, balance_after, paid_amount, paid_date, status, overdue_days)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.LoanID, r.PeriodNo, fmtDate(r.DueDate), r.Payment.String(), r.Principal.String(),
			r.Interest.String(), r.Penalty.String(), r.BalanceAfter.String(),
			r.PaidAmount.String(), nullDate(r.PaidDate), string(r.Status), r.OverdueDays,
		)
		if err != nil {
			return fmt.Errorf("failed to insert schedule row %d: %w", r.PeriodNo, err)
		}
		r.ID, _ = res.LastInsertId()
	}
	return nil
}

func (s *LoanStore) ScheduleRows(ctx context.Context, loanID int64) ([]loan.ScheduleRow, error) {
	return s.queryScheduleRows(ctx, `
		SELECT `+loanRowColumns+` FROM loan_schedule
		WHERE loan_id = ? ORDER BY period_no, id`, loanID)
}

func (s *LoanStore) OutstandingRows(ctx context.Context, loanID int64) ([]loan.ScheduleRow, error) {
	return s.queryScheduleRows(ctx, `
		SELECT `+loanRowColumns+` FROM loan_schedule
		WHERE loan_id = ? AND status != 'paid' ORDER BY period_no, id`, loanID)
}

func (s *LoanStore) UpdateScheduleRow(ctx context.Context, row *loan.ScheduleRow) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE loan_schedule SET period_no = ?, due_date = ?, payment = ?, principal = ?,
			interest = ?, penalty = ?, balance_after = ?, paid_amount = ?, paid_date = ?,
			status = ?, overdue_days = ?
		WHERE id = ?`,
		row.PeriodNo, fmtDate(row.DueDate), row.Payment.String(), row.Principal.String(),
		row.Interest.String(), row.Penalty.String(), row.BalanceAfter.String(),
		row.PaidAmount.String(), nullDate(row.PaidDate), string(row.Status),
		row.OverdueDays, row.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update schedule row: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return loan.ErrNotFound
	}
	return nil
}

func (s *LoanStore) DeleteUnpaidRows(ctx context.Context, loanID int64) (int, error) {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM loan_schedule WHERE loan_id = ? AND status != 'paid'`, loanID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete unpaid rows: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *LoanStore) DeleteScheduleRow(ctx context.Context, rowID int64) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM loan_schedule WHERE id = ?`, rowID)
	return err
}

func (s *LoanStore) ListOverdueUnpaidRows(ctx context.Context, before time.Time) ([]loan.ScheduleRow, error) {
	return s.queryScheduleRows(ctx, `
		SELECT `+loanRowColumns+` FROM loan_schedule
		WHERE status != 'paid' AND due_date < ? ORDER BY id`, fmtDate(before))
}

func (s *LoanStore) queryScheduleRows(ctx context.Context, query string, args ...any) ([]loan.ScheduleRow, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule rows: %w", err)
	}
	defer rows.Close()

	var out []loan.ScheduleRow
	for rows.Next() {
		var r loan.ScheduleRow
		var dueDate, payment, principal, interest, penalty, balanceAfter, paidAmount, status string
		var paidDate sql.NullString

		if err := rows.Scan(&r.ID, &r.LoanID, &r.PeriodNo, &dueDate, &payment, &principal,
			&interest, &penalty, &balanceAfter, &paidAmount, &paidDate, &status, &r.OverdueDays); err != nil {
			return nil, fmt.Errorf("failed to scan schedule row: %w", err)
		}

		r.DueDate = parseDate(dueDate)
		r.Payment = parseDec(payment)
		r.Principal = parseDec(principal)
		r.Interest = parseDec(interest)
		r.Penalty = parseDec(penalty)
		r.BalanceAfter = parseDec(balanceAfter)
		r.PaidAmount = parseDec(paidAmount)
		r.Status = loan.RowStatus(status)
		if paidDate.Valid {
			t := parseDate(paidDate.String)
			r.PaidDate = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (s *LoanStore) InsertPayment(ctx context.Context, p *loan.Payment) error {
	p.CreatedAt = time.Now().UTC()
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO loan_payments (id, loan_id, date, amount, principal_part,
			interest_part, penalty_part, type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.LoanID, fmtDate(p.Date), p.Amount.String(), p.PrincipalPart.String(),
		p.InterestPart.String(), p.PenaltyPart.String(), string(p.Type), fmtTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func (s *LoanStore) GetPayment(ctx context.Context, id string) (*loan.Payment, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, loan_id, date, amount, principal_part, interest_part, penalty_part, type, created_at
		FROM loan_payments WHERE id = ?`, id)

	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, loan.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *LoanStore) UpdatePayment(ctx context.Context, p *loan.Payment) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE loan_payments SET date = ?, amount = ?, principal_part = ?,
			interest_part = ?, penalty_part = ?, type = ?
		WHERE id = ?`,
		fmtDate(p.Date), p.Amount.String(), p.PrincipalPart.String(),
		p.InterestPart.String(), p.PenaltyPart.String(), string(p.Type), p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return loan.ErrNotFound
	}
	return nil
}

func (s *LoanStore) DeletePayment(ctx context.Context, id string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM loan_payments WHERE id = ?`, id)
	return err
}

func (s *LoanStore) Payments(ctx context.Context, loanID int64) ([]loan.Payment, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, loan_id, date, amount, principal_part, interest_part, penalty_part, type, created_at
		FROM loan_payments WHERE loan_id = ? ORDER BY date, created_at`, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var out []loan.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanPayment(sc rowScanner) (*loan.Payment, error) {
	var p loan.Payment
	var date, amount, principal, interest, penalty, ptype, createdAt string

	err := sc.Scan(&p.ID, &p.LoanID, &date, &amount, &principal, &interest, &penalty, &ptype, &createdAt)
	if err != nil {
		return nil, err
	}

	p.Date = parseDate(date)
	p.Amount = parseDec(amount)
	p.PrincipalPart = parseDec(principal)
	p.InterestPart = parseDec(interest)
	p.PenaltyPart = parseDec(penalty)
	p.Type = loan.PaymentType(ptype)
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

// =============================================================================
// PENDING CHOICES
// =============================================================================

func (s *LoanStore) SavePendingChoice(ctx context.Context, pc *loan.PendingChoice) error {
	pc.CreatedAt = time.Now().UTC()
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO loan_pending_choices (loan_id, amount, date, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(loan_id) DO UPDATE SET
			amount = excluded.amount,
			date = excluded.date,
			created_at = excluded.created_at`,
		pc.LoanID, pc.Amount.String(), fmtDate(pc.Date), fmtTime(pc.CreatedAt),
	)
	return err
}

func (s *LoanStore) GetPendingChoice(ctx context.Context, loanID int64) (*loan.PendingChoice, error) {
	var pc loan.PendingChoice
	var amount, date, createdAt string

	err := s.q.QueryRowContext(ctx, `
		SELECT loan_id, amount, date, created_at FROM loan_pending_choices WHERE loan_id = ?`,
		loanID,
	).Scan(&pc.LoanID, &amount, &date, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	pc.Amount = parseDec(amount)
	pc.Date = parseDate(date)
	pc.CreatedAt = parseTime(createdAt)
	return &pc, nil
}

func (s *LoanStore) DeletePendingChoice(ctx context.Context, loanID int64) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM loan_pending_choices WHERE loan_id = ?`, loanID)
	return err
}
