package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/coopfin/ledger-engine/shares"
)

// ShareStore implements shares.TxStore against SQLite.
type ShareStore struct {
	db *sql.DB // nil inside a transaction
	q  querier
}

// WithTx executes fn within a database transaction.
func (s *ShareStore) WithTx(ctx context.Context, fn func(shares.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&ShareStore{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *ShareStore) CreateAccount(ctx context.Context, a *shares.Account) error {
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	res, err := s.q.ExecContext(ctx, `
		INSERT INTO share_accounts (account_no, member_id, balance, total_in, total_out, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.AccountNo, a.MemberID, a.Balance.String(), a.TotalIn.String(), a.TotalOut.String(),
		string(a.Status), fmtTime(now), fmtTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to insert share account: %w", err)
	}
	a.ID, err = res.LastInsertId()
	return err
}

func (s *ShareStore) GetAccount(ctx context.Context, id int64) (*shares.Account, error) {
	var a shares.Account
	var balance, totalIn, totalOut, status, createdAt, updatedAt string

	err := s.q.QueryRowContext(ctx, `
		SELECT id, account_no, member_id, balance, total_in, total_out, status, created_at, updated_at
		FROM share_accounts WHERE id = ?`, id,
	).Scan(&a.ID, &a.AccountNo, &a.MemberID, &balance, &totalIn, &totalOut, &status, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shares.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan share account: %w", err)
	}

	a.Balance = parseDec(balance)
	a.TotalIn = parseDec(totalIn)
	a.TotalOut = parseDec(totalOut)
	a.Status = shares.Status(status)
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	return &a, nil
}

func (s *ShareStore) UpdateAccount(ctx context.Context, a *shares.Account) error {
	a.UpdatedAt = time.Now().UTC()
	res, err := s.q.ExecContext(ctx, `
		UPDATE share_accounts SET account_no = ?, balance = ?, total_in = ?, total_out = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		a.AccountNo, a.Balance.String(), a.TotalIn.String(), a.TotalOut.String(),
		string(a.Status), fmtTime(a.UpdatedAt), a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update share account: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return shares.ErrNotFound
	}
	return nil
}

func (s *ShareStore) InsertTransaction(ctx context.Context, tx *shares.Transaction) error {
	tx.CreatedAt = time.Now().UTC()
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO share_transactions (id, account_id, date, amount, direction, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.AccountID, fmtDate(tx.Date), tx.Amount.String(), string(tx.Direction),
		tx.Description, fmtTime(tx.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert share transaction: %w", err)
	}
	return nil
}

func (s *ShareStore) Transactions(ctx context.Context, accountID int64) ([]shares.Transaction, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, account_id, date, amount, direction, description, created_at
		FROM share_transactions WHERE account_id = ? ORDER BY date, created_at`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query share transactions: %w", err)
	}
	defer rows.Close()

	var out []shares.Transaction
	for rows.Next() {
		var tx shares.Transaction
		var date, amount, direction, createdAt string

		if err := rows.Scan(&tx.ID, &tx.AccountID, &date, &amount, &direction, &tx.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan share transaction: %w", err)
		}

		tx.Date = parseDate(date)
		tx.Amount = parseDec(amount)
		tx.Direction = shares.Direction(direction)
		tx.CreatedAt = parseTime(createdAt)
		out = append(out, tx)
	}
	return out, rows.Err()
}
