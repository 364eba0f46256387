/*
Package sqlite provides the SQLite-backed implementations of the loan,
savings and share store interfaces.

KEY TABLES:
  loans / loan_schedule / loan_payments: contracts, the mutable schedule,
    and the immutable payment history the schedule reconciles against
  loan_pending_choices: parked overpayments awaiting a strategy
  savings / savings_schedule / savings_transactions: deposit contracts,
    the projected interest table, and the balance-movement ledger
  savings_daily_accruals: one row per (contract, day); the UNIQUE index on
    (saving_id, accrual_date) is what makes accrual runs idempotent
  savings_rate_changes: append-only rate history
  share_accounts / share_transactions: member equity

CONVENTIONS:
  Money is stored as TEXT decimal strings, never floats. Calendar dates
  (due dates, accrual days) are TEXT "YYYY-MM-DD"; timestamps are RFC3339.

WAL MODE:
  The database is opened with WAL and foreign keys on. Readers do not
  block each other; there is a single writer at a time.

MIGRATION:
  Schema is auto-migrated on Open(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - loan/store.go, savings/store.go, shares/shares.go: interface definitions
  - store/memory: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// DB owns the connection and hands out the per-domain stores.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and migrates the schema.
// Use ":memory:" for an in-memory database.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return d, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Loans returns the loan store backed by this database.
func (d *DB) Loans() *LoanStore {
	return &LoanStore{db: d.db, q: d.db}
}

// Savings returns the savings store backed by this database.
func (d *DB) Savings() *SavingsStore {
	return &SavingsStore{db: d.db, q: d.db}
}

// Shares returns the share-account store backed by this database.
func (d *DB) Shares() *ShareStore {
	return &ShareStore{db: d.db, q: d.db}
}

func (d *DB) migrate() error {
	schema := `
	-- Loans
	CREATE TABLE IF NOT EXISTS loans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		contract_no TEXT NOT NULL DEFAULT '',
		member_id INTEGER NOT NULL,
		amount TEXT NOT NULL,
		rate TEXT NOT NULL,
		term_months INTEGER NOT NULL,
		convention TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		monthly_payment TEXT NOT NULL,
		balance TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_loans_status ON loans(status);
	CREATE INDEX IF NOT EXISTS idx_loans_member ON loans(member_id);

	CREATE TABLE IF NOT EXISTS loan_schedule (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		loan_id INTEGER NOT NULL REFERENCES loans(id),
		period_no INTEGER NOT NULL,
		due_date TEXT NOT NULL,
		payment TEXT NOT NULL,
		principal TEXT NOT NULL,
		interest TEXT NOT NULL,
		penalty TEXT NOT NULL DEFAULT '0',
		balance_after TEXT NOT NULL,
		paid_amount TEXT NOT NULL DEFAULT '0',
		paid_date TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		overdue_days INTEGER NOT NULL DEFAULT 0
	);

	-- Deliberately NOT unique on (loan_id, period_no): drifted databases
	-- imported from older systems can carry duplicate periods, and Repair
	-- must be able to read them before it removes them.
	CREATE INDEX IF NOT EXISTS idx_loan_schedule_loan
		ON loan_schedule(loan_id, period_no);
	CREATE INDEX IF NOT EXISTS idx_loan_schedule_due
		ON loan_schedule(status, due_date);

	CREATE TABLE IF NOT EXISTS loan_payments (
		id TEXT PRIMARY KEY,
		loan_id INTEGER NOT NULL REFERENCES loans(id),
		date TEXT NOT NULL,
		amount TEXT NOT NULL,
		principal_part TEXT NOT NULL,
		interest_part TEXT NOT NULL,
		penalty_part TEXT NOT NULL,
		type TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_loan_payments_loan
		ON loan_payments(loan_id, date);

	CREATE TABLE IF NOT EXISTS loan_pending_choices (
		loan_id INTEGER PRIMARY KEY REFERENCES loans(id),
		amount TEXT NOT NULL,
		date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Savings
	CREATE TABLE IF NOT EXISTS savings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		contract_no TEXT NOT NULL DEFAULT '',
		member_id INTEGER NOT NULL,
		amount TEXT NOT NULL,
		rate TEXT NOT NULL,
		term_months INTEGER NOT NULL,
		payout_type TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		current_balance TEXT NOT NULL,
		accrued_interest TEXT NOT NULL DEFAULT '0',
		paid_interest TEXT NOT NULL DEFAULT '0',
		min_balance_pct TEXT NOT NULL DEFAULT '0',
		amount_at_open TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_savings_status ON savings(status);
	CREATE INDEX IF NOT EXISTS idx_savings_member ON savings(member_id);

	CREATE TABLE IF NOT EXISTS savings_schedule (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		saving_id INTEGER NOT NULL REFERENCES savings(id),
		period_no INTEGER NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		interest TEXT NOT NULL,
		cumulative TEXT NOT NULL,
		balance_after TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending'
	);

	CREATE INDEX IF NOT EXISTS idx_savings_schedule_saving
		ON savings_schedule(saving_id, period_no);

	CREATE TABLE IF NOT EXISTS savings_transactions (
		id TEXT PRIMARY KEY,
		saving_id INTEGER NOT NULL REFERENCES savings(id),
		date TEXT NOT NULL,
		amount TEXT NOT NULL,
		type TEXT NOT NULL,
		is_cash BOOLEAN NOT NULL DEFAULT FALSE,
		description TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_savings_transactions_saving
		ON savings_transactions(saving_id, date);

	CREATE TABLE IF NOT EXISTS savings_daily_accruals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		saving_id INTEGER NOT NULL REFERENCES savings(id),
		accrual_date TEXT NOT NULL,
		balance TEXT NOT NULL,
		rate TEXT NOT NULL,
		amount TEXT NOT NULL
	);

	-- CRITICAL: one accrual row per contract per calendar day. The daily
	-- job and the backfill both rely on this to stay idempotent.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_daily_accruals_unique
		ON savings_daily_accruals(saving_id, accrual_date);

	CREATE TABLE IF NOT EXISTS savings_rate_changes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		saving_id INTEGER NOT NULL REFERENCES savings(id),
		effective_date TEXT NOT NULL,
		old_rate TEXT NOT NULL,
		new_rate TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rate_changes_saving
		ON savings_rate_changes(saving_id, effective_date);

	-- Shares
	CREATE TABLE IF NOT EXISTS share_accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_no TEXT NOT NULL DEFAULT '',
		member_id INTEGER NOT NULL,
		balance TEXT NOT NULL,
		total_in TEXT NOT NULL,
		total_out TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS share_transactions (
		id TEXT PRIMARY KEY,
		account_id INTEGER NOT NULL REFERENCES share_accounts(id),
		date TEXT NOT NULL,
		amount TEXT NOT NULL,
		direction TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_share_transactions_account
		ON share_transactions(account_id, date);
	`

	_, err := d.db.Exec(schema)
	return err
}

// querier is the subset of *sql.DB and *sql.Tx the stores use, so the same
// query code runs inside and outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// HELPERS - date / decimal / null marshalling
// =============================================================================

const dateLayout = "2006-01-02"

func fmtDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

func parseDate(s string) time.Time {
	t, _ := time.Parse(dateLayout, s)
	return t
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func parseDec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: fmtDate(*t), Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
