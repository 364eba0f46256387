/*
Package shares implements member share (equity) accounts: an opening
contribution, further contributions in, payouts out, and running totals.
Unlike loans and savings there is no interest math here; the account is a
plain balance with an audit trail.
*/
package shares

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/coopfin/ledger-engine/schedule"
)

type Status string

const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

type Account struct {
	ID        int64
	AccountNo string
	MemberID  int64
	Balance   decimal.Decimal
	TotalIn   decimal.Decimal
	TotalOut  decimal.Decimal
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Direction string

const (
	In  Direction = "in"
	Out Direction = "out"
)

type Transaction struct {
	ID          string
	AccountID   int64
	Date        time.Time
	Amount      decimal.Decimal
	Direction   Direction
	Description string
	CreatedAt   time.Time
}

var (
	ErrNotFound     = errors.New("share account not found")
	ErrInvalidInput = errors.New("invalid input")
)

// InsufficientFundsError rejects a payout beyond the account balance.
type InsufficientFundsError struct {
	AccountID int64
	Requested decimal.Decimal
	Balance   decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("payout %s exceeds share balance %s", e.Requested, e.Balance)
}

type Store interface {
	CreateAccount(ctx context.Context, a *Account) error
	GetAccount(ctx context.Context, id int64) (*Account, error)
	UpdateAccount(ctx context.Context, a *Account) error
	InsertTransaction(ctx context.Context, tx *Transaction) error
	Transactions(ctx context.Context, accountID int64) ([]Transaction, error)
}

type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}

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

// Open creates a share account, recording the initial contribution if any.
func (s *Service) Open(ctx context.Context, memberID int64, initial decimal.Decimal, date time.Time) (*Account, error) {
	if initial.IsNegative() {
		return nil, fmt.Errorf("%w: initial contribution must not be negative", ErrInvalidInput)
	}

	a := &Account{
		MemberID: memberID,
		Balance:  initial,
		TotalIn:  initial,
		TotalOut: decimal.Zero,
		Status:   StatusActive,
	}
	err := s.store.WithTx(ctx, func(st Store) error {
		if err := st.CreateAccount(ctx, a); err != nil {
			return err
		}
		a.AccountNo = fmt.Sprintf("SH-%06d", a.ID)
		if err := st.UpdateAccount(ctx, a); err != nil {
			return err
		}
		if initial.IsPositive() {
			return st.InsertTransaction(ctx, &Transaction{
				ID:          uuid.NewString(),
				AccountID:   a.ID,
				Date:        schedule.DateOnly(date),
				Amount:      initial,
				Direction:   In,
				Description: "opening share contribution",
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("share account opened", zap.Int64("account_id", a.ID), zap.String("account_no", a.AccountNo))
	return a, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Account, error) {
	return s.store.GetAccount(ctx, id)
}

func (s *Service) Detail(ctx context.Context, id int64) (*Account, []Transaction, error) {
	a, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	txs, err := s.store.Transactions(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return a, txs, nil
}

// Apply records a contribution (in) or payout (out). Payouts beyond the
// balance are rejected with no effect.
func (s *Service) Apply(ctx context.Context, accountID int64, amount decimal.Decimal, direction Direction, date time.Time, description string) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	if direction != In && direction != Out {
		return fmt.Errorf("%w: direction must be in or out", ErrInvalidInput)
	}

	return s.store.WithTx(ctx, func(st Store) error {
		a, err := st.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		switch direction {
		case In:
			a.Balance = a.Balance.Add(amount)
			a.TotalIn = a.TotalIn.Add(amount)
		case Out:
			if amount.GreaterThan(a.Balance) {
				return &InsufficientFundsError{AccountID: accountID, Requested: amount, Balance: a.Balance}
			}
			a.Balance = a.Balance.Sub(amount)
			a.TotalOut = a.TotalOut.Add(amount)
		}
		if err := st.UpdateAccount(ctx, a); err != nil {
			return err
		}
		return st.InsertTransaction(ctx, &Transaction{
			ID:          uuid.NewString(),
			AccountID:   accountID,
			Date:        schedule.DateOnly(date),
			Amount:      amount,
			Direction:   direction,
			Description: description,
		})
	})
}
