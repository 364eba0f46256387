package memory

import (
	"context"
	"sort"
	"time"

	"github.com/coopfin/ledger-engine/shares"
)

// ShareStore is an in-memory shares.TxStore.
type ShareStore struct {
	accounts map[int64]shares.Account
	txs      map[string]shares.Transaction
	txSeq    map[string]int
	nextID   int64
	seq      int
}

func NewShareStore() *ShareStore {
	return &ShareStore{
		accounts: make(map[int64]shares.Account),
		txs:      make(map[string]shares.Transaction),
		txSeq:    make(map[string]int),
	}
}

func (m *ShareStore) WithTx(ctx context.Context, fn func(shares.Store) error) error {
	snap := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *ShareStore) snapshot() *ShareStore {
	s := NewShareStore()
	for k, v := range m.accounts {
		s.accounts[k] = v
	}
	for k, v := range m.txs {
		s.txs[k] = v
	}
	for k, v := range m.txSeq {
		s.txSeq[k] = v
	}
	s.nextID, s.seq = m.nextID, m.seq
	return s
}

func (m *ShareStore) restore(s *ShareStore) {
	m.accounts, m.txs, m.txSeq = s.accounts, s.txs, s.txSeq
	m.nextID, m.seq = s.nextID, s.seq
}

func (m *ShareStore) CreateAccount(_ context.Context, a *shares.Account) error {
	m.nextID++
	a.ID = m.nextID
	a.CreatedAt = time.Now().UTC()
	a.UpdatedAt = a.CreatedAt
	m.accounts[a.ID] = *a
	return nil
}

func (m *ShareStore) GetAccount(_ context.Context, id int64) (*shares.Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return nil, shares.ErrNotFound
	}
	cp := a
	return &cp, nil
}

func (m *ShareStore) UpdateAccount(_ context.Context, a *shares.Account) error {
	if _, ok := m.accounts[a.ID]; !ok {
		return shares.ErrNotFound
	}
	a.UpdatedAt = time.Now().UTC()
	m.accounts[a.ID] = *a
	return nil
}

func (m *ShareStore) InsertTransaction(_ context.Context, tx *shares.Transaction) error {
	tx.CreatedAt = time.Now().UTC()
	m.seq++
	m.txSeq[tx.ID] = m.seq
	m.txs[tx.ID] = *tx
	return nil
}

func (m *ShareStore) Transactions(_ context.Context, accountID int64) ([]shares.Transaction, error) {
	var out []shares.Transaction
	for _, tx := range m.txs {
		if tx.AccountID == accountID {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return m.txSeq[out[i].ID] < m.txSeq[out[j].ID]
	})
	return out, nil
}
