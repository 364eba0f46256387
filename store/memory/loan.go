package memory

import (
	"context"
	"sort"
	"time"

	"github.com/coopfin/ledger-engine/loan"
	"github.com/coopfin/ledger-engine/schedule"
)

// LoanStore is an in-memory loan.TxStore.
type LoanStore struct {
	contracts map[int64]loan.Contract
	rows      map[int64]loan.ScheduleRow
	payments  map[string]loan.Payment
	choices   map[int64]loan.PendingChoice
	paySeq    map[string]int // insertion order for stable payment listing
	nextID    int64
	nextRowID int64
	seq       int
}

func NewLoanStore() *LoanStore {
	return &LoanStore{
		contracts: make(map[int64]loan.Contract),
		rows:      make(map[int64]loan.ScheduleRow),
		payments:  make(map[string]loan.Payment),
		choices:   make(map[int64]loan.PendingChoice),
		paySeq:    make(map[string]int),
	}
}

func (m *LoanStore) WithTx(ctx context.Context, fn func(loan.Store) error) error {
	snap := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *LoanStore) snapshot() *LoanStore {
	s := NewLoanStore()
	for k, v := range m.contracts {
		s.contracts[k] = v
	}
	for k, v := range m.rows {
		s.rows[k] = v
	}
	for k, v := range m.payments {
		s.payments[k] = v
	}
	for k, v := range m.choices {
		s.choices[k] = v
	}
	for k, v := range m.paySeq {
		s.paySeq[k] = v
	}
	s.nextID, s.nextRowID, s.seq = m.nextID, m.nextRowID, m.seq
	return s
}

func (m *LoanStore) restore(s *LoanStore) {
	m.contracts, m.rows, m.payments, m.choices, m.paySeq = s.contracts, s.rows, s.payments, s.choices, s.paySeq
	m.nextID, m.nextRowID, m.seq = s.nextID, s.nextRowID, s.seq
}

func (m *LoanStore) CreateContract(_ context.Context, c *loan.Contract) error {
	m.nextID++
	c.ID = m.nextID
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt
	m.contracts[c.ID] = *c
	return nil
}

func (m *LoanStore) GetContract(_ context.Context, id int64) (*loan.Contract, error) {
	c, ok := m.contracts[id]
	if !ok {
		return nil, loan.ErrNotFound
	}
	cp := c
	return &cp, nil
}

func (m *LoanStore) UpdateContract(_ context.Context, c *loan.Contract) error {
	if _, ok := m.contracts[c.ID]; !ok {
		return loan.ErrNotFound
	}
	c.UpdatedAt = time.Now().UTC()
	m.contracts[c.ID] = *c
	return nil
}

func (m *LoanStore) InsertScheduleRows(_ context.Context, rows []loan.ScheduleRow) error {
	for i := range rows {
		m.nextRowID++
		rows[i].ID = m.nextRowID
		m.rows[rows[i].ID] = rows[i]
	}
	return nil
}

func (m *LoanStore) ScheduleRows(_ context.Context, loanID int64) ([]loan.ScheduleRow, error) {
	var out []loan.ScheduleRow
	for _, r := range m.rows {
		if r.LoanID == loanID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodNo < out[j].PeriodNo })
	return out, nil
}

func (m *LoanStore) OutstandingRows(ctx context.Context, loanID int64) ([]loan.ScheduleRow, error) {
	rows, _ := m.ScheduleRows(ctx, loanID)
	var out []loan.ScheduleRow
	for _, r := range rows {
		if r.Status != loan.RowPaid {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *LoanStore) UpdateScheduleRow(_ context.Context, row *loan.ScheduleRow) error {
	if _, ok := m.rows[row.ID]; !ok {
		return loan.ErrNotFound
	}
	m.rows[row.ID] = *row
	return nil
}

func (m *LoanStore) DeleteUnpaidRows(_ context.Context, loanID int64) (int, error) {
	n := 0
	for id, r := range m.rows {
		if r.LoanID == loanID && r.Status != loan.RowPaid {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

func (m *LoanStore) DeleteScheduleRow(_ context.Context, rowID int64) error {
	delete(m.rows, rowID)
	return nil
}

func (m *LoanStore) InsertPayment(_ context.Context, p *loan.Payment) error {
	p.CreatedAt = time.Now().UTC()
	m.seq++
	m.paySeq[p.ID] = m.seq
	m.payments[p.ID] = *p
	return nil
}

func (m *LoanStore) GetPayment(_ context.Context, id string) (*loan.Payment, error) {
	p, ok := m.payments[id]
	if !ok {
		return nil, loan.ErrNotFound
	}
	cp := p
	return &cp, nil
}

func (m *LoanStore) UpdatePayment(_ context.Context, p *loan.Payment) error {
	if _, ok := m.payments[p.ID]; !ok {
		return loan.ErrNotFound
	}
	m.payments[p.ID] = *p
	return nil
}

func (m *LoanStore) DeletePayment(_ context.Context, id string) error {
	delete(m.payments, id)
	delete(m.paySeq, id)
	return nil
}

func (m *LoanStore) Payments(_ context.Context, loanID int64) ([]loan.Payment, error) {
	var out []loan.Payment
	for _, p := range m.payments {
		if p.LoanID == loanID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return m.paySeq[out[i].ID] < m.paySeq[out[j].ID]
	})
	return out, nil
}

func (m *LoanStore) SavePendingChoice(_ context.Context, pc *loan.PendingChoice) error {
	pc.CreatedAt = time.Now().UTC()
	m.choices[pc.LoanID] = *pc
	return nil
}

func (m *LoanStore) GetPendingChoice(_ context.Context, loanID int64) (*loan.PendingChoice, error) {
	pc, ok := m.choices[loanID]
	if !ok {
		return nil, nil
	}
	cp := pc
	return &cp, nil
}

func (m *LoanStore) DeletePendingChoice(_ context.Context, loanID int64) error {
	delete(m.choices, loanID)
	return nil
}

func (m *LoanStore) ListOverdueUnpaidRows(_ context.Context, before time.Time) ([]loan.ScheduleRow, error) {
	day := schedule.DateOnly(before)
	var out []loan.ScheduleRow
	for _, r := range m.rows {
		if r.Status != loan.RowPaid && r.DueDate.Before(day) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
