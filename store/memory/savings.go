package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coopfin/ledger-engine/savings"
)

// SavingsStore is an in-memory savings.TxStore.
type SavingsStore struct {
	contracts   map[int64]savings.Contract
	rows        map[int64]savings.ScheduleRow
	txs         map[string]savings.Transaction
	accruals    map[int64]savings.DailyAccrual
	accrualKeys map[string]int64 // "savingID/date" -> accrual ID
	rateChanges map[int64]savings.RateChange
	txSeq       map[string]int
	nextID      int64
	nextRowID   int64
	nextAccID   int64
	nextRCID    int64
	seq         int
}

func NewSavingsStore() *SavingsStore {
	return &SavingsStore{
		contracts:   make(map[int64]savings.Contract),
		rows:        make(map[int64]savings.ScheduleRow),
		txs:         make(map[string]savings.Transaction),
		accruals:    make(map[int64]savings.DailyAccrual),
		accrualKeys: make(map[string]int64),
		rateChanges: make(map[int64]savings.RateChange),
		txSeq:       make(map[string]int),
	}
}

func (m *SavingsStore) WithTx(ctx context.Context, fn func(savings.Store) error) error {
	snap := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *SavingsStore) snapshot() *SavingsStore {
	s := NewSavingsStore()
	for k, v := range m.contracts {
		s.contracts[k] = v
	}
	for k, v := range m.rows {
		s.rows[k] = v
	}
	for k, v := range m.txs {
		s.txs[k] = v
	}
	for k, v := range m.accruals {
		s.accruals[k] = v
	}
	for k, v := range m.accrualKeys {
		s.accrualKeys[k] = v
	}
	for k, v := range m.rateChanges {
		s.rateChanges[k] = v
	}
	for k, v := range m.txSeq {
		s.txSeq[k] = v
	}
	s.nextID, s.nextRowID, s.nextAccID, s.nextRCID, s.seq = m.nextID, m.nextRowID, m.nextAccID, m.nextRCID, m.seq
	return s
}

func (m *SavingsStore) restore(s *SavingsStore) {
	m.contracts, m.rows, m.txs = s.contracts, s.rows, s.txs
	m.accruals, m.accrualKeys, m.rateChanges, m.txSeq = s.accruals, s.accrualKeys, s.rateChanges, s.txSeq
	m.nextID, m.nextRowID, m.nextAccID, m.nextRCID, m.seq = s.nextID, s.nextRowID, s.nextAccID, s.nextRCID, s.seq
}

func (m *SavingsStore) CreateContract(_ context.Context, c *savings.Contract) error {
	m.nextID++
	c.ID = m.nextID
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt
	m.contracts[c.ID] = *c
	return nil
}

func (m *SavingsStore) GetContract(_ context.Context, id int64) (*savings.Contract, error) {
	c, ok := m.contracts[id]
	if !ok {
		return nil, savings.ErrNotFound
	}
	cp := c
	return &cp, nil
}

func (m *SavingsStore) UpdateContract(_ context.Context, c *savings.Contract) error {
	if _, ok := m.contracts[c.ID]; !ok {
		return savings.ErrNotFound
	}
	c.UpdatedAt = time.Now().UTC()
	m.contracts[c.ID] = *c
	return nil
}

func (m *SavingsStore) ListActiveContracts(_ context.Context) ([]savings.Contract, error) {
	var out []savings.Contract
	for _, c := range m.contracts {
		if c.Status == savings.StatusActive {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *SavingsStore) InsertScheduleRows(_ context.Context, rows []savings.ScheduleRow) error {
	for i := range rows {
		m.nextRowID++
		rows[i].ID = m.nextRowID
		m.rows[rows[i].ID] = rows[i]
	}
	return nil
}

func (m *SavingsStore) ScheduleRows(_ context.Context, savingID int64) ([]savings.ScheduleRow, error) {
	var out []savings.ScheduleRow
	for _, r := range m.rows {
		if r.SavingID == savingID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodNo < out[j].PeriodNo })
	return out, nil
}

func (m *SavingsStore) DeleteUnpaidScheduleRows(_ context.Context, savingID int64) (int, error) {
	n := 0
	for id, r := range m.rows {
		if r.SavingID == savingID && r.Status != savings.RowPaid {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

func (m *SavingsStore) InsertTransaction(_ context.Context, tx *savings.Transaction) error {
	tx.CreatedAt = time.Now().UTC()
	m.seq++
	m.txSeq[tx.ID] = m.seq
	m.txs[tx.ID] = *tx
	return nil
}

func (m *SavingsStore) GetTransaction(_ context.Context, id string) (*savings.Transaction, error) {
	tx, ok := m.txs[id]
	if !ok {
		return nil, savings.ErrNotFound
	}
	cp := tx
	return &cp, nil
}

func (m *SavingsStore) UpdateTransaction(_ context.Context, tx *savings.Transaction) error {
	if _, ok := m.txs[tx.ID]; !ok {
		return savings.ErrNotFound
	}
	m.txs[tx.ID] = *tx
	return nil
}

func (m *SavingsStore) DeleteTransaction(_ context.Context, id string) error {
	delete(m.txs, id)
	delete(m.txSeq, id)
	return nil
}

func (m *SavingsStore) Transactions(_ context.Context, savingID int64) ([]savings.Transaction, error) {
	var out []savings.Transaction
	for _, tx := range m.txs {
		if tx.SavingID == savingID {
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

func (m *SavingsStore) InsertDailyAccrual(_ context.Context, a *savings.DailyAccrual) error {
	key := accrualKey(a.SavingID, a.Date)
	if _, ok := m.accrualKeys[key]; ok {
		return fmt.Errorf("daily accrual already exists for saving %d on %s", a.SavingID, dateKey(a.Date))
	}
	m.nextAccID++
	a.ID = m.nextAccID
	m.accruals[a.ID] = *a
	m.accrualKeys[key] = a.ID
	return nil
}

func (m *SavingsStore) DailyAccrualExists(_ context.Context, savingID int64, day time.Time) (bool, error) {
	_, ok := m.accrualKeys[accrualKey(savingID, day)]
	return ok, nil
}

func (m *SavingsStore) DailyAccruals(_ context.Context, savingID int64) ([]savings.DailyAccrual, error) {
	var out []savings.DailyAccrual
	for _, a := range m.accruals {
		if a.SavingID == savingID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *SavingsStore) AccruedThrough(_ context.Context, savingID int64, through time.Time) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, a := range m.accruals {
		if a.SavingID == savingID && !a.Date.After(through) {
			sum = sum.Add(a.Amount)
		}
	}
	return sum, nil
}

func (m *SavingsStore) InsertRateChange(_ context.Context, rc *savings.RateChange) error {
	m.nextRCID++
	rc.ID = m.nextRCID
	rc.CreatedAt = time.Now().UTC()
	m.rateChanges[rc.ID] = *rc
	return nil
}

func (m *SavingsStore) RateChanges(_ context.Context, savingID int64) ([]savings.RateChange, error) {
	var out []savings.RateChange
	for _, rc := range m.rateChanges {
		if rc.SavingID == savingID {
			out = append(out, rc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EffectiveDate.Equal(out[j].EffectiveDate) {
			return out[i].EffectiveDate.Before(out[j].EffectiveDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func accrualKey(savingID int64, day time.Time) string {
	return fmt.Sprintf("%d/%s", savingID, dateKey(day))
}
