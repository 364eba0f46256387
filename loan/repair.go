package loan

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/coopfin/ledger-engine/schedule"
)

// =============================================================================
// ADMINISTRATIVE REPAIR
// =============================================================================
// Repair does not trust the persisted schedule: it removes duplicate period
// rows, zeroes every paid marker and replays the full payment history
// through the allocator. The payment records are the ground truth; the
// authoritative balance is original principal minus the sum of recorded
// principal parts. Historical bugs (double inserts, missed updates) drift
// the rows away from that truth, and this is the explicit operation that
// pulls them back.

// RepairResult reports what Repair changed.
type RepairResult struct {
	RemovedDuplicates int             `json:"removed_duplicates"`
	NewBalance        decimal.Decimal `json:"new_balance"`
}

// Repair rebuilds paid/partial/pending statuses and the contract balance
// from the recorded payment history.
func (s *Service) Repair(ctx context.Context, loanID int64) (*RepairResult, error) {
	var result *RepairResult
	err := s.store.WithTx(ctx, func(st Store) error {
		c, err := st.GetContract(ctx, loanID)
		if err != nil {
			return err
		}

		rows, err := st.ScheduleRows(ctx, loanID)
		if err != nil {
			return err
		}

		rows, removed, err := dropDuplicateRows(ctx, st, rows)
		if err != nil {
			return err
		}

		// Zero the slate before replay.
		for i := range rows {
			rows[i].PaidAmount = decimal.Zero
			rows[i].PaidDate = nil
			rows[i].Status = RowPending
			rows[i].OverdueDays = 0
		}

		payments, err := st.Payments(ctx, loanID)
		if err != nil {
			return err
		}

		paidPrincipal := decimal.Zero
		for _, p := range payments {
			paidPrincipal = paidPrincipal.Add(p.PrincipalPart)
			replayPayment(rows, p.Amount, p.Date)
		}

		for i := range rows {
			if err := st.UpdateScheduleRow(ctx, &rows[i]); err != nil {
				return err
			}
		}

		balance := c.Amount.Sub(paidPrincipal)
		if balance.IsNegative() {
			balance = decimal.Zero
		}
		c.Balance = balance
		if balance.IsZero() {
			c.Status = StatusClosed
		} else {
			// Repair recomputes from ground truth and may reopen.
			c.Status = DeriveStatus(StatusActive, rows, time.Now())
		}
		if err := st.UpdateContract(ctx, c); err != nil {
			return err
		}

		result = &RepairResult{RemovedDuplicates: removed, NewBalance: balance}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("schedule repaired",
		zap.Int64("loan_id", loanID),
		zap.Int("removed_duplicates", result.RemovedDuplicates),
		zap.String("new_balance", result.NewBalance.StringFixed(2)))
	return result, nil
}

// dropDuplicateRows keeps one row per period number: a paid row wins,
// otherwise the most recently inserted one. Duplicates come from historical
// double inserts; the schema deliberately has no unique index on
// (loan_id, period_no) so a drifted database stays readable here.
func dropDuplicateRows(ctx context.Context, st Store, rows []ScheduleRow) ([]ScheduleRow, int, error) {
	byPeriod := make(map[int]ScheduleRow)
	removed := 0
	for _, row := range rows {
		keeper, seen := byPeriod[row.PeriodNo]
		if !seen {
			byPeriod[row.PeriodNo] = row
			continue
		}
		loser := row
		if row.Status == RowPaid && keeper.Status != RowPaid {
			loser, byPeriod[row.PeriodNo] = keeper, row
		} else if keeper.Status == row.Status && row.ID > keeper.ID {
			loser, byPeriod[row.PeriodNo] = keeper, row
		}
		if err := st.DeleteScheduleRow(ctx, loser.ID); err != nil {
			return nil, removed, err
		}
		removed++
	}

	kept := make([]ScheduleRow, 0, len(byPeriod))
	for _, row := range rows {
		if keeper, ok := byPeriod[row.PeriodNo]; ok && keeper.ID == row.ID {
			kept = append(kept, keeper)
		}
	}
	return kept, removed, nil
}

// replayPayment runs one historical payment through the allocator against
// the in-memory rows. Replay considers the whole remaining schedule in
// period order: a historical payment may legitimately have prepaid future
// rows, and period order reproduces the original walk.
func replayPayment(rows []ScheduleRow, amount decimal.Decimal, date time.Time) {
	var open []ScheduleRow
	idx := make([]int, 0, len(rows))
	for i := range rows {
		if rows[i].Status != RowPaid {
			open = append(open, rows[i])
			idx = append(idx, i)
		}
	}
	alloc := Allocate(open, amount, schedule.DateOnly(date))
	for _, updated := range alloc.Rows {
		for j, i := range idx {
			if open[j].ID == updated.ID && open[j].PeriodNo == updated.PeriodNo {
				rows[i] = updated
				break
			}
		}
	}
}
