/*
scheduler.go - Nightly job scheduler

PURPOSE:
  Periodically runs the two date-driven maintenance jobs: the savings
  daily-accrual run and the loan overdue sweep. Both jobs are idempotent
  (the accrual ledger is keyed by day, the sweep re-derives state), so a
  check that fires more than once per day is harmless.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each tick accrues "yesterday" and sweeps as of "today"
  - Errors are logged, never fatal; the next tick retries

USAGE:
  scheduler := NewScheduler(loans, savings, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - cmd/accrue: one-shot CLI for the same jobs (cron-friendly)
  - savings/accrual.go: the accrual run itself
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/coopfin/ledger-engine/loan"
	"github.com/coopfin/ledger-engine/savings"
)

// Scheduler drives the nightly accrual and overdue jobs in-process.
type Scheduler struct {
	Loans         *loan.Service
	Savings       *savings.Service
	CheckInterval time.Duration
	Enabled       bool

	log    *zap.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewScheduler creates a scheduler with a one-hour check interval.
func NewScheduler(loans *loan.Service, sav *savings.Service, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		Loans:         loans,
		Savings:       sav,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		log:           log,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.log.Info("scheduler disabled, not starting")
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)
	go s.run()

	s.log.Info("scheduler started", zap.Duration("interval", s.CheckInterval))
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.log.Info("scheduler stopped")
	}
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.RunNow()

	for {
		select {
		case <-s.ticker.C:
			s.RunNow()
		case <-s.stop:
			return
		}
	}
}

// RunNow executes one round of jobs (also used by tests and admin tooling).
func (s *Scheduler) RunNow() {
	ctx := context.Background()
	now := time.Now()

	// Accrue through yesterday; today's balance can still move.
	yesterday := now.AddDate(0, 0, -1)
	if result, err := s.Savings.AccrueDaily(ctx, yesterday); err != nil {
		s.log.Error("scheduled accrual failed", zap.Error(err))
	} else if result.Processed > 0 {
		accrualRows.Add(float64(result.Processed))
	}

	if flagged, err := s.Loans.SweepOverdue(ctx, now); err != nil {
		s.log.Error("scheduled overdue sweep failed", zap.Error(err))
	} else if flagged > 0 {
		s.log.Info("overdue sweep", zap.Int("flagged_rows", flagged))
	}
}
