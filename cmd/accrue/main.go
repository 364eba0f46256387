/*
main.go - One-shot accrual and overdue-sweep CLI

PURPOSE:
  Cron-friendly entry point for the date-driven maintenance jobs. Runs the
  savings daily-accrual for a given date (or a backfill over a range), then
  the loan overdue sweep, and exits. Both jobs are idempotent, so a rerun
  after a partial failure is safe.

COMMAND-LINE FLAGS:
  -db         SQLite database path (default: ledger.db)
  -date       Accrual date YYYY-MM-DD (default: yesterday)
  -saving     Contract ID for -from/-to backfill (0 = skip backfill)
  -from, -to  Backfill range YYYY-MM-DD (requires -saving)
  -sweep      Also run the loan overdue sweep (default: true)

EXAMPLES:
  # Nightly cron entry
  ./accrue -db=./data/ledger.db

  # Backfill a contract after retroactive transactions
  ./accrue -db=./data/ledger.db -saving=42 -from=2026-01-01 -to=2026-03-31

SEE ALSO:
  - savings/accrual.go: accrual run and backfill
  - api/scheduler.go: the same jobs run in-process
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/coopfin/ledger-engine/loan"
	"github.com/coopfin/ledger-engine/savings"
	"github.com/coopfin/ledger-engine/store/sqlite"
)

func main() {
	dbPath := flag.String("db", "ledger.db", "SQLite database path")
	dateStr := flag.String("date", "", "accrual date YYYY-MM-DD (default: yesterday)")
	savingID := flag.Int64("saving", 0, "contract ID for backfill (0 = skip)")
	fromStr := flag.String("from", "", "backfill range start YYYY-MM-DD")
	toStr := flag.String("to", "", "backfill range end YYYY-MM-DD")
	sweep := flag.Bool("sweep", true, "also run the loan overdue sweep")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	db, err := sqlite.Open(*dbPath)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	ctx := context.Background()
	sav := savings.NewService(db.Savings(), logger)
	loans := loan.NewService(db.Loans(), logger)

	if *savingID != 0 {
		from, err := time.Parse("2006-01-02", *fromStr)
		if err != nil {
			logger.Fatal("invalid -from", zap.Error(err))
		}
		to, err := time.Parse("2006-01-02", *toStr)
		if err != nil {
			logger.Fatal("invalid -to", zap.Error(err))
		}
		result, err := sav.Backfill(ctx, *savingID, from, to)
		if err != nil {
			logger.Fatal("backfill failed", zap.Error(err))
		}
		logger.Info("backfill complete",
			zap.Int64("saving_id", *savingID),
			zap.Int("days", result.DaysAccrued),
			zap.String("total", result.TotalAmount.StringFixed(2)))
		return
	}

	date := time.Now().AddDate(0, 0, -1)
	if *dateStr != "" {
		date, err = time.Parse("2006-01-02", *dateStr)
		if err != nil {
			logger.Fatal("invalid -date", zap.Error(err))
		}
	}

	result, err := sav.AccrueDaily(ctx, date)
	if err != nil {
		logger.Fatal("accrual run failed", zap.Error(err))
	}
	logger.Info("accrual complete",
		zap.Int("processed", result.Processed),
		zap.Int("skipped", result.Skipped),
		zap.String("total", result.TotalAccrued.StringFixed(2)))

	if *sweep {
		flagged, err := loans.SweepOverdue(ctx, time.Now())
		if err != nil {
			logger.Fatal("overdue sweep failed", zap.Error(err))
		}
		logger.Info("overdue sweep complete", zap.Int("flagged_rows", flagged))
	}
}
