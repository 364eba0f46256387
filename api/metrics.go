package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operational counters, exported at /metrics. Intentionally coarse: the
// interesting numbers for this system are business events, not latencies.
var (
	loansCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_loans_created_total",
		Help: "Loans originated.",
	})

	paymentsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_loan_payments_applied_total",
		Help: "Loan payments applied, including resolved overpayments and early repayments.",
	})

	accrualRows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_savings_accrual_rows_total",
		Help: "Daily savings accrual rows written.",
	})
)
