/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the back-office frontend

ROUTE GROUPS:
  /api/loans/*     Loan origination, payments, restructuring, repair
  /api/savings/*   Savings contracts, movements, accrual backfill
  /api/shares/*    Member share accounts
  /api/admin/*     Daily accrual run and overdue sweep
  /metrics         Prometheus metrics

SECURITY NOTE:
  No authentication middleware currently. The service is expected to run
  behind the teller-facing gateway that handles auth.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Loan routes
		r.Route("/loans", func(r chi.Router) {
			r.Post("/", h.CreateLoan)
			r.Post("/preview", h.PreviewLoan)
			r.Get("/{id}", h.GetLoan)
			r.Post("/{id}/payments", h.ApplyPayment)
			r.Post("/{id}/resolve-overpayment", h.ResolveOverpayment)
			r.Post("/{id}/early-repayment", h.EarlyRepayment)
			r.Post("/{id}/rate", h.ChangeLoanRate)
			r.Post("/{id}/term", h.ChangeLoanTerm)
			r.Post("/{id}/repair", h.RepairLoan)
		})

		// Payment corrections (admin)
		r.Route("/loan-payments", func(r chi.Router) {
			r.Put("/{paymentID}", h.UpdateLoanPayment)
			r.Delete("/{paymentID}", h.DeleteLoanPayment)
		})

		// Savings routes
		r.Route("/savings", func(r chi.Router) {
			r.Post("/", h.OpenSavings)
			r.Post("/preview", h.PreviewSavings)
			r.Get("/{id}", h.GetSavings)
			r.Post("/{id}/deposit", h.Deposit)
			r.Post("/{id}/withdraw", h.Withdraw)
			r.Post("/{id}/partial-withdraw", h.PartialWithdraw)
			r.Post("/{id}/payout", h.PayoutInterest)
			r.Post("/{id}/rate", h.ChangeSavingsRate)
			r.Post("/{id}/term", h.ChangeSavingsTerm)
			r.Post("/{id}/early-close", h.EarlyCloseSavings)
			r.Post("/{id}/recalculate", h.RecalculateSavings)
			r.Post("/{id}/backfill", h.BackfillAccruals)
		})

		// Ledger corrections (admin)
		r.Route("/savings-transactions", func(r chi.Router) {
			r.Put("/{txID}", h.UpdateSavingsTransaction)
			r.Delete("/{txID}", h.DeleteSavingsTransaction)
		})

		// Share routes
		r.Route("/shares", func(r chi.Router) {
			r.Post("/", h.OpenShares)
			r.Get("/{id}", h.GetShares)
			r.Post("/{id}/transactions", h.ApplyShareTransaction)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/accrue", h.AccrueDaily)
			r.Post("/sweep-overdue", h.SweepOverdue)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
