/*
handlers.go - HTTP API handlers for the ledger engine

PURPOSE:
  Exposes the loan, savings and share services via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Loans:
    POST   /api/loans                        Originate a loan
    POST   /api/loans/preview                Schedule preview (no persistence)
    GET    /api/loans/{id}                   Contract + schedule + payments
    POST   /api/loans/{id}/payments          Apply a payment
    POST   /api/loans/{id}/resolve-overpayment  Resolve a parked overpayment
    POST   /api/loans/{id}/early-repayment   Early full/partial repayment
    POST   /api/loans/{id}/rate              Change rate
    POST   /api/loans/{id}/term              Change term
    POST   /api/loans/{id}/repair            Rebuild schedule from payments
    PUT    /api/loan-payments/{paymentID}    Admin payment correction
    DELETE /api/loan-payments/{paymentID}    Admin payment removal

  Savings:
    POST   /api/savings                      Open a contract
    POST   /api/savings/preview              Interest projection
    GET    /api/savings/{id}                 Contract + schedule + ledger
    POST   /api/savings/{id}/deposit         Deposit
    POST   /api/savings/{id}/withdraw        Withdrawal
    POST   /api/savings/{id}/partial-withdraw  Floor-checked withdrawal
    POST   /api/savings/{id}/payout          Interest payout
    POST   /api/savings/{id}/rate            Rate change
    POST   /api/savings/{id}/term            Term change
    POST   /api/savings/{id}/early-close     Punitive early close
    POST   /api/savings/{id}/recalculate     Regenerate schedule
    POST   /api/savings/{id}/backfill        Backfill daily accruals
    PUT    /api/savings-transactions/{txID}  Admin transaction correction
    DELETE /api/savings-transactions/{txID}  Admin transaction removal

  Shares:
    POST   /api/shares                       Open a share account
    GET    /api/shares/{id}                  Account + transactions
    POST   /api/shares/{id}/transactions     Contribution / payout

  Admin:
    POST   /api/admin/accrue                 Run a day's savings accrual
    POST   /api/admin/sweep-overdue          Mark overdue loan rows

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: A significant overpayment needs a strategy decision (or one is
         already pending); the body carries both option previews
  - 422: Business-rule rejections (closed contract, balance floor, payout cap)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/coopfin/ledger-engine/loan"
	"github.com/coopfin/ledger-engine/savings"
	"github.com/coopfin/ledger-engine/schedule"
	"github.com/coopfin/ledger-engine/shares"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Loans   *loan.Service
	Savings *savings.Service
	Shares  *shares.Service
	Log     *zap.Logger
}

// NewHandler creates a new handler over the three domain services.
func NewHandler(loans *loan.Service, sav *savings.Service, sh *shares.Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Loans: loans, Savings: sav, Shares: sh, Log: log}
}

// =============================================================================
// LOAN HANDLERS
// =============================================================================

// CreateLoan originates a loan and returns the persisted schedule.
func (h *Handler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req CreateLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date", err)
		return
	}

	c, rows, err := h.Loans.Create(r.Context(), loan.CreateInput{
		ContractNo: req.ContractNo,
		MemberID:   req.MemberID,
		Amount:     req.Amount,
		Rate:       req.Rate,
		TermMonths: req.TermMonths,
		Convention: schedule.Convention(req.Convention),
		StartDate:  start,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	loansCreated.Inc()
	writeJSON(w, http.StatusCreated, LoanDetailResponse{
		Loan:     loanDTO(c),
		Schedule: loanRowDTOs(rows),
		Payments: []PaymentDTO{},
	})
}

// PreviewLoan generates a schedule without persisting anything.
func (h *Handler) PreviewLoan(w http.ResponseWriter, r *http.Request) {
	var req PreviewLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date", err)
		return
	}

	rows, installment, err := h.Loans.Preview(schedule.Convention(req.Convention), req.Amount, req.Rate, req.TermMonths, start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid schedule parameters", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"installment": installment.StringFixed(2),
		"schedule":    previewRowDTOs(rows),
	})
}

// GetLoan returns the contract with its schedule and payment history.
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	c, rows, payments, err := h.Loans.Detail(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, LoanDetailResponse{
		Loan:     loanDTO(c),
		Schedule: loanRowDTOs(rows),
		Payments: paymentDTOs(payments),
	})
}

// ApplyPayment allocates a tendered amount. A significant overpayment gets
// a 409 with both strategy previews; nothing is applied until resolved.
func (h *Handler) ApplyPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}

	result, err := h.Loans.ApplyPayment(r.Context(), id, req.Amount, date)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if result.Choice != nil {
		writeJSON(w, http.StatusConflict, result.Choice)
		return
	}

	paymentsApplied.Inc()
	writeJSON(w, http.StatusOK, paymentResponse(result))
}

// ResolveOverpayment applies a parked overpayment with the chosen strategy.
func (h *Handler) ResolveOverpayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req ResolveChoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.Loans.ResolveOverpaymentChoice(r.Context(), id, loan.Strategy(req.Strategy))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	paymentsApplied.Inc()
	writeJSON(w, http.StatusOK, paymentResponse(result))
}

// EarlyRepayment retires principal ahead of schedule.
func (h *Handler) EarlyRepayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req EarlyRepaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}

	result, err := h.Loans.ApplyEarlyRepayment(r.Context(), id, req.Amount, date, loan.Strategy(req.Strategy))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	paymentsApplied.Inc()
	writeJSON(w, http.StatusOK, paymentResponse(result))
}

// ChangeLoanRate regenerates the unpaid schedule at a new rate.
func (h *Handler) ChangeLoanRate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req ChangeRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := parseDate(req.EffectiveDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_date", err)
		return
	}

	result, err := h.Loans.ChangeRate(r.Context(), id, req.Rate, date, req.Reason)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentResponse(result))
}

// ChangeLoanTerm stretches or shortens the contract.
func (h *Handler) ChangeLoanTerm(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req ChangeTermRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := parseDate(req.EffectiveDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_date", err)
		return
	}

	result, err := h.Loans.ChangeTerm(r.Context(), id, req.TermMonths, date)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentResponse(result))
}

// RepairLoan rebuilds the schedule and balance from the payment history.
func (h *Handler) RepairLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	result, err := h.Loans.Repair(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// UpdateLoanPayment is the admin payment correction path.
func (h *Handler) UpdateLoanPayment(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentID")
	var req UpdatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	upd := loan.PaymentUpdate{
		PaymentID:     paymentID,
		Amount:        req.Amount,
		PrincipalPart: req.PrincipalPart,
		InterestPart:  req.InterestPart,
		PenaltyPart:   req.PenaltyPart,
	}
	if req.Date != nil {
		date, err := parseDate(*req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date", err)
			return
		}
		upd.Date = &date
	}

	if err := h.Loans.UpdatePayment(r.Context(), upd); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// DeleteLoanPayment removes a payment and reverses its balance effect.
func (h *Handler) DeleteLoanPayment(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentID")
	if err := h.Loans.DeletePayment(r.Context(), paymentID); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// SweepOverdue marks overdue rows across all open loans.
func (h *Handler) SweepOverdue(w http.ResponseWriter, r *http.Request) {
	flagged, err := h.Loans.SweepOverdue(r.Context(), time.Now())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SweepResponse{FlaggedRows: flagged})
}

// =============================================================================
// SAVINGS HANDLERS
// =============================================================================

// OpenSavings opens a contract and returns the projected schedule.
func (h *Handler) OpenSavings(w http.ResponseWriter, r *http.Request) {
	var req OpenSavingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date", err)
		return
	}

	c, rows, err := h.Savings.Open(r.Context(), savings.OpenInput{
		ContractNo:    req.ContractNo,
		MemberID:      req.MemberID,
		Amount:        req.Amount,
		Rate:          req.Rate,
		TermMonths:    req.TermMonths,
		PayoutType:    schedule.Payout(req.PayoutType),
		StartDate:     start,
		MinBalancePct: req.MinBalancePct,
	})
	if err != nil {
		h.writeSavingsError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, SavingsDetailResponse{
		Saving:       savingsDTO(c),
		Schedule:     savingsRowDTOs(rows),
		Transactions: []SavingsTxDTO{},
	})
}

// PreviewSavings projects an interest schedule without persisting anything.
func (h *Handler) PreviewSavings(w http.ResponseWriter, r *http.Request) {
	var req PreviewSavingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date", err)
		return
	}

	rows, err := h.Savings.Preview(req.Amount, req.Rate, req.TermMonths, start, schedule.Payout(req.PayoutType))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid schedule parameters", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schedule": savingsPreviewRowDTOs(rows)})
}

// GetSavings returns the contract with its schedule and ledger.
func (h *Handler) GetSavings(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	c, rows, txs, err := h.Savings.Detail(r.Context(), id)
	if err != nil {
		h.writeSavingsError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SavingsDetailResponse{
		Saving:       savingsDTO(c),
		Schedule:     savingsRowDTOs(rows),
		Transactions: savingsTxDTOs(txs),
	})
}

func (h *Handler) savingsMovement(w http.ResponseWriter, r *http.Request,
	apply func(id int64, req SavingsMovementRequest, date time.Time) error) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req SavingsMovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}

	if err := apply(id, req, date); err != nil {
		h.writeSavingsError(w, err)
		return
	}

	c, err := h.Savings.Get(r.Context(), id)
	if err != nil {
		h.writeSavingsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, savingsDTO(c))
}

// Deposit adds funds and recalculates the projection.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.savingsMovement(w, r, func(id int64, req SavingsMovementRequest, date time.Time) error {
		return h.Savings.Deposit(r.Context(), id, req.Amount, date, req.IsCash, req.Description)
	})
}

// Withdraw removes funds, bounded by the current balance.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.savingsMovement(w, r, func(id int64, req SavingsMovementRequest, date time.Time) error {
		return h.Savings.Withdraw(r.Context(), id, req.Amount, date, req.IsCash, req.Description)
	})
}

// PartialWithdraw removes funds, bounded by the contract's balance floor.
func (h *Handler) PartialWithdraw(w http.ResponseWriter, r *http.Request) {
	h.savingsMovement(w, r, func(id int64, req SavingsMovementRequest, date time.Time) error {
		return h.Savings.PartialWithdraw(r.Context(), id, req.Amount, date, req.IsCash, req.Description)
	})
}

// PayoutInterest pays accrued interest out, capped at what had accrued by
// the end of the previous calendar month.
func (h *Handler) PayoutInterest(w http.ResponseWriter, r *http.Request) {
	h.savingsMovement(w, r, func(id int64, req SavingsMovementRequest, date time.Time) error {
		return h.Savings.PayoutInterest(r.Context(), id, req.Amount, date, req.IsCash)
	})
}

// ChangeSavingsRate records a rate change and recalculates the projection.
func (h *Handler) ChangeSavingsRate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req ChangeRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := parseDate(req.EffectiveDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_date", err)
		return
	}

	if err := h.Savings.ChangeRate(r.Context(), id, req.Rate, date, req.Reason); err != nil {
		h.writeSavingsError(w, err)
		return
	}
	h.respondSavings(w, r, id)
}

// ChangeSavingsTerm moves the contract end date and recalculates.
func (h *Handler) ChangeSavingsTerm(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req SavingsTermRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := parseDate(req.EffectiveDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_date", err)
		return
	}

	if err := h.Savings.ChangeTerm(r.Context(), id, req.TermMonths, date); err != nil {
		h.writeSavingsError(w, err)
		return
	}
	h.respondSavings(w, r, id)
}

// EarlyCloseSavings settles the contract at the punitive early-close rate.
func (h *Handler) EarlyCloseSavings(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req AccrueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}

	result, err := h.Savings.EarlyClose(r.Context(), id, date)
	if err != nil {
		h.writeSavingsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RecalculateSavings regenerates the projected schedule from history.
func (h *Handler) RecalculateSavings(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.Savings.Recalculate(r.Context(), id); err != nil {
		h.writeSavingsError(w, err)
		return
	}
	h.respondSavings(w, r, id)
}

// BackfillAccruals fills missing daily accrual rows over a date range.
func (h *Handler) BackfillAccruals(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req BackfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	from, err := parseDate(req.DateFrom)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date_from", err)
		return
	}
	to, err := parseDate(req.DateTo)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date_to", err)
		return
	}

	result, err := h.Savings.Backfill(r.Context(), id, from, to)
	if err != nil {
		h.writeSavingsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// UpdateSavingsTransaction is the admin ledger correction path.
func (h *Handler) UpdateSavingsTransaction(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "txID")
	var req UpdateSavingsTxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}

	if err := h.Savings.UpdateTransaction(r.Context(), txID, req.Amount, date); err != nil {
		h.writeSavingsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// DeleteSavingsTransaction removes an entry and reverses its effect.
func (h *Handler) DeleteSavingsTransaction(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "txID")
	if err := h.Savings.DeleteTransaction(r.Context(), txID); err != nil {
		h.writeSavingsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// AccrueDaily runs one day's interest accrual across all active contracts.
func (h *Handler) AccrueDaily(w http.ResponseWriter, r *http.Request) {
	var req AccrueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}

	result, err := h.Savings.AccrueDaily(r.Context(), date)
	if err != nil {
		h.writeSavingsError(w, err)
		return
	}
	accrualRows.Add(float64(result.Processed))
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) respondSavings(w http.ResponseWriter, r *http.Request, id int64) {
	c, err := h.Savings.Get(r.Context(), id)
	if err != nil {
		h.writeSavingsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, savingsDTO(c))
}

// =============================================================================
// SHARE HANDLERS
// =============================================================================

// OpenShares opens a member share account.
func (h *Handler) OpenShares(w http.ResponseWriter, r *http.Request) {
	var req OpenSharesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}

	a, err := h.Shares.Open(r.Context(), req.MemberID, req.Initial, date)
	if err != nil {
		h.writeSharesError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, shareAccountDTO(a))
}

// GetShares returns the account with its transaction history.
func (h *Handler) GetShares(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	a, txs, err := h.Shares.Detail(r.Context(), id)
	if err != nil {
		h.writeSharesError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ShareDetailResponse{
		Account:      shareAccountDTO(a),
		Transactions: shareTxDTOs(txs),
	})
}

// ApplyShareTransaction records a contribution or payout.
func (h *Handler) ApplyShareTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req ShareMovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}

	if err := h.Shares.Apply(r.Context(), id, req.Amount, shares.Direction(req.Direction), date, req.Description); err != nil {
		h.writeSharesError(w, err)
		return
	}

	a, err := h.Shares.Get(r.Context(), id)
	if err != nil {
		h.writeSharesError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, shareAccountDTO(a))
}

// =============================================================================
// ERROR MAPPING / RESPONSE HELPERS
// =============================================================================

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case loan.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case loan.IsValidation(err):
		writeError(w, http.StatusBadRequest, "Invalid input", err)
	case errors.Is(err, loan.ErrChoicePending), errors.Is(err, loan.ErrNoPendingChoice):
		writeError(w, http.StatusConflict, "Overpayment choice state conflict", err)
	case loan.IsPolicy(err):
		writeError(w, http.StatusUnprocessableEntity, "Operation not permitted", err)
	default:
		h.Log.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func (h *Handler) writeSavingsError(w http.ResponseWriter, err error) {
	switch {
	case savings.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case savings.IsValidation(err):
		writeError(w, http.StatusBadRequest, "Invalid input", err)
	case savings.IsPolicy(err):
		writeError(w, http.StatusUnprocessableEntity, "Operation not permitted", err)
	default:
		h.Log.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func (h *Handler) writeSharesError(w http.ResponseWriter, err error) {
	var ife *shares.InsufficientFundsError
	switch {
	case errors.Is(err, shares.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, shares.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "Invalid input", err)
	case errors.As(err, &ife):
		writeError(w, http.StatusUnprocessableEntity, "Operation not permitted", err)
	default:
		h.Log.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid id", err)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	resp := ErrorResponse{Error: msg}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
