/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY AND DATES:
  Money travels as JSON strings ("10661.85") so no precision is lost in
  transit; decimal.Decimal accepts both strings and numbers on input.
  Calendar dates are "YYYY-MM-DD".

SEE ALSO:
  - handlers.go: Uses these types
  - server.go: Router setup and middleware
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/coopfin/ledger-engine/loan"
	"github.com/coopfin/ledger-engine/savings"
	"github.com/coopfin/ledger-engine/schedule"
	"github.com/coopfin/ledger-engine/shares"
)

const dateLayout = "2006-01-02"

func parseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

// =============================================================================
// LOAN DTOs
// =============================================================================

type CreateLoanRequest struct {
	ContractNo string          `json:"contract_no"`
	MemberID   int64           `json:"member_id"`
	Amount     decimal.Decimal `json:"amount"`
	Rate       decimal.Decimal `json:"rate"`
	TermMonths int             `json:"term_months"`
	Convention string          `json:"convention"`
	StartDate  string          `json:"start_date"`
}

type PreviewLoanRequest struct {
	Amount     decimal.Decimal `json:"amount"`
	Rate       decimal.Decimal `json:"rate"`
	TermMonths int             `json:"term_months"`
	Convention string          `json:"convention"`
	StartDate  string          `json:"start_date"`
}

type PaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Date   string          `json:"date"`
}

type ResolveChoiceRequest struct {
	Strategy string `json:"strategy"`
}

type EarlyRepaymentRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Date     string          `json:"date"`
	Strategy string          `json:"strategy"`
}

type ChangeRateRequest struct {
	Rate          decimal.Decimal `json:"rate"`
	EffectiveDate string          `json:"effective_date"`
	Reason        string          `json:"reason"`
}

type ChangeTermRequest struct {
	TermMonths    int    `json:"term_months"`
	EffectiveDate string `json:"effective_date"`
}

type UpdatePaymentRequest struct {
	Date          *string          `json:"date,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	PrincipalPart *decimal.Decimal `json:"principal_part,omitempty"`
	InterestPart  *decimal.Decimal `json:"interest_part,omitempty"`
	PenaltyPart   *decimal.Decimal `json:"penalty_part,omitempty"`
}

type LoanDTO struct {
	ID             int64  `json:"id"`
	ContractNo     string `json:"contract_no"`
	MemberID       int64  `json:"member_id"`
	Amount         string `json:"amount"`
	Rate           string `json:"rate"`
	TermMonths     int    `json:"term_months"`
	Convention     string `json:"convention"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date"`
	MonthlyPayment string `json:"monthly_payment"`
	Balance        string `json:"balance"`
	Status         string `json:"status"`
}

func loanDTO(c *loan.Contract) LoanDTO {
	return LoanDTO{
		ID:             c.ID,
		ContractNo:     c.ContractNo,
		MemberID:       c.MemberID,
		Amount:         c.Amount.StringFixed(2),
		Rate:           c.Rate.String(),
		TermMonths:     c.TermMonths,
		Convention:     string(c.Convention),
		StartDate:      c.StartDate.Format(dateLayout),
		EndDate:        c.EndDate.Format(dateLayout),
		MonthlyPayment: c.MonthlyPayment.StringFixed(2),
		Balance:        c.Balance.StringFixed(2),
		Status:         string(c.Status),
	}
}

type LoanRowDTO struct {
	ID           int64   `json:"id"`
	PeriodNo     int     `json:"period_no"`
	DueDate      string  `json:"due_date"`
	Payment      string  `json:"payment"`
	Principal    string  `json:"principal"`
	Interest     string  `json:"interest"`
	Penalty      string  `json:"penalty"`
	BalanceAfter string  `json:"balance_after"`
	PaidAmount   string  `json:"paid_amount"`
	PaidDate     *string `json:"paid_date,omitempty"`
	Status       string  `json:"status"`
	OverdueDays  int     `json:"overdue_days,omitempty"`
}

func loanRowDTOs(rows []loan.ScheduleRow) []LoanRowDTO {
	out := make([]LoanRowDTO, len(rows))
	for i, r := range rows {
		out[i] = LoanRowDTO{
			ID:           r.ID,
			PeriodNo:     r.PeriodNo,
			DueDate:      r.DueDate.Format(dateLayout),
			Payment:      r.Payment.StringFixed(2),
			Principal:    r.Principal.StringFixed(2),
			Interest:     r.Interest.StringFixed(2),
			Penalty:      r.Penalty.StringFixed(2),
			BalanceAfter: r.BalanceAfter.StringFixed(2),
			PaidAmount:   r.PaidAmount.StringFixed(2),
			Status:       string(r.Status),
			OverdueDays:  r.OverdueDays,
		}
		if r.PaidDate != nil {
			s := r.PaidDate.Format(dateLayout)
			out[i].PaidDate = &s
		}
	}
	return out
}

type PreviewRowDTO struct {
	PeriodNo     int    `json:"period_no"`
	DueDate      string `json:"due_date"`
	Payment      string `json:"payment"`
	Principal    string `json:"principal"`
	Interest     string `json:"interest"`
	BalanceAfter string `json:"balance_after"`
}

func previewRowDTOs(rows []schedule.Row) []PreviewRowDTO {
	out := make([]PreviewRowDTO, len(rows))
	for i, r := range rows {
		out[i] = PreviewRowDTO{
			PeriodNo:     r.PeriodNo,
			DueDate:      r.DueDate.Format(dateLayout),
			Payment:      r.Payment.StringFixed(2),
			Principal:    r.Principal.StringFixed(2),
			Interest:     r.Interest.StringFixed(2),
			BalanceAfter: r.BalanceAfter.StringFixed(2),
		}
	}
	return out
}

type PaymentDTO struct {
	ID            string `json:"id"`
	LoanID        int64  `json:"loan_id"`
	Date          string `json:"date"`
	Amount        string `json:"amount"`
	PrincipalPart string `json:"principal_part"`
	InterestPart  string `json:"interest_part"`
	PenaltyPart   string `json:"penalty_part"`
	Type          string `json:"type"`
}

func paymentDTO(p *loan.Payment) PaymentDTO {
	return PaymentDTO{
		ID:            p.ID,
		LoanID:        p.LoanID,
		Date:          p.Date.Format(dateLayout),
		Amount:        p.Amount.StringFixed(2),
		PrincipalPart: p.PrincipalPart.StringFixed(2),
		InterestPart:  p.InterestPart.StringFixed(2),
		PenaltyPart:   p.PenaltyPart.StringFixed(2),
		Type:          string(p.Type),
	}
}

func paymentDTOs(ps []loan.Payment) []PaymentDTO {
	out := make([]PaymentDTO, len(ps))
	for i := range ps {
		out[i] = paymentDTO(&ps[i])
	}
	return out
}

type LoanDetailResponse struct {
	Loan     LoanDTO      `json:"loan"`
	Schedule []LoanRowDTO `json:"schedule"`
	Payments []PaymentDTO `json:"payments"`
}

type PaymentResponse struct {
	Payment        *PaymentDTO  `json:"payment,omitempty"`
	NewBalance     string       `json:"new_balance"`
	Closed         bool         `json:"closed"`
	Recalculated   bool         `json:"recalculated"`
	NewInstallment string       `json:"new_installment,omitempty"`
	Schedule       []LoanRowDTO `json:"schedule,omitempty"`
}

func paymentResponse(r *loan.PaymentResult) PaymentResponse {
	resp := PaymentResponse{
		NewBalance:   r.NewBalance.StringFixed(2),
		Closed:       r.Closed,
		Recalculated: r.Recalculated,
	}
	if r.Payment != nil {
		dto := paymentDTO(r.Payment)
		resp.Payment = &dto
	}
	if r.Recalculated {
		resp.NewInstallment = r.NewInstallment.StringFixed(2)
		resp.Schedule = loanRowDTOs(r.Schedule)
	}
	return resp
}

// =============================================================================
// SAVINGS DTOs
// =============================================================================

type OpenSavingsRequest struct {
	ContractNo    string          `json:"contract_no"`
	MemberID      int64           `json:"member_id"`
	Amount        decimal.Decimal `json:"amount"`
	Rate          decimal.Decimal `json:"rate"`
	TermMonths    int             `json:"term_months"`
	PayoutType    string          `json:"payout_type"`
	StartDate     string          `json:"start_date"`
	MinBalancePct decimal.Decimal `json:"min_balance_pct"`
}

type PreviewSavingsRequest struct {
	Amount     decimal.Decimal `json:"amount"`
	Rate       decimal.Decimal `json:"rate"`
	TermMonths int             `json:"term_months"`
	PayoutType string          `json:"payout_type"`
	StartDate  string          `json:"start_date"`
}

type SavingsMovementRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date"`
	IsCash      bool            `json:"is_cash"`
	Description string          `json:"description"`
}

type SavingsTermRequest struct {
	TermMonths    int    `json:"term_months"`
	EffectiveDate string `json:"effective_date"`
}

type BackfillRequest struct {
	DateFrom string `json:"date_from"`
	DateTo   string `json:"date_to"`
}

type UpdateSavingsTxRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Date   string          `json:"date"`
}

type SavingsDTO struct {
	ID              int64  `json:"id"`
	ContractNo      string `json:"contract_no"`
	MemberID        int64  `json:"member_id"`
	Amount          string `json:"amount"`
	Rate            string `json:"rate"`
	TermMonths      int    `json:"term_months"`
	PayoutType      string `json:"payout_type"`
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"`
	CurrentBalance  string `json:"current_balance"`
	AccruedInterest string `json:"accrued_interest"`
	PaidInterest    string `json:"paid_interest"`
	MinBalancePct   string `json:"min_balance_pct"`
	Status          string `json:"status"`
}

func savingsDTO(c *savings.Contract) SavingsDTO {
	return SavingsDTO{
		ID:              c.ID,
		ContractNo:      c.ContractNo,
		MemberID:        c.MemberID,
		Amount:          c.Amount.StringFixed(2),
		Rate:            c.Rate.String(),
		TermMonths:      c.TermMonths,
		PayoutType:      string(c.PayoutType),
		StartDate:       c.StartDate.Format(dateLayout),
		EndDate:         c.EndDate.Format(dateLayout),
		CurrentBalance:  c.CurrentBalance.StringFixed(2),
		AccruedInterest: c.AccruedInterest.StringFixed(2),
		PaidInterest:    c.PaidInterest.StringFixed(2),
		MinBalancePct:   c.MinBalancePct.String(),
		Status:          string(c.Status),
	}
}

type SavingsRowDTO struct {
	ID           int64  `json:"id"`
	PeriodNo     int    `json:"period_no"`
	PeriodStart  string `json:"period_start"`
	PeriodEnd    string `json:"period_end"`
	Interest     string `json:"interest"`
	Cumulative   string `json:"cumulative"`
	BalanceAfter string `json:"balance_after"`
	Status       string `json:"status"`
}

func savingsRowDTOs(rows []savings.ScheduleRow) []SavingsRowDTO {
	out := make([]SavingsRowDTO, len(rows))
	for i, r := range rows {
		out[i] = SavingsRowDTO{
			ID:           r.ID,
			PeriodNo:     r.PeriodNo,
			PeriodStart:  r.PeriodStart.Format(dateLayout),
			PeriodEnd:    r.PeriodEnd.Format(dateLayout),
			Interest:     r.Interest.StringFixed(2),
			Cumulative:   r.Cumulative.StringFixed(2),
			BalanceAfter: r.BalanceAfter.StringFixed(2),
			Status:       string(r.Status),
		}
	}
	return out
}

type SavingsPreviewRowDTO struct {
	PeriodNo     int    `json:"period_no"`
	PeriodStart  string `json:"period_start"`
	PeriodEnd    string `json:"period_end"`
	Interest     string `json:"interest"`
	Cumulative   string `json:"cumulative"`
	BalanceAfter string `json:"balance_after"`
}

func savingsPreviewRowDTOs(rows []schedule.SavingsRow) []SavingsPreviewRowDTO {
	out := make([]SavingsPreviewRowDTO, len(rows))
	for i, r := range rows {
		out[i] = SavingsPreviewRowDTO{
			PeriodNo:     r.PeriodNo,
			PeriodStart:  r.PeriodStart.Format(dateLayout),
			PeriodEnd:    r.PeriodEnd.Format(dateLayout),
			Interest:     r.Interest.StringFixed(2),
			Cumulative:   r.Cumulative.StringFixed(2),
			BalanceAfter: r.BalanceAfter.StringFixed(2),
		}
	}
	return out
}

type SavingsTxDTO struct {
	ID          string `json:"id"`
	SavingID    int64  `json:"saving_id"`
	Date        string `json:"date"`
	Amount      string `json:"amount"`
	Type        string `json:"type"`
	IsCash      bool   `json:"is_cash"`
	Description string `json:"description,omitempty"`
}

func savingsTxDTOs(txs []savings.Transaction) []SavingsTxDTO {
	out := make([]SavingsTxDTO, len(txs))
	for i, tx := range txs {
		out[i] = SavingsTxDTO{
			ID:          tx.ID,
			SavingID:    tx.SavingID,
			Date:        tx.Date.Format(dateLayout),
			Amount:      tx.Amount.StringFixed(2),
			Type:        string(tx.Type),
			IsCash:      tx.IsCash,
			Description: tx.Description,
		}
	}
	return out
}

type SavingsDetailResponse struct {
	Saving       SavingsDTO      `json:"saving"`
	Schedule     []SavingsRowDTO `json:"schedule"`
	Transactions []SavingsTxDTO  `json:"transactions"`
}

// =============================================================================
// SHARE DTOs
// =============================================================================

type OpenSharesRequest struct {
	MemberID int64           `json:"member_id"`
	Initial  decimal.Decimal `json:"initial"`
	Date     string          `json:"date"`
}

type ShareMovementRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Direction   string          `json:"direction"`
	Date        string          `json:"date"`
	Description string          `json:"description"`
}

type ShareAccountDTO struct {
	ID        int64  `json:"id"`
	AccountNo string `json:"account_no"`
	MemberID  int64  `json:"member_id"`
	Balance   string `json:"balance"`
	TotalIn   string `json:"total_in"`
	TotalOut  string `json:"total_out"`
	Status    string `json:"status"`
}

func shareAccountDTO(a *shares.Account) ShareAccountDTO {
	return ShareAccountDTO{
		ID:        a.ID,
		AccountNo: a.AccountNo,
		MemberID:  a.MemberID,
		Balance:   a.Balance.StringFixed(2),
		TotalIn:   a.TotalIn.StringFixed(2),
		TotalOut:  a.TotalOut.StringFixed(2),
		Status:    string(a.Status),
	}
}

type ShareTxDTO struct {
	ID          string `json:"id"`
	AccountID   int64  `json:"account_id"`
	Date        string `json:"date"`
	Amount      string `json:"amount"`
	Direction   string `json:"direction"`
	Description string `json:"description,omitempty"`
}

func shareTxDTOs(txs []shares.Transaction) []ShareTxDTO {
	out := make([]ShareTxDTO, len(txs))
	for i, tx := range txs {
		out[i] = ShareTxDTO{
			ID:          tx.ID,
			AccountID:   tx.AccountID,
			Date:        tx.Date.Format(dateLayout),
			Amount:      tx.Amount.StringFixed(2),
			Direction:   string(tx.Direction),
			Description: tx.Description,
		}
	}
	return out
}

type ShareDetailResponse struct {
	Account      ShareAccountDTO `json:"account"`
	Transactions []ShareTxDTO    `json:"transactions"`
}

// =============================================================================
// MISC
// =============================================================================

type AccrueRequest struct {
	Date string `json:"date"`
}

type SweepResponse struct {
	FlaggedRows int `json:"flagged_rows"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
