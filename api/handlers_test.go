package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coopfin/ledger-engine/api"
	"github.com/coopfin/ledger-engine/loan"
	"github.com/coopfin/ledger-engine/savings"
	"github.com/coopfin/ledger-engine/shares"
	"github.com/coopfin/ledger-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	h := api.NewHandler(
		loan.NewService(memory.NewLoanStore(), zap.NewNop()),
		savings.NewService(memory.NewSavingsStore(), zap.NewNop()),
		shares.NewService(memory.NewShareStore(), zap.NewNop()),
		zap.NewNop(),
	)
	srv := httptest.NewServer(api.NewRouter(h))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func createLoan(t *testing.T, srv *httptest.Server) float64 {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/loans", map[string]any{
		"contract_no": "LN-0001",
		"member_id":   7,
		"amount":      "120000",
		"rate":        "12",
		"term_months": 12,
		"convention":  "annuity",
		"start_date":  "2026-01-15",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return body["loan"].(map[string]any)["id"].(float64)
}

// =============================================================================
// LOAN ENDPOINTS
// =============================================================================

func TestCreateAndGetLoan(t *testing.T) {
	srv := newTestServer(t)
	id := createLoan(t, srv)

	resp, body := doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/loans/%.0f", srv.URL, id), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	l := body["loan"].(map[string]any)
	assert.Equal(t, "LN-0001", l["contract_no"])
	assert.Equal(t, "10661.85", l["monthly_payment"])
	assert.Equal(t, "120000.00", l["balance"])
	assert.Equal(t, "active", l["status"])
	assert.Len(t, body["schedule"].([]any), 12)
}

func TestCreateLoan_ValidationError(t *testing.T) {
	srv := newTestServer(t)
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/loans", map[string]any{
		"contract_no": "LN-0001",
		"amount":      "-5",
		"rate":        "12",
		"term_months": 12,
		"convention":  "annuity",
		"start_date":  "2026-01-15",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, body["error"])
}

func TestGetLoan_NotFound(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/loans/404", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestApplyPayment_RegularFlow(t *testing.T) {
	srv := newTestServer(t)
	id := createLoan(t, srv)

	resp, body := doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/loans/%.0f/payments", srv.URL, id), map[string]any{
		"amount": "10661.85",
		"date":   "2026-02-15",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "110538.15", body["new_balance"])
	assert.Equal(t, false, body["closed"])

	payment := body["payment"].(map[string]any)
	assert.Equal(t, "1200.00", payment["interest_part"])
	assert.Equal(t, "9461.85", payment["principal_part"])
}

func TestApplyPayment_SignificantOverpaymentReturns409(t *testing.T) {
	// GIVEN: A fresh loan
	// WHEN: Tendering an installment plus a large surplus
	// THEN: 409 with both strategy previews, then resolving applies it

	srv := newTestServer(t)
	id := createLoan(t, srv)
	paymentsURL := fmt.Sprintf("%s/api/loans/%.0f/payments", srv.URL, id)

	resp, body := doJSON(t, http.MethodPost, paymentsURL, map[string]any{
		"amount": "16661.85",
		"date":   "2026-02-15",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body, "reduce_term")
	assert.Contains(t, body, "reduce_payment")

	// A second payment while the choice is parked also conflicts.
	resp, _ = doJSON(t, http.MethodPost, paymentsURL, map[string]any{
		"amount": "100",
		"date":   "2026-02-16",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/loans/%.0f/resolve-overpayment", srv.URL, id), map[string]any{
		"strategy": "reduce_payment",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "104538.15", body["new_balance"])
	assert.Equal(t, true, body["recalculated"])
}

func TestEarlyRepayment_FullCloseOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	id := createLoan(t, srv)

	resp, body := doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/loans/%.0f/early-repayment", srv.URL, id), map[string]any{
		"amount":   "120000",
		"date":     "2026-02-01",
		"strategy": "reduce_term",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["closed"])

	// Further payments hit the closed-contract policy wall.
	resp, _ = doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/loans/%.0f/payments", srv.URL, id), map[string]any{
		"amount": "100",
		"date":   "2026-03-15",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

// =============================================================================
// SAVINGS ENDPOINTS
// =============================================================================

func openSavings(t *testing.T, srv *httptest.Server) float64 {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/savings", map[string]any{
		"contract_no":     "SV-0001",
		"member_id":       7,
		"amount":          "50000",
		"rate":            "8",
		"term_months":     3,
		"payout_type":     "end_of_term",
		"start_date":      "2026-01-10",
		"min_balance_pct": "50",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return body["saving"].(map[string]any)["id"].(float64)
}

func TestOpenSavingsAndDeposit(t *testing.T) {
	srv := newTestServer(t)
	id := openSavings(t, srv)

	resp, body := doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/savings/%.0f/deposit", srv.URL, id), map[string]any{
		"amount":  "10000",
		"date":    "2026-01-21",
		"is_cash": true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "60000.00", body["current_balance"])
}

func TestPartialWithdraw_FloorBreachReturns422(t *testing.T) {
	srv := newTestServer(t)
	id := openSavings(t, srv)

	resp, body := doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/savings/%.0f/partial-withdraw", srv.URL, id), map[string]any{
		"amount":  "30000",
		"date":    "2026-01-21",
		"is_cash": true,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.NotEmpty(t, body["error"])
}

func TestAdminAccrueEndpoint(t *testing.T) {
	srv := newTestServer(t)
	openSavings(t, srv)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/admin/accrue", map[string]any{
		"date": "2026-01-11",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["processed"])
	assert.Equal(t, "10.96", body["total_accrued"])
}

// =============================================================================
// SHARE ENDPOINTS
// =============================================================================

func TestShareAccountLifecycle(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/shares", map[string]any{
		"member_id": 7,
		"initial":   "100",
		"date":      "2026-03-01",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := body["id"].(float64)
	assert.Equal(t, "SH-000001", body["account_no"])

	resp, body = doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/shares/%.0f/transactions", srv.URL, id), map[string]any{
		"amount":    "50",
		"direction": "in",
		"date":      "2026-04-01",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "150.00", body["balance"])

	resp, _ = doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/shares/%.0f/transactions", srv.URL, id), map[string]any{
		"amount":    "500",
		"direction": "out",
		"date":      "2026-05-01",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}
