package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fitreach/commissionledger/pkg/ledger"
	"github.com/fitreach/commissionledger/storage/memory"
)

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func setupTestHandler(t *testing.T) (*Handler, *memory.Storage) {
	t.Helper()
	store := memory.New()
	if err := store.PutAffiliate(context.Background(), &ledger.Affiliate{
		ID:               "aff_1",
		ReferralCode:     "janefit",
		RatePercent:      30,
		PayoutAccountRef: "acct_123",
	}); err != nil {
		t.Fatalf("PutAffiliate failed: %v", err)
	}

	proc, err := ledger.NewProcessor(ledger.Config{Storage: store})
	if err != nil {
		t.Fatalf("NewProcessor failed: %v", err)
	}

	handler, err := NewHandler(Config{
		Storage:        store,
		Processor:      proc,
		GetAffiliateID: FromHeader("X-Affiliate-ID"),
	})
	if err != nil {
		t.Fatalf("NewHandler failed: %v", err)
	}
	return handler, store
}

func seedCommission(t *testing.T, store *memory.Storage, id string, amount int64, status ledger.CommissionStatus) {
	t.Helper()
	c := &ledger.Commission{
		ID:                  id,
		AffiliateID:         "aff_1",
		EndUserID:           "user_1",
		SourceTransactionID: "txn_" + id,
		SourceEventType:     ledger.EventRenewal,
		AmountMinorUnits:    amount,
		Currency:            "USD",
		RatePercentApplied:  30,
		Period:              ledger.PeriodRenewal,
		Status:              status,
		CreatedAt:           testTime,
	}
	if status == ledger.CommissionPaid {
		paidAt := testTime.Add(time.Hour)
		c.PaidAt = &paidAt
	}
	if err := store.InsertCommission(context.Background(), c); err != nil {
		t.Fatalf("InsertCommission failed: %v", err)
	}
}

func TestNewHandler_Validation(t *testing.T) {
	if _, err := NewHandler(Config{GetAffiliateID: FromHeader("X-Affiliate-ID")}); err == nil {
		t.Error("expected error without storage")
	}
	if _, err := NewHandler(Config{Storage: memory.New()}); err == nil {
		t.Error("expected error without GetAffiliateID")
	}
}

func TestGetCommissions(t *testing.T) {
	handler, store := setupTestHandler(t)
	seedCommission(t, store, "c1", 300, ledger.CommissionPending)
	seedCommission(t, store, "c2", 250, ledger.CommissionPending)
	seedCommission(t, store, "c3", 200, ledger.CommissionPaid)

	req := httptest.NewRequest(http.MethodGet, "/affiliate/commissions", nil)
	req.Header.Set("X-Affiliate-ID", "aff_1")
	w := httptest.NewRecorder()
	handler.GetCommissions(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp CommissionsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "pending" {
		t.Errorf("expected default status pending, got %s", resp.Status)
	}
	if len(resp.Commissions) != 2 {
		t.Fatalf("expected 2 pending commissions, got %d", len(resp.Commissions))
	}
	if resp.TotalMinor != 550 {
		t.Errorf("expected total 550, got %d", resp.TotalMinor)
	}
}

func TestGetCommissionsByStatus(t *testing.T) {
	handler, store := setupTestHandler(t)
	seedCommission(t, store, "c1", 200, ledger.CommissionPaid)

	req := httptest.NewRequest(http.MethodGet, "/affiliate/commissions?status=paid", nil)
	req.Header.Set("X-Affiliate-ID", "aff_1")
	w := httptest.NewRecorder()
	handler.GetCommissions(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp CommissionsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Commissions) != 1 {
		t.Fatalf("expected 1 paid commission, got %d", len(resp.Commissions))
	}
	if resp.Commissions[0].PaidAt == nil {
		t.Error("paid commission should carry its paid timestamp")
	}
}

func TestGetCommissionsUnknownStatus(t *testing.T) {
	handler, _ := setupTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/affiliate/commissions?status=bogus", nil)
	req.Header.Set("X-Affiliate-ID", "aff_1")
	w := httptest.NewRecorder()
	handler.GetCommissions(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestGetCommissionsUnauthorized(t *testing.T) {
	handler, _ := setupTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/affiliate/commissions", nil)
	w := httptest.NewRecorder()
	handler.GetCommissions(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without affiliate id, got %d", w.Code)
	}
}

func TestGetBalance(t *testing.T) {
	handler, store := setupTestHandler(t)
	seedCommission(t, store, "c1", 300, ledger.CommissionPending)
	seedCommission(t, store, "c2", 250, ledger.CommissionClaimed)
	seedCommission(t, store, "c3", 200, ledger.CommissionPaid)
	seedCommission(t, store, "c4", 100, ledger.CommissionPaid)

	req := httptest.NewRequest(http.MethodGet, "/affiliate/balance", nil)
	req.Header.Set("X-Affiliate-ID", "aff_1")
	w := httptest.NewRecorder()
	handler.GetBalance(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp BalanceResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.PendingMinor != 300 || resp.PendingCount != 1 {
		t.Errorf("pending: got %d minor units in %d rows", resp.PendingMinor, resp.PendingCount)
	}
	if resp.InFlightMinor != 250 {
		t.Errorf("in flight: got %d minor units", resp.InFlightMinor)
	}
	if resp.LifetimePaid != 300 || resp.PaidCount != 2 {
		t.Errorf("paid: got %d minor units in %d rows", resp.LifetimePaid, resp.PaidCount)
	}
	if !resp.HasPayoutSetup {
		t.Error("affiliate with an account ref should report payout setup")
	}
}

func TestGetBalanceUnknownAffiliate(t *testing.T) {
	handler, _ := setupTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/affiliate/balance", nil)
	req.Header.Set("X-Affiliate-ID", "aff_ghost")
	w := httptest.NewRecorder()
	handler.GetBalance(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestRegisterAttribution(t *testing.T) {
	handler, store := setupTestHandler(t)

	body := `{"end_user_id": "user_9", "referral_code": "JANEFIT"}`
	req := httptest.NewRequest(http.MethodPost, "/attributions", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler.RegisterAttribution(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	ref, err := store.GetAttribution(context.Background(), "user_9")
	if err != nil {
		t.Fatalf("GetAttribution failed: %v", err)
	}
	if ref == nil || ref.ReferralCode != "janefit" {
		t.Errorf("expected normalized attribution, got %+v", ref)
	}

	// A second registration for the same user conflicts.
	req = httptest.NewRequest(http.MethodPost, "/attributions", strings.NewReader(body))
	w = httptest.NewRecorder()
	handler.RegisterAttribution(w, req)
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
}

func TestRegisterAttributionUnknownCode(t *testing.T) {
	handler, _ := setupTestHandler(t)

	body := `{"end_user_id": "user_9", "referral_code": "nope"}`
	req := httptest.NewRequest(http.MethodPost, "/attributions", strings.NewReader(body))
	w := httptest.NewRecorder()
	handler.RegisterAttribution(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", w.Code)
	}
}

func TestRegisterAttributionBadRequest(t *testing.T) {
	handler, _ := setupTestHandler(t)

	for _, body := range []string{`{`, `{"end_user_id": "user_9"}`, `{"referral_code": "janefit"}`} {
		req := httptest.NewRequest(http.MethodPost, "/attributions", strings.NewReader(body))
		w := httptest.NewRecorder()
		handler.RegisterAttribution(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/attributions", nil)
	w := httptest.NewRecorder()
	handler.RegisterAttribution(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET, got %d", w.Code)
	}
}
