package stripe_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fitreach/commissionledger/pkg/ledger"
	"github.com/fitreach/commissionledger/pkg/payout"
	payoutstripe "github.com/fitreach/commissionledger/pkg/payout/stripe"
	"github.com/fitreach/commissionledger/storage/memory"
)

const testSecret = "whsec_test"

// signBody builds a Stripe-Signature header for body, the same scheme
// ConstructEvent verifies: v1 is an HMAC-SHA256 of "<timestamp>.<body>".
func signBody(body string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testSecret))
	fmt.Fprintf(mac, "%d.%s", ts, body)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

type stubClient struct{}

func (stubClient) GetAccount(ctx context.Context, accountRef string) (*payout.Account, error) {
	return &payout.Account{Ref: accountRef, PayoutsEnabled: true}, nil
}

func (stubClient) CreateAccount(ctx context.Context, email string) (*payout.Account, error) {
	return &payout.Account{Ref: "acct_stub", PayoutsEnabled: false}, nil
}

func (stubClient) CreateAccountLink(ctx context.Context, accountRef, refreshURL, returnURL string) (string, error) {
	return "https://connect.example.com/onboard/" + accountRef, nil
}

func (stubClient) CreateTransfer(ctx context.Context, req payout.TransferRequest) (*payout.TransferResult, error) {
	return &payout.TransferResult{Ref: "po_" + req.IdempotencyKey, Status: payout.TransferPending}, nil
}

func (stubClient) GetTransfer(ctx context.Context, accountRef, transferRef string) (*payout.TransferResult, error) {
	return &payout.TransferResult{Ref: transferRef, Status: payout.TransferPending}, nil
}

// setupSubmittedBatch returns a handler plus the transfer ref of one
// batch sitting in Submitted.
func setupSubmittedBatch(t *testing.T) (*payoutstripe.WebhookHandler, *memory.Storage, string) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	if err := store.PutAffiliate(ctx, &ledger.Affiliate{
		ID:               "aff_1",
		ReferralCode:     "janefit",
		RatePercent:      30,
		PayoutAccountRef: "acct_123",
	}); err != nil {
		t.Fatalf("PutAffiliate failed: %v", err)
	}
	if err := store.InsertCommission(ctx, &ledger.Commission{
		ID:                  "c1",
		AffiliateID:         "aff_1",
		EndUserID:           "user_1",
		SourceTransactionID: "txn_1",
		SourceEventType:     ledger.EventRenewal,
		AmountMinorUnits:    300,
		Currency:            "USD",
		RatePercentApplied:  30,
		Period:              ledger.PeriodRenewal,
		Status:              ledger.CommissionPending,
		CreatedAt:           time.Now().UTC(),
	}); err != nil {
		t.Fatalf("InsertCommission failed: %v", err)
	}

	engine, err := payout.NewEngine(payout.Config{Storage: store, Client: stubClient{}})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	batch, err := engine.BuildBatch(ctx, "aff_1")
	if err != nil {
		t.Fatalf("BuildBatch failed: %v", err)
	}
	submitted, err := engine.Submit(ctx, batch.PayoutID)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	handler, err := payoutstripe.NewWebhookHandler(payoutstripe.WebhookConfig{
		Engine: engine,
		Secret: testSecret,
	})
	if err != nil {
		t.Fatalf("NewWebhookHandler failed: %v", err)
	}
	return handler, store, submitted.ExternalTransferRef
}

func payoutEventBody(eventType, payoutID string) string {
	return fmt.Sprintf(`{
		"id": "evt_1",
		"type": %q,
		"data": {"object": {"id": %q, "object": "payout"}}
	}`, eventType, payoutID)
}

func deliver(h http.Handler, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payouts", strings.NewReader(body))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestWebhookPayoutPaid(t *testing.T) {
	handler, store, transferRef := setupSubmittedBatch(t)

	body := payoutEventBody("payout.paid", transferRef)
	w := deliver(handler, body, signBody(body))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	batch, err := store.GetBatchByTransferRef(context.Background(), transferRef)
	if err != nil {
		t.Fatalf("GetBatchByTransferRef failed: %v", err)
	}
	if batch.Status != ledger.BatchSettled {
		t.Errorf("expected settled batch, got %s", batch.Status)
	}
}

func TestWebhookPayoutFailed(t *testing.T) {
	handler, store, transferRef := setupSubmittedBatch(t)

	body := payoutEventBody("payout.failed", transferRef)
	w := deliver(handler, body, signBody(body))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	batch, err := store.GetBatchByTransferRef(context.Background(), transferRef)
	if err != nil {
		t.Fatalf("GetBatchByTransferRef failed: %v", err)
	}
	if batch.Status != ledger.BatchFailed {
		t.Errorf("expected failed batch, got %s", batch.Status)
	}
	pending, err := store.ListCommissions(context.Background(), "aff_1", ledger.CommissionPending)
	if err != nil {
		t.Fatalf("ListCommissions failed: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("expected commission back in pending, got %d", len(pending))
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	handler, _, transferRef := setupSubmittedBatch(t)

	body := payoutEventBody("payout.paid", transferRef)
	if w := deliver(handler, body, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without signature, got %d", w.Code)
	}
	if w := deliver(handler, body, "t=1,v1=deadbeef"); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad signature, got %d", w.Code)
	}
}

func TestWebhookIgnoresUnknownPayout(t *testing.T) {
	handler, _, _ := setupSubmittedBatch(t)

	// A payout the affiliate triggered themselves has no batch; Stripe
	// still must not retry it.
	body := payoutEventBody("payout.paid", "po_dashboard")
	if w := deliver(handler, body, signBody(body)); w.Code != http.StatusOK {
		t.Errorf("expected 200 for unknown payout, got %d", w.Code)
	}
}

func TestWebhookIgnoresOtherEventTypes(t *testing.T) {
	handler, store, transferRef := setupSubmittedBatch(t)

	body := payoutEventBody("charge.refunded", transferRef)
	if w := deliver(handler, body, signBody(body)); w.Code != http.StatusOK {
		t.Errorf("expected 200 for unrelated event, got %d", w.Code)
	}
	batch, err := store.GetBatchByTransferRef(context.Background(), transferRef)
	if err != nil {
		t.Fatalf("GetBatchByTransferRef failed: %v", err)
	}
	if batch.Status != ledger.BatchSubmitted {
		t.Errorf("unrelated event must not change batch state, got %s", batch.Status)
	}
}

func TestWebhookMethodNotAllowed(t *testing.T) {
	handler, _, _ := setupSubmittedBatch(t)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/payouts", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}
