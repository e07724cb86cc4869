package gin_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	gongin "github.com/gin-gonic/gin"

	ginhandlers "github.com/fitreach/commissionledger/handlers/gin"
	"github.com/fitreach/commissionledger/pkg/ledger"
	"github.com/fitreach/commissionledger/pkg/webhook"
	"github.com/fitreach/commissionledger/storage/memory"
)

func TestMount(t *testing.T) {
	gongin.SetMode(gongin.TestMode)

	store := memory.New()
	if err := store.PutAffiliate(context.Background(), &ledger.Affiliate{
		ID:           "aff_1",
		ReferralCode: "janefit",
		RatePercent:  30,
	}); err != nil {
		t.Fatalf("PutAffiliate failed: %v", err)
	}
	proc, err := ledger.NewProcessor(ledger.Config{Storage: store})
	if err != nil {
		t.Fatalf("NewProcessor failed: %v", err)
	}
	if err := proc.Attribute(context.Background(), "user_42", "janefit"); err != nil {
		t.Fatalf("Attribute failed: %v", err)
	}

	r := gongin.New()
	if err := ginhandlers.Mount(r, ginhandlers.Config{
		Webhook: webhook.Config{Processor: proc},
	}); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}

	body := `{
		"event": {
			"type": "INITIAL_PURCHASE",
			"app_user_id": "user_42",
			"transaction_id": "txn_1",
			"price": 9.99,
			"currency": "USD",
			"event_timestamp_ms": 1772452800000
		}
	}`

	for _, path := range []string{"/webhooks/revenuecat", "/webhooks"} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("POST %s: expected 200, got %d: %s", path, w.Code, w.Body.String())
		}
	}

	// First delivery created the commission, the root dispatch was deduped.
	pending, err := store.ListCommissions(context.Background(), "aff_1", ledger.CommissionPending)
	if err != nil {
		t.Fatalf("ListCommissions failed: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("expected exactly 1 commission after duplicate delivery, got %d", len(pending))
	}
}

func TestMountRequiresProcessor(t *testing.T) {
	gongin.SetMode(gongin.TestMode)

	r := gongin.New()
	if err := ginhandlers.Mount(r, ginhandlers.Config{}); err == nil {
		t.Error("expected error without processor")
	}
}
