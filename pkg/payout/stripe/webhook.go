package stripe

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/fitreach/commissionledger/pkg/internal/httputil"
	"github.com/fitreach/commissionledger/pkg/ledger"
	"github.com/fitreach/commissionledger/pkg/payout"
)

const maxCallbackBodyBytes = 256 * 1024

// WebhookHandler receives Stripe payout.paid and payout.failed events
// from connected accounts and reconciles the matching batches.
type WebhookHandler struct {
	engine  *payout.Engine
	secret  string
	logger  ledger.Logger
	metrics ledger.Metrics
	now     func() time.Time
}

// WebhookConfig configures a WebhookHandler. Engine and Secret are
// required; the handler refuses unsigned callbacks.
type WebhookConfig struct {
	Engine  *payout.Engine
	Secret  string
	Logger  ledger.Logger
	Metrics ledger.Metrics

	// Now overrides the clock in tests.
	Now func() time.Time
}

// NewWebhookHandler creates the payout callback handler.
func NewWebhookHandler(cfg WebhookConfig) (*WebhookHandler, error) {
	if cfg.Engine == nil {
		return nil, errors.New("stripe: webhook config requires an Engine")
	}
	if cfg.Secret == "" {
		return nil, errors.New("stripe: webhook config requires a signing secret")
	}
	if cfg.Logger == nil {
		cfg.Logger = &ledger.NoopLogger{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &ledger.NoopMetrics{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &WebhookHandler{
		engine:  cfg.Engine,
		secret:  cfg.Secret,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		now:     cfg.Now,
	}, nil
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	httputil.SetSecurityHeaders(w)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := httputil.ReadBodyStrict(w, r, maxCallbackBodyBytes)
	if err != nil {
		if errors.Is(err, httputil.ErrPayloadTooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		} else {
			http.Error(w, "invalid payload", http.StatusBadRequest)
		}
		return
	}

	sig := r.Header.Get("Stripe-Signature")
	event, err := stripe.ConstructEvent(body, sig, h.secret)
	if err != nil {
		h.metrics.RecordWebhookError("stripe_payout", "auth_failed")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var status payout.TransferStatus
	switch event.Type {
	case "payout.paid":
		status = payout.TransferPaid
	case "payout.failed", "payout.canceled":
		status = payout.TransferFailed
	default:
		// Not a payout event; acknowledge so Stripe stops retrying.
		w.WriteHeader(http.StatusOK)
		return
	}

	var po stripe.Payout
	if err := json.Unmarshal(event.Data.Raw, &po); err != nil {
		h.metrics.RecordWebhookError("stripe_payout", "invalid_payload")
		http.Error(w, "invalid payout object", http.StatusBadRequest)
		return
	}

	if err := h.engine.Reconcile(r.Context(), po.ID, status, h.now().UTC()); err != nil {
		if errors.Is(err, payout.ErrUnknownTransfer) {
			// A payout we did not create (for example one the affiliate
			// triggered from their dashboard). Nothing to reconcile.
			h.logger.Debug("ignoring callback for unknown payout",
				ledger.Field{Key: "payout_ref", Value: po.ID})
			w.WriteHeader(http.StatusOK)
			return
		}
		h.logger.Error("payout reconciliation failed",
			ledger.Field{Key: "payout_ref", Value: po.ID},
			ledger.Field{Key: "event_type", Value: string(event.Type)},
			ledger.Field{Key: "error", Value: err.Error()})
		h.metrics.RecordWebhookError("stripe_payout", "processing_error")
		http.Error(w, "failed to process callback", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordWebhookEvent("stripe_payout", string(event.Type), "ok")
	w.WriteHeader(http.StatusOK)
}
