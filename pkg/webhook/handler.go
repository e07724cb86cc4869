// Package webhook exposes the inbound HTTP boundary of the commission
// ledger. Handlers decode billing-platform notifications with a
// format-specific Normalizer and feed the canonical events to the ledger
// processor.
//
// Delivery contract: the upstream platform treats any non-200 response as
// a retry signal, and uncontrolled retries of an already-poison payload
// are worse than a logged, swallowed failure. Handlers therefore answer
// 200 for every business failure (malformed payloads, processing errors)
// and reserve non-200 for transport-level problems only: wrong method,
// oversized body, failed auth, rate limiting.
package webhook

import (
	"bytes"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fitreach/commissionledger/pkg/ledger"
	"github.com/fitreach/commissionledger/pkg/internal/httputil"
	"github.com/fitreach/commissionledger/pkg/webhook/internal"
)

// Normalizer decodes one webhook wire format into the canonical event.
// Implementations are pure: no side effects, and every decode failure is
// an ErrMalformedPayload-wrapped error, never a panic or a default.
type Normalizer interface {
	// Format names the wire format, for logs and metric labels.
	Format() ledger.SourceFormat

	// Normalize decodes a raw body into a canonical event.
	Normalize(body []byte) (*ledger.SubscriptionEvent, error)
}

// Handler returns the HTTP handler for one webhook wire format.
func Handler(cfg Config, n Normalizer) (http.Handler, error) {
	if cfg.Processor == nil || n == nil {
		return nil, ErrNotConfigured
	}
	cfg = cfg.withDefaults()

	h := &handler{cfg: cfg, normalize: func(body []byte) (*ledger.SubscriptionEvent, error) {
		return n.Normalize(body)
	}, format: string(n.Format())}

	limiter := internal.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
	return limiter.Middleware(h), nil
}

// Dispatcher returns a handler for the root fallback path: it sniffs the
// payload shape (presence of a signedPayload field) and routes to the
// signed-envelope normalizer, otherwise the plain one. The upstream
// platform has, in practice, delivered payloads to the wrong configured
// endpoint; recovering beats dropping them.
func Dispatcher(cfg Config, plain, signed Normalizer) (http.Handler, error) {
	if cfg.Processor == nil || plain == nil || signed == nil {
		return nil, ErrNotConfigured
	}
	cfg = cfg.withDefaults()

	h := &handler{cfg: cfg, normalize: func(body []byte) (*ledger.SubscriptionEvent, error) {
		if bytes.Contains(body, []byte(`"signedPayload"`)) {
			return signed.Normalize(body)
		}
		return plain.Normalize(body)
	}, format: "auto"}

	limiter := internal.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
	return limiter.Middleware(h), nil
}

type handler struct {
	cfg       Config
	normalize func(body []byte) (*ledger.SubscriptionEvent, error)
	format    string
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	httputil.SetSecurityHeaders(w)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := httputil.ReadBodyStrict(w, r, h.cfg.MaxBodyBytes)
	if err != nil {
		if errors.Is(err, httputil.ErrPayloadTooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			h.cfg.Metrics.RecordWebhookError(h.format, "payload_too_large")
		} else {
			http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
			h.cfg.Metrics.RecordWebhookError(h.format, "invalid_payload")
		}
		return
	}

	if h.cfg.Secret != "" && !h.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		h.cfg.Metrics.RecordWebhookError(h.format, "auth_failed")
		return
	}

	ev, err := h.normalize(body)
	if err != nil {
		// Malformed payloads are dropped, not retried: the sender would
		// only replay the same bytes.
		h.cfg.Logger.Warn("dropping malformed webhook payload",
			ledger.Field{Key: "format", Value: h.format},
			ledger.Field{Key: "error", Value: err.Error()})
		h.cfg.Metrics.RecordWebhookError(h.format, "malformed_payload")
		h.ack(w)
		return
	}

	eventType := string(ev.Type)
	result, err := h.cfg.Processor.HandleEvent(r.Context(), ev)
	if err != nil {
		h.cfg.Logger.Error("webhook event processing failed",
			ledger.Field{Key: "format", Value: h.format},
			ledger.Field{Key: "event_type", Value: eventType},
			ledger.Field{Key: "transaction_id", Value: ev.TransactionID},
			ledger.Field{Key: "error", Value: err.Error()})
		h.cfg.Metrics.RecordWebhookError(h.format, "processing_error")
		h.cfg.Metrics.RecordWebhookProcessingDuration(h.format, eventType, time.Since(startTime))
		h.ack(w)
		return
	}

	h.cfg.Metrics.RecordWebhookEvent(h.format, eventType, string(result.Outcome))
	h.cfg.Metrics.RecordWebhookProcessingDuration(h.format, eventType, time.Since(startTime))
	h.ack(w)
}

// ack acknowledges the delivery. Failures to write the response are
// irrelevant: the upstream will retry and the guard will dedupe.
func (h *handler) ack(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *handler) authorized(r *http.Request) bool {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	token := authHeader
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		token = strings.TrimSpace(authHeader[len("bearer "):])
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.cfg.Secret)) == 1
}
