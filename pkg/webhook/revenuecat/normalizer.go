// Package revenuecat decodes the plain JSON webhook format: a top-level
// "event" object carrying type, app_user_id, product_id and transaction
// identifiers. Decode only; request authentication belongs to the
// transport boundary.
package revenuecat

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/fitreach/commissionledger/pkg/ledger"
	"github.com/fitreach/commissionledger/pkg/webhook"
)

// webhookPayload mirrors the wire shape of the plain JSON event object.
type webhookPayload struct {
	Event struct {
		ID                    string  `json:"id"`
		Type                  string  `json:"type"`
		AppUserID             string  `json:"app_user_id"`
		ProductID             string  `json:"product_id"`
		TransactionID         string  `json:"transaction_id"`
		OriginalTransactionID string  `json:"original_transaction_id"`
		Price                 float64 `json:"price"`
		Currency              string  `json:"currency"`
		EventTimestampMs      int64   `json:"event_timestamp_ms"`
		TimestampMs           int64   `json:"timestamp_ms"`
		PurchasedAtMs         int64   `json:"purchased_at_ms"`
	} `json:"event"`
}

// eventTypes is the total mapping from wire event types to canonical
// ones. Types outside this table are reported, never silently defaulted.
var eventTypes = map[string]ledger.EventType{
	"INITIAL_PURCHASE":      ledger.EventInitialPurchase,
	"RENEWAL":               ledger.EventRenewal,
	"CANCELLATION":          ledger.EventCancellation,
	"EXPIRATION":            ledger.EventExpiration,
	"BILLING_ISSUE":         ledger.EventBillingIssue,
	"NON_RENEWING_PURCHASE": ledger.EventNonRenewingPurchase,
	"TEST":                  ledger.EventTest,
}

// Normalizer decodes Format A payloads.
type Normalizer struct{}

// New creates a plain JSON normalizer.
func New() *Normalizer { return &Normalizer{} }

// Format implements webhook.Normalizer.
func (*Normalizer) Format() ledger.SourceFormat { return ledger.SourcePlainJSON }

// Normalize implements webhook.Normalizer.
func (*Normalizer) Normalize(body []byte) (*ledger.SubscriptionEvent, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", webhook.ErrMalformedPayload, err)
	}

	wireType := strings.TrimSpace(payload.Event.Type)
	eventType, ok := eventTypes[strings.ToUpper(wireType)]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported event type %q", webhook.ErrMalformedPayload, wireType)
	}

	userID := strings.TrimSpace(payload.Event.AppUserID)
	if userID == "" {
		return nil, fmt.Errorf("%w: missing app_user_id", webhook.ErrMalformedPayload)
	}

	transactionID := strings.TrimSpace(payload.Event.TransactionID)
	if transactionID == "" {
		transactionID = strings.TrimSpace(payload.Event.ID)
	}
	if transactionID == "" {
		return nil, fmt.Errorf("%w: missing transaction id", webhook.ErrMalformedPayload)
	}

	occurredAt := pickTimestamp(
		payload.Event.EventTimestampMs,
		payload.Event.TimestampMs,
		payload.Event.PurchasedAtMs,
	)
	if occurredAt.IsZero() {
		return nil, fmt.Errorf("%w: missing event timestamp", webhook.ErrMalformedPayload)
	}

	return &ledger.SubscriptionEvent{
		Type:                  eventType,
		EndUserID:             userID,
		ProductID:             strings.TrimSpace(payload.Event.ProductID),
		TransactionID:         transactionID,
		OriginalTransactionID: strings.TrimSpace(payload.Event.OriginalTransactionID),
		PriceMinorUnits:       majorToMinorUnits(payload.Event.Price),
		Currency:              strings.ToUpper(strings.TrimSpace(payload.Event.Currency)),
		OccurredAt:            occurredAt,
		RawSourceFormat:       ledger.SourcePlainJSON,
	}, nil
}

// pickTimestamp takes the first positive millisecond timestamp; the wire
// format has sent the event time under different field names over time.
func pickTimestamp(candidates ...int64) time.Time {
	for _, ms := range candidates {
		if ms > 0 {
			return time.Unix(0, ms*int64(time.Millisecond)).UTC()
		}
	}
	return time.Time{}
}

// majorToMinorUnits converts a price expressed in currency major units
// (e.g. 9.99) into minor units (999). Half-up keeps 2-decimal prices exact
// despite float decoding.
func majorToMinorUnits(price float64) int64 {
	if price <= 0 {
		return 0
	}
	return int64(math.Floor(price*100 + 0.5))
}
