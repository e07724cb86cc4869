// Package appstore decodes the signed-token envelope webhook format: a
// JSON object whose "signedPayload" field is a JWS token, with the
// transaction and renewal details nested as further JWS tokens inside it.
//
// Tokens are decoded, not cryptographically re-verified; signature
// verification, where required, is the transport boundary's
// responsibility. This package only recovers the payload JSON.
package appstore

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fitreach/commissionledger/pkg/ledger"
	"github.com/fitreach/commissionledger/pkg/webhook"
)

type envelope struct {
	SignedPayload string `json:"signedPayload"`
}

type notificationPayload struct {
	NotificationType string `json:"notificationType"`
	Subtype          string `json:"subtype"`
	NotificationUUID string `json:"notificationUUID"`
	SignedDate       int64  `json:"signedDate"`
	Data             struct {
		BundleID              string `json:"bundleId"`
		Environment           string `json:"environment"`
		SignedTransactionInfo string `json:"signedTransactionInfo"`
		SignedRenewalInfo     string `json:"signedRenewalInfo"`
	} `json:"data"`
}

type transactionPayload struct {
	TransactionID         string `json:"transactionId"`
	OriginalTransactionID string `json:"originalTransactionId"`
	ProductID             string `json:"productId"`
	AppAccountToken       string `json:"appAccountToken"`
	// Price is in currency milliunits on the wire: 4990 for $4.99.
	Price        int64  `json:"price"`
	Currency     string `json:"currency"`
	PurchaseDate int64  `json:"purchaseDate"`
	SignedDate   int64  `json:"signedDate"`
}

type renewalPayload struct {
	OriginalTransactionID string `json:"originalTransactionId"`
	AppAccountToken       string `json:"appAccountToken"`
	RenewalDate           int64  `json:"renewalDate"`
	SignedDate            int64  `json:"signedDate"`
}

// Normalizer decodes Format B payloads.
type Normalizer struct{}

// New creates a signed-envelope normalizer.
func New() *Normalizer { return &Normalizer{} }

// Format implements webhook.Normalizer.
func (*Normalizer) Format() ledger.SourceFormat { return ledger.SourceSignedEnvelope }

// Normalize implements webhook.Normalizer.
func (*Normalizer) Normalize(body []byte) (*ledger.SubscriptionEvent, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", webhook.ErrMalformedPayload, err)
	}
	if strings.TrimSpace(env.SignedPayload) == "" {
		return nil, fmt.Errorf("%w: missing signedPayload", webhook.ErrMalformedPayload)
	}

	var note notificationPayload
	if err := decodeJWSPayload(env.SignedPayload, &note); err != nil {
		return nil, fmt.Errorf("%w: signedPayload: %v", webhook.ErrMalformedPayload, err)
	}

	eventType, err := mapNotificationType(note.NotificationType, note.Subtype)
	if err != nil {
		return nil, err
	}

	// Test pings carry no transaction payload; the notification id is the
	// only identifier they have.
	if eventType == ledger.EventTest {
		if note.NotificationUUID == "" {
			return nil, fmt.Errorf("%w: test notification without notificationUUID", webhook.ErrMalformedPayload)
		}
		return &ledger.SubscriptionEvent{
			Type:            ledger.EventTest,
			TransactionID:   note.NotificationUUID,
			OccurredAt:      millisToTime(note.SignedDate),
			RawSourceFormat: ledger.SourceSignedEnvelope,
		}, nil
	}

	if strings.TrimSpace(note.Data.SignedTransactionInfo) == "" {
		return nil, fmt.Errorf("%w: missing signedTransactionInfo", webhook.ErrMalformedPayload)
	}
	var txn transactionPayload
	if err := decodeJWSPayload(note.Data.SignedTransactionInfo, &txn); err != nil {
		return nil, fmt.Errorf("%w: signedTransactionInfo: %v", webhook.ErrMalformedPayload, err)
	}

	var renewal *renewalPayload
	if strings.TrimSpace(note.Data.SignedRenewalInfo) != "" {
		var r renewalPayload
		if err := decodeJWSPayload(note.Data.SignedRenewalInfo, &r); err != nil {
			return nil, fmt.Errorf("%w: signedRenewalInfo: %v", webhook.ErrMalformedPayload, err)
		}
		renewal = &r
	}

	// The envelope has no direct end-user field; appAccountToken is the
	// app-chosen user handle, present on the transaction or renewal token.
	userID := strings.TrimSpace(txn.AppAccountToken)
	if userID == "" && renewal != nil {
		userID = strings.TrimSpace(renewal.AppAccountToken)
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: no appAccountToken in transaction or renewal info", webhook.ErrMalformedPayload)
	}

	transactionID := strings.TrimSpace(txn.TransactionID)
	if transactionID == "" {
		return nil, fmt.Errorf("%w: missing transactionId", webhook.ErrMalformedPayload)
	}

	occurredAt := millisToTime(txn.PurchaseDate)
	if occurredAt.IsZero() {
		occurredAt = millisToTime(note.SignedDate)
	}
	if occurredAt.IsZero() {
		return nil, fmt.Errorf("%w: no usable event timestamp", webhook.ErrMalformedPayload)
	}

	return &ledger.SubscriptionEvent{
		Type:                  eventType,
		EndUserID:             userID,
		ProductID:             strings.TrimSpace(txn.ProductID),
		TransactionID:         transactionID,
		OriginalTransactionID: strings.TrimSpace(txn.OriginalTransactionID),
		PriceMinorUnits:       milliToMinorUnits(txn.Price),
		Currency:              strings.ToUpper(strings.TrimSpace(txn.Currency)),
		OccurredAt:            occurredAt,
		RawSourceFormat:       ledger.SourceSignedEnvelope,
	}, nil
}

// mapNotificationType is the total mapping from (notificationType,
// subtype) pairs to canonical event types. Pairs outside the table are
// reported as malformed rather than guessed at.
func mapNotificationType(notificationType, subtype string) (ledger.EventType, error) {
	switch strings.ToUpper(strings.TrimSpace(notificationType)) {
	case "SUBSCRIBED":
		return ledger.EventInitialPurchase, nil
	case "DID_RENEW":
		return ledger.EventRenewal, nil
	case "DID_CHANGE_RENEWAL_STATUS":
		if strings.EqualFold(subtype, "AUTO_RENEW_DISABLED") {
			return ledger.EventCancellation, nil
		}
		return "", fmt.Errorf("%w: unsupported renewal-status subtype %q", webhook.ErrMalformedPayload, subtype)
	case "EXPIRED", "GRACE_PERIOD_EXPIRED":
		return ledger.EventExpiration, nil
	case "DID_FAIL_TO_RENEW":
		return ledger.EventBillingIssue, nil
	case "ONE_TIME_CHARGE":
		return ledger.EventNonRenewingPurchase, nil
	case "TEST":
		return ledger.EventTest, nil
	default:
		return "", fmt.Errorf("%w: unsupported notification type %q", webhook.ErrMalformedPayload, notificationType)
	}
}

// decodeJWSPayload base64url-decodes the payload segment of a JWS token
// and unmarshals it into target. No signature verification here.
func decodeJWSPayload(token string, target interface{}) error {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return fmt.Errorf("expected 3 JWS segments, got %d", len(parts))
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return fmt.Errorf("decode payload segment: %v", err)
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("unmarshal payload: %v", err)
	}
	return nil
}

func millisToTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.Unix(0, ms*int64(time.Millisecond)).UTC()
}

// milliToMinorUnits converts a milliunit price (4990 for $4.99) to minor
// units (499), half-up.
func milliToMinorUnits(price int64) int64 {
	if price <= 0 {
		return 0
	}
	return (price + 5) / 10
}
