package appstore

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fitreach/commissionledger/pkg/ledger"
	"github.com/fitreach/commissionledger/pkg/webhook"
)

// signToken wraps a payload as a decode-only JWS token: header and
// signature segments are placeholders since Normalize never inspects them.
func signToken(t *testing.T, payload interface{}) string {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	seg := base64.RawURLEncoding.EncodeToString
	return seg([]byte(`{"alg":"ES256"}`)) + "." + seg(raw) + "." + seg([]byte("sig"))
}

func envelopeBody(t *testing.T, note map[string]interface{}) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]string{"signedPayload": signToken(t, note)})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return body
}

func subscribedNote(txn map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"notificationType": "SUBSCRIBED",
		"notificationUUID": "note_1",
		"signedDate":       int64(1772452800000),
		"data": map[string]interface{}{
			"bundleId":              "com.fitreach.app",
			"environment":           "Production",
			"signedTransactionInfo": rawToken(txn),
		},
	}
}

// rawToken is signToken without the testing.T, for building nested tokens
// inside map literals.
func rawToken(payload interface{}) string {
	raw, _ := json.Marshal(payload)
	seg := base64.RawURLEncoding.EncodeToString
	return seg([]byte(`{"alg":"ES256"}`)) + "." + seg(raw) + "." + seg([]byte("sig"))
}

func TestNormalizeSubscribed(t *testing.T) {
	body := envelopeBody(t, subscribedNote(map[string]interface{}{
		"transactionId":         "txn_2001",
		"originalTransactionId": "txn_2000",
		"productId":             "fitreach_monthly",
		"appAccountToken":       "user_42",
		"price":                 int64(4990),
		"currency":              "usd",
		"purchaseDate":          int64(1772452800000),
	}))

	ev, err := New().Normalize(body)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if ev.Type != ledger.EventInitialPurchase {
		t.Errorf("expected initial_purchase, got %s", ev.Type)
	}
	if ev.EndUserID != "user_42" {
		t.Errorf("expected user_42, got %s", ev.EndUserID)
	}
	if ev.TransactionID != "txn_2001" || ev.OriginalTransactionID != "txn_2000" {
		t.Errorf("unexpected transaction ids %s / %s", ev.TransactionID, ev.OriginalTransactionID)
	}
	if ev.PriceMinorUnits != 499 {
		t.Errorf("expected 499 minor units from milliunit 4990, got %d", ev.PriceMinorUnits)
	}
	if ev.Currency != "USD" {
		t.Errorf("expected USD, got %s", ev.Currency)
	}
	want := time.Unix(0, 1772452800000*int64(time.Millisecond)).UTC()
	if !ev.OccurredAt.Equal(want) {
		t.Errorf("expected %s, got %s", want, ev.OccurredAt)
	}
	if ev.RawSourceFormat != ledger.SourceSignedEnvelope {
		t.Errorf("expected signed_envelope source, got %s", ev.RawSourceFormat)
	}
}

func TestNormalizeNotificationTypes(t *testing.T) {
	tests := []struct {
		notificationType string
		subtype          string
		want             ledger.EventType
	}{
		{"SUBSCRIBED", "INITIAL_BUY", ledger.EventInitialPurchase},
		{"DID_RENEW", "", ledger.EventRenewal},
		{"DID_CHANGE_RENEWAL_STATUS", "AUTO_RENEW_DISABLED", ledger.EventCancellation},
		{"EXPIRED", "VOLUNTARY", ledger.EventExpiration},
		{"GRACE_PERIOD_EXPIRED", "", ledger.EventExpiration},
		{"DID_FAIL_TO_RENEW", "", ledger.EventBillingIssue},
		{"ONE_TIME_CHARGE", "", ledger.EventNonRenewingPurchase},
	}

	for _, tt := range tests {
		note := subscribedNote(map[string]interface{}{
			"transactionId":   "txn_1",
			"appAccountToken": "user_42",
			"purchaseDate":    int64(1772452800000),
		})
		note["notificationType"] = tt.notificationType
		note["subtype"] = tt.subtype

		ev, err := New().Normalize(envelopeBody(t, note))
		if err != nil {
			t.Fatalf("Normalize(%s/%s) failed: %v", tt.notificationType, tt.subtype, err)
		}
		if ev.Type != tt.want {
			t.Errorf("Normalize(%s/%s) = %s, want %s", tt.notificationType, tt.subtype, ev.Type, tt.want)
		}
	}
}

func TestNormalizeTestNotification(t *testing.T) {
	body := envelopeBody(t, map[string]interface{}{
		"notificationType": "TEST",
		"notificationUUID": "note_test_1",
		"signedDate":       int64(1772452800000),
	})

	ev, err := New().Normalize(body)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if ev.Type != ledger.EventTest {
		t.Errorf("expected test event, got %s", ev.Type)
	}
	if ev.TransactionID != "note_test_1" {
		t.Errorf("expected notification uuid as transaction id, got %s", ev.TransactionID)
	}
	if ev.EndUserID != "" {
		t.Errorf("test events carry no end user, got %s", ev.EndUserID)
	}
}

func TestNormalizeUserFromRenewalInfo(t *testing.T) {
	// appAccountToken missing from the transaction but present on the
	// renewal info token.
	note := map[string]interface{}{
		"notificationType": "DID_RENEW",
		"notificationUUID": "note_2",
		"signedDate":       int64(1772452800000),
		"data": map[string]interface{}{
			"signedTransactionInfo": rawToken(map[string]interface{}{
				"transactionId": "txn_3001",
				"price":         int64(9990),
				"currency":      "USD",
				"purchaseDate":  int64(1772452800000),
			}),
			"signedRenewalInfo": rawToken(map[string]interface{}{
				"originalTransactionId": "txn_3000",
				"appAccountToken":       "user_99",
			}),
		},
	}

	ev, err := New().Normalize(envelopeBody(t, note))
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if ev.EndUserID != "user_99" {
		t.Errorf("expected user from renewal info, got %s", ev.EndUserID)
	}
	if ev.PriceMinorUnits != 999 {
		t.Errorf("expected 999, got %d", ev.PriceMinorUnits)
	}
}

func TestNormalizeTimestampFallsBackToSignedDate(t *testing.T) {
	note := subscribedNote(map[string]interface{}{
		"transactionId":   "txn_1",
		"appAccountToken": "user_42",
	})

	ev, err := New().Normalize(envelopeBody(t, note))
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	want := time.Unix(0, 1772452800000*int64(time.Millisecond)).UTC()
	if !ev.OccurredAt.Equal(want) {
		t.Errorf("expected notification signedDate %s, got %s", want, ev.OccurredAt)
	}
}

func TestNormalizeMalformed(t *testing.T) {
	withType := func(notificationType, subtype string) []byte {
		note := subscribedNote(map[string]interface{}{
			"transactionId":   "txn_1",
			"appAccountToken": "user_42",
			"purchaseDate":    int64(1772452800000),
		})
		note["notificationType"] = notificationType
		note["subtype"] = subtype
		return envelopeBody(t, note)
	}

	noUser := subscribedNote(map[string]interface{}{
		"transactionId": "txn_1",
		"purchaseDate":  int64(1772452800000),
	})
	noTxnID := subscribedNote(map[string]interface{}{
		"appAccountToken": "user_42",
		"purchaseDate":    int64(1772452800000),
	})
	badToken := map[string]interface{}{
		"notificationType": "SUBSCRIBED",
		"data": map[string]interface{}{
			"signedTransactionInfo": "only.two-segments",
		},
	}
	noTxnInfo := map[string]interface{}{
		"notificationType": "SUBSCRIBED",
		"data":             map[string]interface{}{},
	}

	tests := []struct {
		name string
		body []byte
	}{
		{"invalid json", []byte(`{"signedPayload`)},
		{"missing signedPayload", []byte(`{}`)},
		{"not a JWS token", []byte(`{"signedPayload": "nodots"}`)},
		{"unknown notification type", withType("REFUND", "")},
		{"re-enable renewal subtype", withType("DID_CHANGE_RENEWAL_STATUS", "AUTO_RENEW_ENABLED")},
		{"no app account token", envelopeBody(t, noUser)},
		{"missing transaction id", envelopeBody(t, noTxnID)},
		{"bad inner token", envelopeBody(t, badToken)},
		{"missing transaction info", envelopeBody(t, noTxnInfo)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().Normalize(tt.body)
			if !errors.Is(err, webhook.ErrMalformedPayload) {
				t.Errorf("expected ErrMalformedPayload, got %v", err)
			}
		})
	}
}

func TestMilliToMinorUnits(t *testing.T) {
	tests := []struct {
		price int64
		want  int64
	}{
		{4990, 499},
		{9990, 999},
		{4995, 500},
		{4994, 499},
		{0, 0},
		{-10, 0},
	}
	for _, tt := range tests {
		if got := milliToMinorUnits(tt.price); got != tt.want {
			t.Errorf("milliToMinorUnits(%d) = %d, want %d", tt.price, got, tt.want)
		}
	}
}
