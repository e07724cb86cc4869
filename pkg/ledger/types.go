package ledger

import (
	"strings"
	"time"
)

// EventType classifies a subscription lifecycle event after normalization.
type EventType string

const (
	// EventInitialPurchase is the first paid transaction of a subscription
	EventInitialPurchase EventType = "initial_purchase"
	// EventRenewal is a successful recurring charge
	EventRenewal EventType = "renewal"
	// EventCancellation means auto-renew was turned off by the user
	EventCancellation EventType = "cancellation"
	// EventExpiration means the subscription has lapsed
	EventExpiration EventType = "expiration"
	// EventBillingIssue means a charge failed and the subscription is in a grace state
	EventBillingIssue EventType = "billing_issue"
	// EventNonRenewingPurchase is a one-time purchase outside the subscription program
	EventNonRenewingPurchase EventType = "non_renewing_purchase"
	// EventTest is a connectivity smoke-test event sent by the billing platform
	EventTest EventType = "test"
)

// SourceFormat records which wire format an event was decoded from.
// Kept on the event for audit only; no business rule reads it.
type SourceFormat string

const (
	// SourcePlainJSON is the plain JSON event-object format
	SourcePlainJSON SourceFormat = "plain_json"
	// SourceSignedEnvelope is the signed-token envelope format
	SourceSignedEnvelope SourceFormat = "signed_envelope"
)

// SubscriptionEvent is the canonical, normalizer-independent event.
// Immutable once constructed; the processor never mutates it.
type SubscriptionEvent struct {
	Type                  EventType
	EndUserID             string
	ProductID             string
	TransactionID         string
	OriginalTransactionID string
	PriceMinorUnits       int64
	Currency              string
	OccurredAt            time.Time
	RawSourceFormat       SourceFormat
}

// Key returns the idempotency key for this event.
func (e *SubscriptionEvent) Key() EventKey {
	return EventKey{TransactionID: e.TransactionID, Type: e.Type}
}

// EventKey identifies one logical delivery of one event.
// The same transaction id can legitimately appear under different event
// types (e.g. a purchase and a later cancellation), so both fields matter.
type EventKey struct {
	TransactionID string
	Type          EventType
}

// String returns a stable storage key.
func (k EventKey) String() string {
	return k.TransactionID + ":" + string(k.Type)
}

// Affiliate holds the commission-relevant view of an affiliate.
type Affiliate struct {
	ID           string
	ReferralCode string
	// RatePercent is the current commission rate. The rate in effect at
	// commission-creation time is captured into the Commission record and
	// never recomputed retroactively.
	RatePercent float64
	// PayoutAccountRef is the connected account at the payment processor.
	// Empty until the affiliate has onboarded.
	PayoutAccountRef string
}

// NormalizeReferralCode canonicalizes a referral code for lookup.
// Codes are unique case-insensitively.
func NormalizeReferralCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// ReferredUser maps an end user to the referral code that attributed them.
// First-touch: written once, never re-attributed.
type ReferredUser struct {
	EndUserID    string
	ReferralCode string
	AttributedAt time.Time
}

// CommissionStatus is the payment state of a commission.
type CommissionStatus string

const (
	// CommissionPending is owed and eligible for a future payout batch
	CommissionPending CommissionStatus = "pending"
	// CommissionClaimed is reserved by an in-flight payout batch.
	// Internal state: claimed rows revert to pending if the batch fails.
	CommissionClaimed CommissionStatus = "claimed"
	// CommissionPaid has settled through a payout batch
	CommissionPaid CommissionStatus = "paid"
	// CommissionVoid was administratively cancelled
	CommissionVoid CommissionStatus = "void"
)

// CommissionPeriod distinguishes first-purchase from renewal commissions.
type CommissionPeriod string

const (
	// PeriodInitial is the commission on an initial purchase
	PeriodInitial CommissionPeriod = "initial"
	// PeriodRenewal is the commission on a renewal charge
	PeriodRenewal CommissionPeriod = "renewal"
)

// Commission is one monetary credit owed to an affiliate for one
// qualifying billing event. At most one non-void commission may exist per
// (SourceTransactionID, SourceEventType) pair; storage enforces this.
type Commission struct {
	ID                  string
	AffiliateID         string
	EndUserID           string
	SourceTransactionID string
	SourceEventType     EventType
	AmountMinorUnits    int64
	Currency            string
	RatePercentApplied  float64
	Period              CommissionPeriod
	Status              CommissionStatus
	PayoutID            string
	CreatedAt           time.Time
	PaidAt              *time.Time
}

// LifecycleState is the affiliate-relevant state of one subscription.
type LifecycleState string

const (
	// StateActive means renewals still earn commissions
	StateActive LifecycleState = "active"
	// StateCanceled is terminal for commission purposes
	StateCanceled LifecycleState = "canceled"
	// StateExpired is terminal for commission purposes
	StateExpired LifecycleState = "expired"
	// StateBillingIssue can resolve back to active on a later renewal
	StateBillingIssue LifecycleState = "billing_issue"
)

// LifecycleRecord tracks one subscription, keyed by its original
// transaction id. LastEventAt makes the state recency-monotonic: an event
// older than LastEventAt must never regress the state.
type LifecycleRecord struct {
	EndUserID             string
	OriginalTransactionID string
	State                 LifecycleState
	LastEventAt           time.Time
}

// BatchStatus is the settlement state of a payout batch.
type BatchStatus string

const (
	// BatchCreated is built but not yet sent to the processor
	BatchCreated BatchStatus = "created"
	// BatchSubmitted has an accepted transfer awaiting a processor callback
	BatchSubmitted BatchStatus = "submitted"
	// BatchSettled is confirmed paid; its commissions are Paid
	BatchSettled BatchStatus = "settled"
	// BatchFailed did not settle; its commissions reverted to Pending
	BatchFailed BatchStatus = "failed"
)

// PayoutBatch groups the claimed commissions of one affiliate into one
// external transfer. PayoutID doubles as the transfer idempotency token.
type PayoutBatch struct {
	PayoutID            string
	AffiliateID         string
	CommissionIDs       []string
	TotalAmountMinor    int64
	Currency            string
	ExternalTransferRef string
	Status              BatchStatus
	CreatedAt           time.Time
	SubmittedAt         *time.Time
	SettledAt           *time.Time
}
