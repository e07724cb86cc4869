package ledger

import "errors"

var (
	// ErrAffiliateNotFound is returned when no affiliate matches the lookup
	ErrAffiliateNotFound = errors.New("affiliate not found")

	// ErrRateMissing is returned when an affiliate record has no commission
	// rate; fatal for the event, never silently defaulted
	ErrRateMissing = errors.New("affiliate commission rate missing")

	// ErrReferralCodeTaken is returned when an affiliate write would reuse
	// a referral code owned by a different affiliate (codes are unique
	// case-insensitively)
	ErrReferralCodeTaken = errors.New("referral code already taken")

	// ErrAttributionExists is returned when a second attribution is
	// attempted for an already-attributed end user (first-touch is immutable)
	ErrAttributionExists = errors.New("end user already attributed")

	// ErrCommissionExists is returned by storage when the non-void
	// uniqueness constraint on (source transaction id, event type) fires.
	// This indicates the idempotency guard was bypassed.
	ErrCommissionExists = errors.New("commission already exists for transaction")

	// ErrCommissionNotFound is returned when no commission matches the id
	ErrCommissionNotFound = errors.New("commission not found")

	// ErrMixedCurrency is returned when a payout batch build finds pending
	// commissions in more than one currency; one batch maps to one transfer
	ErrMixedCurrency = errors.New("pending commissions span multiple currencies")

	// ErrBatchNotFound is returned when no payout batch matches the lookup
	ErrBatchNotFound = errors.New("payout batch not found")

	// ErrBatchStateConflict is returned when a batch transition is applied
	// to a batch that is not in the expected state
	ErrBatchStateConflict = errors.New("payout batch in conflicting state")

	// ErrStorageUnavailable is returned when the backing store is unreachable
	ErrStorageUnavailable = errors.New("storage unavailable")
)
