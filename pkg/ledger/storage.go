package ledger

import (
	"context"
	"time"
)

// Storage defines the persistence contract for the commission ledger.
// Methods that span multiple rows are atomic: an adapter must implement
// them as a single transaction (or equivalent) so that concurrent webhook
// deliveries and payout builds cannot interleave partial state.
type Storage interface {
	// ReserveEvent atomically tests-and-sets the reservation for an event
	// key. Returns true if the reservation is new (caller proceeds) or
	// false if the key was already reserved (duplicate delivery, skip).
	// Reservations must survive process restarts.
	ReserveEvent(ctx context.Context, key EventKey) (bool, error)

	// ReleaseEvent frees a reservation after a downstream storage failure
	// so the sender's retry can be processed. Releasing an unknown key is
	// a no-op.
	ReleaseEvent(ctx context.Context, key EventKey) error

	// ApplyLifecycle upserts the lifecycle record for rec's original
	// transaction id, but only when rec.LastEventAt is not older than the
	// stored record's LastEventAt (stale events never regress state).
	// Returns the record now in effect.
	ApplyLifecycle(ctx context.Context, rec *LifecycleRecord) (*LifecycleRecord, error)

	// GetLifecycle returns the lifecycle record for an original
	// transaction id, or nil when the subscription has never been seen.
	GetLifecycle(ctx context.Context, originalTransactionID string) (*LifecycleRecord, error)

	// GetAttribution returns the referred-user mapping for an end user,
	// or nil when the user was never attributed (not an error).
	GetAttribution(ctx context.Context, endUserID string) (*ReferredUser, error)

	// SetAttribution records a first-touch attribution. Returns
	// ErrAttributionExists if the end user is already attributed.
	SetAttribution(ctx context.Context, ref *ReferredUser) error

	// GetAffiliate returns an affiliate by id, or ErrAffiliateNotFound.
	GetAffiliate(ctx context.Context, affiliateID string) (*Affiliate, error)

	// GetAffiliateByCode returns the affiliate owning a referral code,
	// matched case-insensitively, or ErrAffiliateNotFound.
	GetAffiliateByCode(ctx context.Context, referralCode string) (*Affiliate, error)

	// PutAffiliate creates or updates an affiliate record.
	PutAffiliate(ctx context.Context, aff *Affiliate) error

	// InsertCommission appends a commission row. The adapter must enforce
	// at most one non-void commission per (SourceTransactionID,
	// SourceEventType) as a hard constraint and return ErrCommissionExists
	// when it fires.
	InsertCommission(ctx context.Context, c *Commission) error

	// GetCommission returns a commission by id, or ErrCommissionNotFound.
	GetCommission(ctx context.Context, commissionID string) (*Commission, error)

	// ListCommissions returns the commissions for an affiliate in the
	// given status, oldest first.
	ListCommissions(ctx context.Context, affiliateID string, status CommissionStatus) ([]*Commission, error)

	// CreateBatchFromPending atomically moves every pending commission of
	// b.AffiliateID to Claimed under b.PayoutID and persists b (status
	// Created) over them in the same transaction, so a crash can never
	// leave claimed rows without a batch to revert them. The adapter fills
	// b.CommissionIDs, b.TotalAmountMinor and b.Currency from the claimed
	// rows and returns them, oldest first. No pending rows claims nothing,
	// persists nothing and returns an empty slice. Pending rows in more
	// than one currency abort with ErrMixedCurrency, claiming nothing.
	// Two concurrent builds for the same affiliate must not overlap: a
	// commission belongs to at most one batch.
	CreateBatchFromPending(ctx context.Context, b *PayoutBatch) ([]*Commission, error)

	// GetBatch returns a batch by payout id, or ErrBatchNotFound.
	GetBatch(ctx context.Context, payoutID string) (*PayoutBatch, error)

	// GetBatchByTransferRef resolves a processor callback's transfer
	// reference to the batch it belongs to, or ErrBatchNotFound.
	GetBatchByTransferRef(ctx context.Context, transferRef string) (*PayoutBatch, error)

	// MarkBatchSubmitted records the accepted transfer reference and moves
	// the batch Created→Submitted. ErrBatchStateConflict unless Created or
	// already Submitted with the same ref (idempotent resubmit).
	MarkBatchSubmitted(ctx context.Context, payoutID, transferRef string, at time.Time) error

	// SettleBatch atomically marks the batch Settled and every commission
	// in it Paid with the given paid-at time.
	SettleBatch(ctx context.Context, payoutID string, paidAt time.Time) error

	// FailBatch atomically marks the batch Failed and reverts every
	// commission in it to Pending, clearing its payout id so it is
	// eligible for a future batch.
	FailBatch(ctx context.Context, payoutID string) error

	// ListStaleSubmitted returns batches that have sat in Submitted since
	// before the cutoff with no callback; input to the reconciliation sweep.
	ListStaleSubmitted(ctx context.Context, cutoff time.Time) ([]*PayoutBatch, error)
}
