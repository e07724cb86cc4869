package payout

import (
	"errors"

	"github.com/fitreach/commissionledger/pkg/ledger"
)

var (
	// ErrNoPayoutAccount means the affiliate has not onboarded a payout
	// account yet. BuildBatch mutates nothing when it returns this.
	ErrNoPayoutAccount = errors.New("payout: affiliate has no payout account")

	// ErrPayoutsDisabled means the connected account exists but the
	// processor has payouts disabled on it (onboarding incomplete or
	// account under review).
	ErrPayoutsDisabled = errors.New("payout: payouts disabled on connected account")

	// ErrNothingToPay means the affiliate has no pending commissions.
	ErrNothingToPay = errors.New("payout: no pending commissions")

	// ErrMixedCurrency means the affiliate's pending commissions span more
	// than one currency and cannot share a single transfer. Raised by the
	// storage layer inside the batch-build transaction.
	ErrMixedCurrency = ledger.ErrMixedCurrency

	// ErrUnknownTransfer means a processor callback referenced a transfer
	// no batch is waiting on.
	ErrUnknownTransfer = errors.New("payout: transfer reference matches no batch")
)
