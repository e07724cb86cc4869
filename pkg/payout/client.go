package payout

import "context"

// TransferStatus is the processor-side state of a transfer.
type TransferStatus string

const (
	// TransferPending is accepted but not yet settled
	TransferPending TransferStatus = "pending"
	// TransferPaid has settled
	TransferPaid TransferStatus = "paid"
	// TransferFailed did not settle
	TransferFailed TransferStatus = "failed"
)

// Account is the commission-relevant view of a connected payout account.
type Account struct {
	Ref            string
	PayoutsEnabled bool
}

// TransferRequest describes one outbound transfer. IdempotencyKey makes
// retried submissions safe: the processor deduplicates on it.
type TransferRequest struct {
	IdempotencyKey     string
	DestinationAccount string
	AmountMinorUnits   int64
	Currency           string
	Description        string
	Metadata           map[string]string
}

// TransferResult is the processor's view of a created or fetched transfer.
type TransferResult struct {
	Ref    string
	Status TransferStatus
}

// Client abstracts the payment processor. Implementations must honor the
// idempotency key on CreateTransfer so that a resubmitted request returns
// the original transfer instead of moving money twice.
type Client interface {
	// GetAccount fetches a connected account so the engine can check
	// payouts are enabled before moving money.
	GetAccount(ctx context.Context, accountRef string) (*Account, error)

	// CreateAccount provisions a new connected account for an affiliate.
	// The account starts with payouts disabled until onboarding completes.
	CreateAccount(ctx context.Context, email string) (*Account, error)

	// CreateAccountLink returns a one-time onboarding URL for a connected
	// account. The affiliate finishes identity and bank setup there.
	CreateAccountLink(ctx context.Context, accountRef, refreshURL, returnURL string) (string, error)

	// CreateTransfer initiates a transfer to a connected account.
	CreateTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error)

	// GetTransfer fetches the current status of a transfer on a connected
	// account. Used by the reconciliation sweep when no callback arrived.
	GetTransfer(ctx context.Context, accountRef, transferRef string) (*TransferResult, error)
}
