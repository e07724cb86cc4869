// Package stripe implements the payout processor contract on Stripe
// Connect. Each batch moves money in two steps: a transfer from the
// platform balance to the affiliate's connected account, then a payout
// from that account to their bank. The payout id is the transfer
// reference callbacks and sweeps resolve batches by.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v83"

	"github.com/fitreach/commissionledger/pkg/payout"
)

// Client is the Stripe-backed payout.Client.
type Client struct {
	sc *stripe.Client

	// statementDescriptor shows on the affiliate's bank statement.
	statementDescriptor string
}

// Option customizes a Client.
type Option func(*Client)

// WithStatementDescriptor sets the bank statement text on payouts.
func WithStatementDescriptor(desc string) Option {
	return func(c *Client) { c.statementDescriptor = desc }
}

// NewClient creates a Stripe payout client.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("stripe: api key is required")
	}
	c := &Client{sc: stripe.NewClient(apiKey)}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetAccount implements payout.Client.
func (c *Client) GetAccount(ctx context.Context, accountRef string) (*payout.Account, error) {
	acct, err := c.sc.V1Accounts.GetByID(ctx, accountRef, nil)
	if err != nil {
		return nil, fmt.Errorf("stripe: retrieve account %s: %w", accountRef, err)
	}
	return &payout.Account{
		Ref:            acct.ID,
		PayoutsEnabled: acct.PayoutsEnabled,
	}, nil
}

// CreateAccount implements payout.Client. Affiliates get Express
// accounts with the transfers capability so the platform can push
// commission money to them.
func (c *Client) CreateAccount(ctx context.Context, email string) (*payout.Account, error) {
	params := &stripe.AccountCreateParams{
		Type: stripe.String(string(stripe.AccountTypeExpress)),
		Capabilities: &stripe.AccountCreateCapabilitiesParams{
			Transfers: &stripe.AccountCreateCapabilitiesTransfersParams{
				Requested: stripe.Bool(true),
			},
		},
	}
	if email != "" {
		params.Email = stripe.String(email)
	}

	acct, err := c.sc.V1Accounts.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create account: %w", err)
	}
	return &payout.Account{
		Ref:            acct.ID,
		PayoutsEnabled: acct.PayoutsEnabled,
	}, nil
}

// CreateAccountLink implements payout.Client.
func (c *Client) CreateAccountLink(ctx context.Context, accountRef, refreshURL, returnURL string) (string, error) {
	link, err := c.sc.V1AccountLinks.Create(ctx, &stripe.AccountLinkCreateParams{
		Account:    stripe.String(accountRef),
		RefreshURL: stripe.String(refreshURL),
		ReturnURL:  stripe.String(returnURL),
		Type:       stripe.String(string(stripe.AccountLinkTypeAccountOnboarding)),
	})
	if err != nil {
		return "", fmt.Errorf("stripe: create account link for %s: %w", accountRef, err)
	}
	return link.URL, nil
}

// CreateTransfer implements payout.Client. Both Stripe calls carry
// idempotency keys derived from req.IdempotencyKey, so a retried
// submission resumes instead of double-paying.
func (c *Client) CreateTransfer(ctx context.Context, req payout.TransferRequest) (*payout.TransferResult, error) {
	transferParams := &stripe.TransferCreateParams{
		Amount:      stripe.Int64(req.AmountMinorUnits),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Destination: stripe.String(req.DestinationAccount),
		Description: stripe.String(req.Description),
	}
	for k, v := range req.Metadata {
		transferParams.AddMetadata(k, v)
	}
	transferParams.SetIdempotencyKey(req.IdempotencyKey + "-transfer")

	transfer, err := c.sc.V1Transfers.Create(ctx, transferParams)
	if err != nil {
		return nil, fmt.Errorf("stripe: create transfer: %w", err)
	}

	payoutParams := &stripe.PayoutCreateParams{
		Amount:   stripe.Int64(req.AmountMinorUnits),
		Currency: stripe.String(strings.ToLower(req.Currency)),
	}
	if c.statementDescriptor != "" {
		payoutParams.StatementDescriptor = stripe.String(c.statementDescriptor)
	}
	for k, v := range req.Metadata {
		payoutParams.AddMetadata(k, v)
	}
	payoutParams.AddMetadata("transfer_id", transfer.ID)
	payoutParams.SetStripeAccount(req.DestinationAccount)
	payoutParams.SetIdempotencyKey(req.IdempotencyKey + "-payout")

	po, err := c.sc.V1Payouts.Create(ctx, payoutParams)
	if err != nil {
		// The platform-to-account transfer went through but the bank
		// payout did not start. The funds sit on the connected account;
		// a resubmit with the same key picks up from here.
		return nil, fmt.Errorf("stripe: create payout after transfer %s: %w", transfer.ID, err)
	}

	return &payout.TransferResult{
		Ref:    po.ID,
		Status: mapPayoutStatus(po.Status),
	}, nil
}

// GetTransfer implements payout.Client.
func (c *Client) GetTransfer(ctx context.Context, accountRef, transferRef string) (*payout.TransferResult, error) {
	params := &stripe.PayoutRetrieveParams{}
	params.SetStripeAccount(accountRef)

	po, err := c.sc.V1Payouts.Retrieve(ctx, transferRef, params)
	if err != nil {
		return nil, fmt.Errorf("stripe: retrieve payout %s: %w", transferRef, err)
	}
	return &payout.TransferResult{
		Ref:    po.ID,
		Status: mapPayoutStatus(po.Status),
	}, nil
}

func mapPayoutStatus(status stripe.PayoutStatus) payout.TransferStatus {
	switch status {
	case stripe.PayoutStatusPaid:
		return payout.TransferPaid
	case stripe.PayoutStatusFailed, stripe.PayoutStatusCanceled:
		return payout.TransferFailed
	default:
		return payout.TransferPending
	}
}
