// Package payout turns pending commissions into processor transfers and
// keeps batch state in step with what the processor reports back.
package payout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fitreach/commissionledger/pkg/ledger"
)

const (
	defaultStaleAfter       = 24 * time.Hour
	defaultSweepConcurrency = 4
)

// Config configures an Engine. Storage and Client are required.
type Config struct {
	Storage ledger.Storage
	Client  Client

	// Logger defaults to the no-op logger.
	Logger ledger.Logger

	// Metrics defaults to the no-op recorder.
	Metrics ledger.Metrics

	// StaleAfter is how long a batch may sit in Submitted without a
	// processor callback before the sweep polls it. Defaults to 24h.
	StaleAfter time.Duration

	// SweepConcurrency bounds parallel processor polls during a sweep.
	// Defaults to 4.
	SweepConcurrency int

	// Now overrides the clock in tests.
	Now func() time.Time
}

func (c *Config) withDefaults() {
	if c.Logger == nil {
		c.Logger = &ledger.NoopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = &ledger.NoopMetrics{}
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = defaultStaleAfter
	}
	if c.SweepConcurrency <= 0 {
		c.SweepConcurrency = defaultSweepConcurrency
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Engine owns the payout lifecycle: build, submit, reconcile, sweep.
type Engine struct {
	storage ledger.Storage
	client  Client
	logger  ledger.Logger
	metrics ledger.Metrics

	staleAfter       time.Duration
	sweepConcurrency int
	now              func() time.Time
}

// NewEngine creates a payout engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Storage == nil {
		return nil, errors.New("payout: config requires a Storage")
	}
	if cfg.Client == nil {
		return nil, errors.New("payout: config requires a Client")
	}
	cfg.withDefaults()
	return &Engine{
		storage:          cfg.Storage,
		client:           cfg.Client,
		logger:           cfg.Logger,
		metrics:          cfg.Metrics,
		staleAfter:       cfg.StaleAfter,
		sweepConcurrency: cfg.SweepConcurrency,
		now:              cfg.Now,
	}, nil
}

// OnboardAffiliate provisions a connected account for the affiliate if
// they do not have one yet, stores its ref, and returns an onboarding
// link. Calling it again for an onboarded affiliate reuses the existing
// account and only mints a fresh link.
func (e *Engine) OnboardAffiliate(ctx context.Context, affiliateID, email, refreshURL, returnURL string) (string, error) {
	aff, err := e.storage.GetAffiliate(ctx, affiliateID)
	if err != nil {
		return "", fmt.Errorf("payout: load affiliate: %w", err)
	}

	if aff.PayoutAccountRef == "" {
		start := e.now()
		acct, err := e.client.CreateAccount(ctx, email)
		e.metrics.RecordProcessorCallDuration("create_account", time.Since(start))
		if err != nil {
			e.metrics.RecordProcessorCall("create_account", "error")
			return "", fmt.Errorf("payout: create connected account: %w", err)
		}
		e.metrics.RecordProcessorCall("create_account", "ok")

		aff.PayoutAccountRef = acct.Ref
		if err := e.storage.PutAffiliate(ctx, aff); err != nil {
			return "", fmt.Errorf("payout: store payout account ref: %w", err)
		}
		e.logger.Info("connected account created",
			ledger.Field{Key: "affiliate_id", Value: affiliateID},
			ledger.Field{Key: "account_ref", Value: acct.Ref})
	}

	start := e.now()
	url, err := e.client.CreateAccountLink(ctx, aff.PayoutAccountRef, refreshURL, returnURL)
	e.metrics.RecordProcessorCallDuration("create_account_link", time.Since(start))
	if err != nil {
		e.metrics.RecordProcessorCall("create_account_link", "error")
		return "", fmt.Errorf("payout: create account link: %w", err)
	}
	e.metrics.RecordProcessorCall("create_account_link", "ok")
	return url, nil
}

// BuildBatch claims every pending commission of the affiliate into a new
// batch in Created state. It refuses to run for an affiliate without a
// payout account or whose account does not currently report payouts
// enabled, and every refusal happens before the claim so it mutates
// nothing.
func (e *Engine) BuildBatch(ctx context.Context, affiliateID string) (*ledger.PayoutBatch, error) {
	aff, err := e.storage.GetAffiliate(ctx, affiliateID)
	if err != nil {
		return nil, fmt.Errorf("payout: load affiliate: %w", err)
	}
	if aff.PayoutAccountRef == "" {
		return nil, ErrNoPayoutAccount
	}

	// Live account check, not a cached flag. Refusing here leaves the
	// pending rows untouched.
	acct, err := e.timedAccount(ctx, aff.PayoutAccountRef)
	if err != nil {
		return nil, fmt.Errorf("payout: fetch connected account: %w", err)
	}
	if !acct.PayoutsEnabled {
		return nil, ErrPayoutsDisabled
	}

	// Claim and batch persist as one storage transaction: either the batch
	// exists with its commissions claimed under it, or nothing changed. A
	// claimed row always has a batch for FailBatch to revert through.
	batch := &ledger.PayoutBatch{
		PayoutID:    uuid.NewString(),
		AffiliateID: affiliateID,
		Status:      ledger.BatchCreated,
		CreatedAt:   e.now().UTC(),
	}
	claimed, err := e.storage.CreateBatchFromPending(ctx, batch)
	if err != nil {
		if errors.Is(err, ledger.ErrMixedCurrency) {
			return nil, err
		}
		return nil, fmt.Errorf("payout: build batch: %w", err)
	}
	if len(claimed) == 0 {
		return nil, ErrNothingToPay
	}

	e.metrics.RecordPayoutBatch(string(ledger.BatchCreated), batch.TotalAmountMinor)
	e.logger.Info("payout batch built",
		ledger.Field{Key: "payout_id", Value: batch.PayoutID},
		ledger.Field{Key: "affiliate_id", Value: affiliateID},
		ledger.Field{Key: "commissions", Value: len(claimed)},
		ledger.Field{Key: "total_minor_units", Value: batch.TotalAmountMinor})
	return batch, nil
}

// Submit sends a Created batch to the processor. A batch already in
// Submitted is returned as-is; the processor deduplicates on the payout
// id, so calling Submit again after a transport error is safe.
func (e *Engine) Submit(ctx context.Context, payoutID string) (*ledger.PayoutBatch, error) {
	batch, err := e.storage.GetBatch(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	switch batch.Status {
	case ledger.BatchCreated:
	case ledger.BatchSubmitted:
		return batch, nil
	default:
		return nil, fmt.Errorf("%w: batch %s is %s", ledger.ErrBatchStateConflict, payoutID, batch.Status)
	}

	aff, err := e.storage.GetAffiliate(ctx, batch.AffiliateID)
	if err != nil {
		return nil, fmt.Errorf("payout: load affiliate: %w", err)
	}
	if aff.PayoutAccountRef == "" {
		return nil, ErrNoPayoutAccount
	}

	acct, err := e.timedAccount(ctx, aff.PayoutAccountRef)
	if err != nil {
		return nil, fmt.Errorf("payout: fetch connected account: %w", err)
	}
	if !acct.PayoutsEnabled {
		// The batch stays Created; once onboarding completes a retry
		// will go through.
		return nil, ErrPayoutsDisabled
	}

	result, err := e.timedTransfer(ctx, TransferRequest{
		IdempotencyKey:     batch.PayoutID,
		DestinationAccount: aff.PayoutAccountRef,
		AmountMinorUnits:   batch.TotalAmountMinor,
		Currency:           batch.Currency,
		Description:        fmt.Sprintf("commission payout %s", batch.PayoutID),
		Metadata: map[string]string{
			"payout_id":    batch.PayoutID,
			"affiliate_id": batch.AffiliateID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("payout: create transfer: %w", err)
	}

	if result.Status == TransferFailed {
		if err := e.failBatch(ctx, batch); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("payout: transfer %s rejected by processor", result.Ref)
	}

	submittedAt := e.now().UTC()
	if err := e.storage.MarkBatchSubmitted(ctx, batch.PayoutID, result.Ref, submittedAt); err != nil {
		return nil, fmt.Errorf("payout: mark submitted: %w", err)
	}

	e.metrics.RecordPayoutBatch(string(ledger.BatchSubmitted), batch.TotalAmountMinor)
	e.logger.Info("payout batch submitted",
		ledger.Field{Key: "payout_id", Value: batch.PayoutID},
		ledger.Field{Key: "transfer_ref", Value: result.Ref},
		ledger.Field{Key: "total_minor_units", Value: batch.TotalAmountMinor})

	batch.Status = ledger.BatchSubmitted
	batch.ExternalTransferRef = result.Ref
	batch.SubmittedAt = &submittedAt
	return batch, nil
}

// Reconcile applies a processor callback for a transfer. Paid settles the
// batch and its commissions; Failed reverts every commission to Pending.
// Replayed callbacks for a state the batch already reached are no-ops.
func (e *Engine) Reconcile(ctx context.Context, transferRef string, status TransferStatus, at time.Time) error {
	batch, err := e.storage.GetBatchByTransferRef(ctx, transferRef)
	if err != nil {
		if errors.Is(err, ledger.ErrBatchNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownTransfer, transferRef)
		}
		return err
	}

	switch status {
	case TransferPaid:
		if batch.Status == ledger.BatchSettled {
			return nil
		}
		if batch.Status == ledger.BatchFailed {
			return fmt.Errorf("%w: paid callback for failed batch %s", ledger.ErrBatchStateConflict, batch.PayoutID)
		}
		if err := e.storage.SettleBatch(ctx, batch.PayoutID, at.UTC()); err != nil {
			return fmt.Errorf("payout: settle batch: %w", err)
		}
		e.metrics.RecordPayoutBatch(string(ledger.BatchSettled), batch.TotalAmountMinor)
		e.logger.Info("payout batch settled",
			ledger.Field{Key: "payout_id", Value: batch.PayoutID},
			ledger.Field{Key: "transfer_ref", Value: transferRef})
		return nil
	case TransferFailed:
		if batch.Status == ledger.BatchFailed {
			return nil
		}
		if batch.Status == ledger.BatchSettled {
			return fmt.Errorf("%w: failed callback for settled batch %s", ledger.ErrBatchStateConflict, batch.PayoutID)
		}
		return e.failBatch(ctx, batch)
	default:
		// Still in flight at the processor; nothing to record yet.
		return nil
	}
}

// SweepStale polls the processor for every batch that has sat in
// Submitted past the stale window and reconciles what it finds. Poll
// errors are logged per batch and do not stop the sweep.
func (e *Engine) SweepStale(ctx context.Context) error {
	cutoff := e.now().UTC().Add(-e.staleAfter)
	stale, err := e.storage.ListStaleSubmitted(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("payout: list stale batches: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.sweepConcurrency)
	for _, batch := range stale {
		batch := batch
		g.Go(func() error {
			if err := e.sweepBatch(ctx, batch); err != nil {
				e.logger.Error("stale batch poll failed",
					ledger.Field{Key: "payout_id", Value: batch.PayoutID},
					ledger.Field{Key: "error", Value: err.Error()})
			}
			return nil
		})
	}
	return g.Wait()
}

func (e *Engine) sweepBatch(ctx context.Context, batch *ledger.PayoutBatch) error {
	aff, err := e.storage.GetAffiliate(ctx, batch.AffiliateID)
	if err != nil {
		return fmt.Errorf("load affiliate: %w", err)
	}

	start := e.now()
	result, err := e.client.GetTransfer(ctx, aff.PayoutAccountRef, batch.ExternalTransferRef)
	e.metrics.RecordProcessorCallDuration("get_transfer", time.Since(start))
	if err != nil {
		e.metrics.RecordProcessorCall("get_transfer", "error")
		return fmt.Errorf("fetch transfer: %w", err)
	}
	e.metrics.RecordProcessorCall("get_transfer", "ok")

	return e.Reconcile(ctx, batch.ExternalTransferRef, result.Status, e.now().UTC())
}

func (e *Engine) failBatch(ctx context.Context, batch *ledger.PayoutBatch) error {
	if err := e.storage.FailBatch(ctx, batch.PayoutID); err != nil {
		return fmt.Errorf("payout: fail batch: %w", err)
	}
	e.metrics.RecordPayoutBatch(string(ledger.BatchFailed), batch.TotalAmountMinor)
	e.logger.Warn("payout batch failed, commissions reverted to pending",
		ledger.Field{Key: "payout_id", Value: batch.PayoutID},
		ledger.Field{Key: "total_minor_units", Value: batch.TotalAmountMinor})
	return nil
}

func (e *Engine) timedAccount(ctx context.Context, accountRef string) (*Account, error) {
	start := e.now()
	acct, err := e.client.GetAccount(ctx, accountRef)
	e.metrics.RecordProcessorCallDuration("get_account", time.Since(start))
	if err != nil {
		e.metrics.RecordProcessorCall("get_account", "error")
		return nil, err
	}
	e.metrics.RecordProcessorCall("get_account", "ok")
	return acct, nil
}

func (e *Engine) timedTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	start := e.now()
	result, err := e.client.CreateTransfer(ctx, req)
	e.metrics.RecordProcessorCallDuration("create_transfer", time.Since(start))
	if err != nil {
		e.metrics.RecordProcessorCall("create_transfer", "error")
		return nil, err
	}
	e.metrics.RecordProcessorCall("create_transfer", "ok")
	return result, nil
}
