package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Outcome classifies what processing an event did to the ledger.
// Business no-ops (duplicates, missing attribution, non-commission event
// types) are outcomes, not errors: the webhook transport acknowledges them
// all the same way.
type Outcome string

const (
	// OutcomeCommissionCreated means a new commission row was written
	OutcomeCommissionCreated Outcome = "commission_created"
	// OutcomeDuplicate means the idempotency guard had already seen the event
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeNoAttribution means the end user was never referred
	OutcomeNoAttribution Outcome = "no_attribution"
	// OutcomeNoCommission means the event updated bookkeeping only
	OutcomeNoCommission Outcome = "no_commission"
	// OutcomeTest means a connectivity test event was acknowledged
	OutcomeTest Outcome = "test"
)

// Result reports how an event was processed.
type Result struct {
	Outcome    Outcome
	Commission *Commission
	// State is the lifecycle state in effect after the event, when the
	// event concerned a tracked subscription.
	State LifecycleState
}

// Config configures a Processor.
type Config struct {
	// Storage is the durable ledger backend (required).
	Storage Storage

	// Logger receives structured processing logs. Defaults to NoopLogger.
	Logger Logger

	// Metrics receives processing metrics. Defaults to NoopMetrics.
	Metrics Metrics

	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

// Processor drives a canonical event through the pipeline:
// idempotency guard, lifecycle tracker, calculator, ledger write.
//
// Deliveries of the same webhook are safe to run concurrently: the guard's
// check-and-reserve is the exactly-once boundary, and events for the same
// subscription are serialized on a per-original-transaction mutex while
// different subscriptions proceed in parallel.
type Processor struct {
	storage Storage
	logger  Logger
	metrics Metrics
	calc    Calculator
	now     func() time.Time
	subs    keyedMutex
}

// NewProcessor creates a Processor. Storage is required.
func NewProcessor(cfg Config) (*Processor, error) {
	if cfg.Storage == nil {
		return nil, errors.New("ledger: storage is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = &NoopLogger{}
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = &NoopMetrics{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Processor{
		storage: cfg.Storage,
		logger:  logger,
		metrics: metrics,
		now:     now,
	}, nil
}

// Attribute records a first-touch referral for an end user. The referral
// code must belong to a known affiliate; the first write wins and the
// mapping is immutable afterwards.
func (p *Processor) Attribute(ctx context.Context, endUserID, referralCode string) error {
	code := NormalizeReferralCode(referralCode)
	if endUserID == "" || code == "" {
		return errors.New("ledger: end user id and referral code are required")
	}
	if _, err := p.storage.GetAffiliateByCode(ctx, code); err != nil {
		return fmt.Errorf("attribute %s: %w", endUserID, err)
	}
	err := p.storage.SetAttribution(ctx, &ReferredUser{
		EndUserID:    endUserID,
		ReferralCode: code,
		AttributedAt: p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("attribute %s: %w", endUserID, err)
	}
	return nil
}

// HandleEvent processes one canonical event end to end. It returns a
// Result for every terminal outcome, or an error when storage failed or
// the calculator rejected the event; on those errors the guard
// reservation has been released so the sender's retry can succeed.
func (p *Processor) HandleEvent(ctx context.Context, ev *SubscriptionEvent) (*Result, error) {
	if ev == nil || ev.TransactionID == "" || ev.Type == "" {
		return nil, errors.New("ledger: event requires a transaction id and type")
	}

	// Serialize per subscription: two events for the same original
	// transaction must not interleave, different subscriptions never
	// contend.
	subKey := ev.OriginalTransactionID
	if subKey == "" {
		subKey = ev.TransactionID
	}
	unlock := p.subs.lock(subKey)
	defer unlock()

	key := ev.Key()
	fresh, err := p.storage.ReserveEvent(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("reserve %s: %w", key, err)
	}
	if !fresh {
		p.logger.Debug("duplicate event skipped",
			Field{Key: "transaction_id", Value: ev.TransactionID},
			Field{Key: "event_type", Value: string(ev.Type)})
		return &Result{Outcome: OutcomeDuplicate}, nil
	}

	res, err := p.processReserved(ctx, ev)
	if err != nil {
		// The attempt failed for a reason a retry may fix; free the
		// reservation so the retry is not treated as a duplicate.
		if relErr := p.storage.ReleaseEvent(ctx, key); relErr != nil {
			p.logger.Error("failed to release reservation",
				Field{Key: "key", Value: key.String()},
				Field{Key: "error", Value: relErr.Error()})
		}
		return nil, err
	}
	return res, nil
}

// processReserved runs the post-guard pipeline. Any returned error causes
// the caller to release the reservation; returned Results keep it.
func (p *Processor) processReserved(ctx context.Context, ev *SubscriptionEvent) (*Result, error) {
	if ev.Type == EventTest {
		return &Result{Outcome: OutcomeTest}, nil
	}

	state, err := p.trackLifecycle(ctx, ev)
	if err != nil {
		return nil, err
	}

	ref, err := p.storage.GetAttribution(ctx, ev.EndUserID)
	if err != nil {
		return nil, fmt.Errorf("attribution lookup for %s: %w", ev.EndUserID, err)
	}
	if ref == nil {
		return &Result{Outcome: OutcomeNoAttribution, State: state}, nil
	}

	var aff *Affiliate
	if ev.Type == EventInitialPurchase || ev.Type == EventRenewal {
		aff, err = p.storage.GetAffiliateByCode(ctx, ref.ReferralCode)
		if err != nil && !errors.Is(err, ErrAffiliateNotFound) {
			return nil, fmt.Errorf("affiliate lookup for code %s: %w", ref.ReferralCode, err)
		}
	}

	commission, err := p.calc.Calculate(ev, ref, aff, state, p.now())
	if err != nil {
		return nil, fmt.Errorf("calculate commission for %s: %w", ev.TransactionID, err)
	}
	if commission == nil {
		return &Result{Outcome: OutcomeNoCommission, State: state}, nil
	}

	if err := p.storage.InsertCommission(ctx, commission); err != nil {
		if errors.Is(err, ErrCommissionExists) {
			// The storage constraint is the last line of defense; it
			// firing means the guard was bypassed. Reject the write and
			// keep the reservation - the event is, in fact, processed.
			p.logger.Error("commission uniqueness constraint fired despite guard",
				Field{Key: "transaction_id", Value: ev.TransactionID},
				Field{Key: "event_type", Value: string(ev.Type)})
			p.metrics.RecordConstraintViolation()
			return &Result{Outcome: OutcomeDuplicate, State: state}, nil
		}
		return nil, fmt.Errorf("insert commission for %s: %w", ev.TransactionID, err)
	}

	p.metrics.RecordCommissionCreated(string(commission.Period), commission.AmountMinorUnits)
	p.logger.Info("commission created",
		Field{Key: "commission_id", Value: commission.ID},
		Field{Key: "affiliate_id", Value: commission.AffiliateID},
		Field{Key: "amount_minor", Value: commission.AmountMinorUnits},
		Field{Key: "period", Value: string(commission.Period)})
	return &Result{Outcome: OutcomeCommissionCreated, Commission: commission, State: state}, nil
}

// trackLifecycle applies the event to the subscription state tracker and
// returns the state in effect as of this event.
func (p *Processor) trackLifecycle(ctx context.Context, ev *SubscriptionEvent) (LifecycleState, error) {
	origID := ev.OriginalTransactionID
	if origID == "" {
		origID = ev.TransactionID
	}

	existing, err := p.storage.GetLifecycle(ctx, origID)
	if err != nil {
		return "", fmt.Errorf("lifecycle lookup for %s: %w", origID, err)
	}

	var prev LifecycleState
	if existing != nil {
		prev = existing.State
		if ev.OccurredAt.Before(existing.LastEventAt) {
			// Out-of-order delivery: the event is recorded as seen by the
			// guard but must not regress state.
			return prev, nil
		}
	}

	next, changed := StateForEvent(prev, ev.Type)
	if !changed && existing != nil {
		return prev, nil
	}
	if !changed && existing == nil {
		// Never-seen subscription and an event that implies no state
		// (e.g. a lone NonRenewingPurchase); nothing to track.
		return "", nil
	}

	applied, err := p.storage.ApplyLifecycle(ctx, &LifecycleRecord{
		EndUserID:             ev.EndUserID,
		OriginalTransactionID: origID,
		State:                 next,
		LastEventAt:           ev.OccurredAt,
	})
	if err != nil {
		return "", fmt.Errorf("lifecycle update for %s: %w", origID, err)
	}
	return applied.State, nil
}

// keyedMutex serializes callers that share a key while letting distinct
// keys proceed independently. Entries are reference counted and removed
// when the last holder unlocks.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedMutexEntry
}

type keyedMutexEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.entries == nil {
		k.entries = make(map[string]*keyedMutexEntry)
	}
	e, ok := k.entries[key]
	if !ok {
		e = &keyedMutexEntry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
