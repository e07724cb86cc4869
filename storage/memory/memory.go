// Package memory provides an in-memory implementation of the
// ledger.Storage interface. Primarily intended for testing and
// development; reservations and ledger rows do not survive a restart, so
// production deployments use the postgres adapter.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fitreach/commissionledger/pkg/ledger"
)

// Storage implements ledger.Storage using in-memory maps
type Storage struct {
	mu sync.RWMutex

	reservations map[string]struct{}
	lifecycles   map[string]*ledger.LifecycleRecord
	attributions map[string]*ledger.ReferredUser
	affiliates   map[string]*ledger.Affiliate
	codeIndex    map[string]string // normalized referral code -> affiliate id
	commissions  map[string]*ledger.Commission
	eventIndex   map[string]string // txn id + event type -> non-void commission id
	batches      map[string]*ledger.PayoutBatch
	transferRefs map[string]string // external transfer ref -> payout id
}

// New creates a new in-memory storage adapter
func New() *Storage {
	return &Storage{
		reservations: make(map[string]struct{}),
		lifecycles:   make(map[string]*ledger.LifecycleRecord),
		attributions: make(map[string]*ledger.ReferredUser),
		affiliates:   make(map[string]*ledger.Affiliate),
		codeIndex:    make(map[string]string),
		commissions:  make(map[string]*ledger.Commission),
		eventIndex:   make(map[string]string),
		batches:      make(map[string]*ledger.PayoutBatch),
		transferRefs: make(map[string]string),
	}
}

// ReserveEvent implements ledger.Storage
func (s *Storage) ReserveEvent(ctx context.Context, key ledger.EventKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key.String()
	if _, ok := s.reservations[k]; ok {
		return false, nil
	}
	s.reservations[k] = struct{}{}
	return true, nil
}

// ReleaseEvent implements ledger.Storage
func (s *Storage) ReleaseEvent(ctx context.Context, key ledger.EventKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.reservations, key.String())
	return nil
}

// ApplyLifecycle implements ledger.Storage
func (s *Storage) ApplyLifecycle(ctx context.Context, rec *ledger.LifecycleRecord) (*ledger.LifecycleRecord, error) {
	if rec == nil || rec.OriginalTransactionID == "" {
		return nil, fmt.Errorf("invalid lifecycle record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.lifecycles[rec.OriginalTransactionID]; ok {
		if rec.LastEventAt.Before(existing.LastEventAt) {
			cp := *existing
			return &cp, nil
		}
	}

	cp := *rec
	s.lifecycles[rec.OriginalTransactionID] = &cp
	out := cp
	return &out, nil
}

// GetLifecycle implements ledger.Storage
func (s *Storage) GetLifecycle(ctx context.Context, originalTransactionID string) (*ledger.LifecycleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.lifecycles[originalTransactionID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

// GetAttribution implements ledger.Storage
func (s *Storage) GetAttribution(ctx context.Context, endUserID string) (*ledger.ReferredUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, ok := s.attributions[endUserID]
	if !ok {
		return nil, nil
	}
	cp := *ref
	return &cp, nil
}

// SetAttribution implements ledger.Storage
func (s *Storage) SetAttribution(ctx context.Context, ref *ledger.ReferredUser) error {
	if ref == nil || ref.EndUserID == "" {
		return fmt.Errorf("invalid attribution")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.attributions[ref.EndUserID]; ok {
		return ledger.ErrAttributionExists
	}
	cp := *ref
	cp.ReferralCode = ledger.NormalizeReferralCode(cp.ReferralCode)
	s.attributions[ref.EndUserID] = &cp
	return nil
}

// GetAffiliate implements ledger.Storage
func (s *Storage) GetAffiliate(ctx context.Context, affiliateID string) (*ledger.Affiliate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	aff, ok := s.affiliates[affiliateID]
	if !ok {
		return nil, ledger.ErrAffiliateNotFound
	}
	cp := *aff
	return &cp, nil
}

// GetAffiliateByCode implements ledger.Storage
func (s *Storage) GetAffiliateByCode(ctx context.Context, referralCode string) (*ledger.Affiliate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.codeIndex[ledger.NormalizeReferralCode(referralCode)]
	if !ok {
		return nil, ledger.ErrAffiliateNotFound
	}
	cp := *s.affiliates[id]
	return &cp, nil
}

// PutAffiliate implements ledger.Storage
func (s *Storage) PutAffiliate(ctx context.Context, aff *ledger.Affiliate) error {
	if aff == nil || aff.ID == "" || aff.ReferralCode == "" {
		return fmt.Errorf("invalid affiliate")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	code := ledger.NormalizeReferralCode(aff.ReferralCode)
	if owner, ok := s.codeIndex[code]; ok && owner != aff.ID {
		return ledger.ErrReferralCodeTaken
	}
	if existing, ok := s.affiliates[aff.ID]; ok {
		oldCode := ledger.NormalizeReferralCode(existing.ReferralCode)
		if oldCode != code {
			delete(s.codeIndex, oldCode)
		}
	}

	cp := *aff
	cp.ReferralCode = code
	s.affiliates[aff.ID] = &cp
	s.codeIndex[code] = aff.ID
	return nil
}

// InsertCommission implements ledger.Storage
func (s *Storage) InsertCommission(ctx context.Context, c *ledger.Commission) error {
	if c == nil || c.ID == "" || c.SourceTransactionID == "" {
		return fmt.Errorf("invalid commission")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := eventIndexKey(c.SourceTransactionID, c.SourceEventType)
	if existingID, ok := s.eventIndex[key]; ok {
		if s.commissions[existingID].Status != ledger.CommissionVoid {
			return ledger.ErrCommissionExists
		}
	}

	cp := *c
	if cp.Status == "" {
		cp.Status = ledger.CommissionPending
	}
	s.commissions[c.ID] = &cp
	if cp.Status != ledger.CommissionVoid {
		s.eventIndex[key] = c.ID
	}
	return nil
}

// GetCommission implements ledger.Storage
func (s *Storage) GetCommission(ctx context.Context, commissionID string) (*ledger.Commission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.commissions[commissionID]
	if !ok {
		return nil, ledger.ErrCommissionNotFound
	}
	cp := *c
	return &cp, nil
}

// ListCommissions implements ledger.Storage
func (s *Storage) ListCommissions(ctx context.Context, affiliateID string, status ledger.CommissionStatus) ([]*ledger.Commission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*ledger.Commission
	for _, c := range s.commissions {
		if c.AffiliateID == affiliateID && c.Status == status {
			cp := *c
			out = append(out, &cp)
		}
	}
	sortByCreatedAt(out)
	return out, nil
}

// CreateBatchFromPending implements ledger.Storage
func (s *Storage) CreateBatchFromPending(ctx context.Context, b *ledger.PayoutBatch) ([]*ledger.Commission, error) {
	if b == nil || b.PayoutID == "" {
		return nil, fmt.Errorf("invalid payout batch")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.batches[b.PayoutID]; ok {
		return nil, fmt.Errorf("batch %s already exists", b.PayoutID)
	}

	var pending []*ledger.Commission
	for _, c := range s.commissions {
		if c.AffiliateID == b.AffiliateID && c.Status == ledger.CommissionPending {
			pending = append(pending, c)
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}
	sortByCreatedAt(pending)

	// Validate before mutating anything so a refused build leaves the
	// pending rows untouched.
	for _, c := range pending[1:] {
		if c.Currency != pending[0].Currency {
			return nil, fmt.Errorf("%w: %s and %s", ledger.ErrMixedCurrency, pending[0].Currency, c.Currency)
		}
	}

	b.CommissionIDs = nil
	b.TotalAmountMinor = 0
	b.Currency = pending[0].Currency
	var out []*ledger.Commission
	for _, c := range pending {
		c.Status = ledger.CommissionClaimed
		c.PayoutID = b.PayoutID
		b.CommissionIDs = append(b.CommissionIDs, c.ID)
		b.TotalAmountMinor += c.AmountMinorUnits
		cp := *c
		out = append(out, &cp)
	}

	cp := copyBatch(b)
	if cp.Status == "" {
		cp.Status = ledger.BatchCreated
	}
	s.batches[b.PayoutID] = cp
	return out, nil
}

// GetBatch implements ledger.Storage
func (s *Storage) GetBatch(ctx context.Context, payoutID string) (*ledger.PayoutBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.batches[payoutID]
	if !ok {
		return nil, ledger.ErrBatchNotFound
	}
	return copyBatch(b), nil
}

// GetBatchByTransferRef implements ledger.Storage
func (s *Storage) GetBatchByTransferRef(ctx context.Context, transferRef string) (*ledger.PayoutBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payoutID, ok := s.transferRefs[transferRef]
	if !ok {
		return nil, ledger.ErrBatchNotFound
	}
	return copyBatch(s.batches[payoutID]), nil
}

// MarkBatchSubmitted implements ledger.Storage
func (s *Storage) MarkBatchSubmitted(ctx context.Context, payoutID, transferRef string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[payoutID]
	if !ok {
		return ledger.ErrBatchNotFound
	}
	switch b.Status {
	case ledger.BatchSubmitted:
		if b.ExternalTransferRef == transferRef {
			return nil
		}
		return fmt.Errorf("%w: batch %s already submitted as %s", ledger.ErrBatchStateConflict, payoutID, b.ExternalTransferRef)
	case ledger.BatchCreated:
	default:
		return fmt.Errorf("%w: batch %s is %s", ledger.ErrBatchStateConflict, payoutID, b.Status)
	}

	b.Status = ledger.BatchSubmitted
	b.ExternalTransferRef = transferRef
	submittedAt := at
	b.SubmittedAt = &submittedAt
	s.transferRefs[transferRef] = payoutID
	return nil
}

// SettleBatch implements ledger.Storage
func (s *Storage) SettleBatch(ctx context.Context, payoutID string, paidAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[payoutID]
	if !ok {
		return ledger.ErrBatchNotFound
	}
	switch b.Status {
	case ledger.BatchSettled:
		return nil
	case ledger.BatchSubmitted:
	default:
		return fmt.Errorf("%w: batch %s is %s", ledger.ErrBatchStateConflict, payoutID, b.Status)
	}

	b.Status = ledger.BatchSettled
	settledAt := paidAt
	b.SettledAt = &settledAt
	for _, id := range b.CommissionIDs {
		if c, ok := s.commissions[id]; ok && c.PayoutID == payoutID && c.Status == ledger.CommissionClaimed {
			c.Status = ledger.CommissionPaid
			t := paidAt
			c.PaidAt = &t
		}
	}
	return nil
}

// FailBatch implements ledger.Storage
func (s *Storage) FailBatch(ctx context.Context, payoutID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[payoutID]
	if !ok {
		return ledger.ErrBatchNotFound
	}
	switch b.Status {
	case ledger.BatchFailed:
		return nil
	case ledger.BatchSettled:
		return fmt.Errorf("%w: batch %s is settled", ledger.ErrBatchStateConflict, payoutID)
	}

	b.Status = ledger.BatchFailed
	for _, id := range b.CommissionIDs {
		if c, ok := s.commissions[id]; ok && c.PayoutID == payoutID && c.Status == ledger.CommissionClaimed {
			c.Status = ledger.CommissionPending
			c.PayoutID = ""
		}
	}
	return nil
}

// ListStaleSubmitted implements ledger.Storage
func (s *Storage) ListStaleSubmitted(ctx context.Context, cutoff time.Time) ([]*ledger.PayoutBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*ledger.PayoutBatch
	for _, b := range s.batches {
		if b.Status == ledger.BatchSubmitted && b.SubmittedAt != nil && b.SubmittedAt.Before(cutoff) {
			out = append(out, copyBatch(b))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.Before(*out[j].SubmittedAt)
	})
	return out, nil
}

func eventIndexKey(transactionID string, eventType ledger.EventType) string {
	return transactionID + ":" + string(eventType)
}

func sortByCreatedAt(commissions []*ledger.Commission) {
	sort.Slice(commissions, func(i, j int) bool {
		return commissions[i].CreatedAt.Before(commissions[j].CreatedAt)
	})
}

func copyBatch(b *ledger.PayoutBatch) *ledger.PayoutBatch {
	cp := *b
	cp.CommissionIDs = append([]string(nil), b.CommissionIDs...)
	if b.SubmittedAt != nil {
		t := *b.SubmittedAt
		cp.SubmittedAt = &t
	}
	if b.SettledAt != nil {
		t := *b.SettledAt
		cp.SettledAt = &t
	}
	return &cp
}
