package ledger

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Calculator turns a canonical event into a commission candidate.
// Pure: it never touches storage; the processor feeds it the attribution
// and affiliate lookups it needs.
type Calculator struct{}

// Calculate applies the commission rules:
//
//   - no attribution: no commission (nil, nil)
//   - InitialPurchase: commission at the affiliate's current rate
//   - Renewal: commission only while the tracked state is Active
//   - Cancellation / Expiration / BillingIssue: bookkeeping only
//   - NonRenewingPurchase / Test: never a commission
//
// A missing rate on the affiliate record is fatal for the event
// (ErrRateMissing) rather than silently defaulted: a defaulted rate would
// corrupt the ledger.
func (Calculator) Calculate(
	ev *SubscriptionEvent, ref *ReferredUser, aff *Affiliate, state LifecycleState, now time.Time,
) (*Commission, error) {
	if ref == nil {
		return nil, nil
	}

	var period CommissionPeriod
	switch ev.Type {
	case EventInitialPurchase:
		period = PeriodInitial
	case EventRenewal:
		if state != StateActive {
			// The referred user has left; stop crediting.
			return nil, nil
		}
		period = PeriodRenewal
	default:
		return nil, nil
	}

	if aff == nil {
		return nil, fmt.Errorf("%w: attributed code %q", ErrAffiliateNotFound, ref.ReferralCode)
	}
	if aff.RatePercent <= 0 {
		return nil, fmt.Errorf("%w: affiliate %s", ErrRateMissing, aff.ID)
	}

	return &Commission{
		ID:                  uuid.NewString(),
		AffiliateID:         aff.ID,
		EndUserID:           ev.EndUserID,
		SourceTransactionID: ev.TransactionID,
		SourceEventType:     ev.Type,
		AmountMinorUnits:    roundHalfUp(float64(ev.PriceMinorUnits) * aff.RatePercent / 100),
		Currency:            ev.Currency,
		RatePercentApplied:  aff.RatePercent,
		Period:              period,
		Status:              CommissionPending,
		CreatedAt:           now.UTC(),
	}, nil
}

// roundHalfUp rounds to the nearest minor unit, ties away from zero.
func roundHalfUp(x float64) int64 {
	return int64(math.Floor(x + 0.5))
}
