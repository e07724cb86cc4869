package ledger

import (
	"errors"
	"testing"
	"time"
)

func calcEvent(t EventType, price int64) *SubscriptionEvent {
	return &SubscriptionEvent{
		Type:                  t,
		EndUserID:             "user_1",
		TransactionID:         "txn_1",
		OriginalTransactionID: "txn_1",
		PriceMinorUnits:       price,
		Currency:              "USD",
		OccurredAt:            time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestCalculateInitialPurchase(t *testing.T) {
	ref := &ReferredUser{EndUserID: "user_1", ReferralCode: "janefit"}
	aff := &Affiliate{ID: "aff_1", ReferralCode: "janefit", RatePercent: 30}

	c, err := Calculator{}.Calculate(calcEvent(EventInitialPurchase, 999), ref, aff, StateActive, time.Now())
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	if c == nil {
		t.Fatal("expected a commission")
	}
	if c.AmountMinorUnits != 300 {
		t.Errorf("expected 300 minor units (999 at 30%%, half-up), got %d", c.AmountMinorUnits)
	}
	if c.Period != PeriodInitial {
		t.Errorf("expected initial period, got %s", c.Period)
	}
	if c.Status != CommissionPending {
		t.Errorf("expected pending status, got %s", c.Status)
	}
	if c.RatePercentApplied != 30 {
		t.Errorf("expected captured rate 30, got %v", c.RatePercentApplied)
	}
}

func TestCalculateRounding(t *testing.T) {
	tests := []struct {
		price int64
		rate  float64
		want  int64
	}{
		{999, 30, 300},   // 299.7 rounds up
		{1000, 30, 300},  // exact
		{999, 25, 250},   // 249.75 rounds up
		{998, 25, 250},   // 249.5 tie goes up
		{101, 30, 30},    // 30.3 rounds down
		{1, 30, 0},       // 0.3 rounds down to zero
		{4999, 15, 750},  // 749.85 rounds up
		{12990, 20, 2598},
	}

	for _, tt := range tests {
		ref := &ReferredUser{EndUserID: "user_1", ReferralCode: "c"}
		aff := &Affiliate{ID: "aff_1", ReferralCode: "c", RatePercent: tt.rate}
		c, err := Calculator{}.Calculate(calcEvent(EventInitialPurchase, tt.price), ref, aff, StateActive, time.Now())
		if err != nil {
			t.Fatalf("Calculate(%d, %v%%) failed: %v", tt.price, tt.rate, err)
		}
		if c.AmountMinorUnits != tt.want {
			t.Errorf("Calculate(%d, %v%%) = %d, want %d", tt.price, tt.rate, c.AmountMinorUnits, tt.want)
		}
	}
}

func TestCalculateRenewalRequiresActive(t *testing.T) {
	ref := &ReferredUser{EndUserID: "user_1", ReferralCode: "janefit"}
	aff := &Affiliate{ID: "aff_1", ReferralCode: "janefit", RatePercent: 30}

	for _, state := range []LifecycleState{StateCanceled, StateExpired, StateBillingIssue} {
		c, err := Calculator{}.Calculate(calcEvent(EventRenewal, 999), ref, aff, state, time.Now())
		if err != nil {
			t.Fatalf("Calculate in state %s failed: %v", state, err)
		}
		if c != nil {
			t.Errorf("expected no commission for renewal in state %s", state)
		}
	}

	c, err := Calculator{}.Calculate(calcEvent(EventRenewal, 999), ref, aff, StateActive, time.Now())
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	if c == nil || c.Period != PeriodRenewal {
		t.Fatalf("expected a renewal commission, got %+v", c)
	}
}

func TestCalculateNoAttribution(t *testing.T) {
	c, err := Calculator{}.Calculate(calcEvent(EventInitialPurchase, 999), nil, nil, StateActive, time.Now())
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	if c != nil {
		t.Error("expected no commission without attribution")
	}
}

func TestCalculateNonCommissionEvents(t *testing.T) {
	ref := &ReferredUser{EndUserID: "user_1", ReferralCode: "janefit"}
	aff := &Affiliate{ID: "aff_1", ReferralCode: "janefit", RatePercent: 30}

	for _, et := range []EventType{EventCancellation, EventExpiration, EventBillingIssue, EventNonRenewingPurchase, EventTest} {
		c, err := Calculator{}.Calculate(calcEvent(et, 999), ref, aff, StateActive, time.Now())
		if err != nil {
			t.Fatalf("Calculate(%s) failed: %v", et, err)
		}
		if c != nil {
			t.Errorf("expected no commission for %s", et)
		}
	}
}

func TestCalculateMissingAffiliate(t *testing.T) {
	ref := &ReferredUser{EndUserID: "user_1", ReferralCode: "gone"}

	_, err := Calculator{}.Calculate(calcEvent(EventInitialPurchase, 999), ref, nil, StateActive, time.Now())
	if !errors.Is(err, ErrAffiliateNotFound) {
		t.Errorf("expected ErrAffiliateNotFound, got %v", err)
	}
}

func TestCalculateMissingRate(t *testing.T) {
	ref := &ReferredUser{EndUserID: "user_1", ReferralCode: "janefit"}
	aff := &Affiliate{ID: "aff_1", ReferralCode: "janefit"}

	_, err := Calculator{}.Calculate(calcEvent(EventInitialPurchase, 999), ref, aff, StateActive, time.Now())
	if !errors.Is(err, ErrRateMissing) {
		t.Errorf("expected ErrRateMissing, got %v", err)
	}
}
