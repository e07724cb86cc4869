package api

import "time"

// CommissionsResponse lists an affiliate's commissions in one status
type CommissionsResponse struct {
	AffiliateID string           `json:"affiliate_id"`
	Status      string           `json:"status"`
	Commissions []CommissionView `json:"commissions"`
	TotalMinor  int64            `json:"total_minor_units"`
}

// CommissionView is the external shape of one commission
type CommissionView struct {
	ID                  string     `json:"id"`
	SourceTransactionID string     `json:"source_transaction_id"`
	SourceEventType     string     `json:"source_event_type"`
	AmountMinorUnits    int64      `json:"amount_minor_units"`
	Currency            string     `json:"currency"`
	RatePercentApplied  float64    `json:"rate_percent_applied"`
	Period              string     `json:"period"`
	CreatedAt           time.Time  `json:"created_at"`
	PaidAt              *time.Time `json:"paid_at,omitempty"`
}

// BalanceResponse summarizes what an affiliate is owed and has been paid
type BalanceResponse struct {
	AffiliateID    string `json:"affiliate_id"`
	PendingMinor   int64  `json:"pending_minor_units"`
	InFlightMinor  int64  `json:"in_flight_minor_units"` // claimed by an unsettled batch
	LifetimePaid   int64  `json:"lifetime_paid_minor_units"`
	PendingCount   int    `json:"pending_count"`
	PaidCount      int    `json:"paid_count"`
	HasPayoutSetup bool   `json:"has_payout_setup"`
}

// AttributionRequest registers a referred end user under a referral code
type AttributionRequest struct {
	EndUserID    string `json:"end_user_id"`
	ReferralCode string `json:"referral_code"`
}
