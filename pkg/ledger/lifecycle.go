package ledger

// StateForEvent maps an event type onto the lifecycle state it implies,
// starting from prev (empty prev means the subscription is new). The
// recency rule (stale events never regress state) is the storage
// adapter's job; this function only encodes the transition table:
//
//	Active       -> Canceled | Expired | BillingIssue
//	BillingIssue -> Active (on Renewal) | Canceled | Expired
//	Canceled     |
//	Expired      terminal for commission purposes
//
// The bool result reports whether the event changes lifecycle state at
// all; Test and NonRenewingPurchase events do not.
func StateForEvent(prev LifecycleState, t EventType) (LifecycleState, bool) {
	switch t {
	case EventInitialPurchase:
		return StateActive, true
	case EventRenewal:
		// A successful charge resolves a billing issue and refreshes an
		// active subscription. It does not resurrect a canceled or
		// expired one; re-subscription arrives as a fresh
		// InitialPurchase with a new original transaction id.
		switch prev {
		case StateCanceled, StateExpired:
			return prev, false
		default:
			return StateActive, true
		}
	case EventCancellation:
		return StateCanceled, true
	case EventExpiration:
		return StateExpired, true
	case EventBillingIssue:
		switch prev {
		case StateCanceled, StateExpired:
			return prev, false
		default:
			return StateBillingIssue, true
		}
	default:
		return prev, false
	}
}
