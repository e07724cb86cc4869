package ledger

import "time"

// Metrics defines the interface for tracking ledger operations.
// All methods are optional - callers should gracefully handle nil metrics
// by substituting NoopMetrics.
type Metrics interface {
	// RecordWebhookEvent records a webhook event received from the billing
	// platform.
	// eventType: the canonical event type (e.g. "initial_purchase")
	// outcome: the processing outcome (e.g. "commission_created", "duplicate")
	RecordWebhookEvent(format, eventType, outcome string)

	// RecordWebhookError records a webhook processing error.
	// errorType: e.g. "malformed_payload", "auth_failed", "storage_error"
	RecordWebhookError(format, errorType string)

	// RecordWebhookProcessingDuration records how long a webhook took
	// end to end.
	RecordWebhookProcessingDuration(format, eventType string, duration time.Duration)

	// RecordCommissionCreated records a new commission and its amount in
	// minor units.
	RecordCommissionCreated(period string, amountMinorUnits int64)

	// RecordConstraintViolation records the storage uniqueness invariant
	// firing - a guard bypass, always an anomaly worth alerting on.
	RecordConstraintViolation()

	// RecordPayoutBatch records a payout batch transition.
	// status: "created", "submitted", "settled", "failed"
	RecordPayoutBatch(status string, totalAmountMinorUnits int64)

	// RecordProcessorCall records an API call to the payment processor.
	// endpoint: e.g. "/transfers", "/accounts/{id}"
	// status: "success" or "error"
	RecordProcessorCall(endpoint, status string)

	// RecordProcessorCallDuration records how long a processor call took.
	RecordProcessorCallDuration(endpoint string, duration time.Duration)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordWebhookEvent(_, _, _ string)                            {}
func (n *NoopMetrics) RecordWebhookError(_, _ string)                               {}
func (n *NoopMetrics) RecordWebhookProcessingDuration(_, _ string, _ time.Duration) {}
func (n *NoopMetrics) RecordCommissionCreated(_ string, _ int64)                    {}
func (n *NoopMetrics) RecordConstraintViolation()                                   {}
func (n *NoopMetrics) RecordPayoutBatch(_ string, _ int64)                          {}
func (n *NoopMetrics) RecordProcessorCall(_, _ string)                              {}
func (n *NoopMetrics) RecordProcessorCallDuration(_ string, _ time.Duration)        {}
