package prommetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fitreach/commissionledger/pkg/ledger"
)

// Metrics implements ledger.Metrics using Prometheus.
type Metrics struct {
	webhookEventsTotal        *prometheus.CounterVec
	webhookErrorsTotal        *prometheus.CounterVec
	webhookProcessingDuration *prometheus.HistogramVec
	commissionsCreatedTotal   *prometheus.CounterVec
	commissionAmountMinor     *prometheus.CounterVec
	constraintViolationsTotal prometheus.Counter
	payoutBatchesTotal        *prometheus.CounterVec
	payoutAmountMinor         *prometheus.CounterVec
	processorCallsTotal       *prometheus.CounterVec
	processorCallDuration     *prometheus.HistogramVec
}

// NewMetrics creates a new Prometheus metrics implementation for the ledger.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		webhookEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "webhook_events_total",
			Help:      "Total number of webhook events received, by outcome.",
		}, []string{"format", "event_type", "outcome"}),

		webhookErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "webhook_errors_total",
			Help:      "Total number of webhook processing errors.",
		}, []string{"format", "error_type"}),

		webhookProcessingDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "webhook_processing_duration_seconds",
			Help:      "Duration of webhook processing in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"format", "event_type"}),

		commissionsCreatedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "commissions_created_total",
			Help:      "Total number of commissions written to the ledger.",
		}, []string{"period"}),

		commissionAmountMinor: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "commission_amount_minor_units_total",
			Help:      "Sum of commission amounts in currency minor units.",
		}, []string{"period"}),

		constraintViolationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "constraint_violations_total",
			Help:      "Uniqueness constraint rejections; any increment means the idempotency guard was bypassed.",
		}),

		payoutBatchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "payout_batches_total",
			Help:      "Total number of payout batch transitions, by status.",
		}, []string{"status"}),

		payoutAmountMinor: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "payout_amount_minor_units_total",
			Help:      "Sum of payout batch totals in currency minor units, by status.",
		}, []string{"status"}),

		processorCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "processor_calls_total",
			Help:      "Total number of API calls to the payment processor.",
		}, []string{"endpoint", "status"}),

		processorCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "processor_call_duration_seconds",
			Help:      "Duration of payment processor API calls in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
}

func (m *Metrics) RecordWebhookEvent(format, eventType, outcome string) {
	m.webhookEventsTotal.WithLabelValues(format, eventType, outcome).Inc()
}

func (m *Metrics) RecordWebhookError(format, errorType string) {
	m.webhookErrorsTotal.WithLabelValues(format, errorType).Inc()
}

func (m *Metrics) RecordWebhookProcessingDuration(format, eventType string, duration time.Duration) {
	m.webhookProcessingDuration.WithLabelValues(format, eventType).Observe(duration.Seconds())
}

func (m *Metrics) RecordCommissionCreated(period string, amountMinorUnits int64) {
	m.commissionsCreatedTotal.WithLabelValues(period).Inc()
	m.commissionAmountMinor.WithLabelValues(period).Add(float64(amountMinorUnits))
}

func (m *Metrics) RecordConstraintViolation() {
	m.constraintViolationsTotal.Inc()
}

func (m *Metrics) RecordPayoutBatch(status string, totalAmountMinorUnits int64) {
	m.payoutBatchesTotal.WithLabelValues(status).Inc()
	m.payoutAmountMinor.WithLabelValues(status).Add(float64(totalAmountMinorUnits))
}

func (m *Metrics) RecordProcessorCall(endpoint, status string) {
	m.processorCallsTotal.WithLabelValues(endpoint, status).Inc()
}

func (m *Metrics) RecordProcessorCallDuration(endpoint string, duration time.Duration) {
	m.processorCallDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// DefaultMetrics returns a Metrics implementation using the default Prometheus registerer.
func DefaultMetrics(namespace string) ledger.Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}
