package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransitionsTotal counts lifecycle transitions by operation and outcome.
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "billingcore",
		Subsystem: "subscription",
		Name:      "transitions_total",
		Help:      "Subscription lifecycle transitions by operation and outcome.",
	}, []string{"operation", "outcome"})

	// GatewayCallsTotal counts payment gateway calls by operation and outcome.
	GatewayCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "billingcore",
		Subsystem: "gateway",
		Name:      "calls_total",
		Help:      "Payment gateway calls by operation and outcome.",
	}, []string{"operation", "outcome"})

	// GatewayDuration tracks payment gateway latency.
	GatewayDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "billingcore",
		Subsystem: "gateway",
		Name:      "call_duration_seconds",
		Help:      "Payment gateway call duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	// MoneyMovedTotal sums charged and refunded amounts in minor currency units.
	MoneyMovedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "billingcore",
		Subsystem: "payment",
		Name:      "amount_total",
		Help:      "Charged and refunded amounts in minor currency units.",
	}, []string{"transaction_type", "currency"})

	// PartialFailuresTotal counts sagas that refunded but failed to charge.
	PartialFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "billingcore",
		Subsystem: "payment",
		Name:      "partial_failures_total",
		Help:      "Plan change sagas whose refund succeeded but charge failed.",
	})

	// IdempotentReplaysTotal counts requests answered from the ledger.
	IdempotentReplaysTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "billingcore",
		Subsystem: "payment",
		Name:      "idempotent_replays_total",
		Help:      "Requests answered from recorded payments without calling the gateway.",
	}, []string{"operation"})

	// WebhookDeliveriesTotal counts webhook deliveries by event and outcome.
	WebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "billingcore",
		Subsystem: "webhook",
		Name:      "deliveries_total",
		Help:      "Webhook deliveries by event name and outcome.",
	}, []string{"event_name", "outcome"})

	// WebhookPoisonedTotal counts webhook messages dropped after exhausting retries.
	WebhookPoisonedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "billingcore",
		Subsystem: "webhook",
		Name:      "poisoned_total",
		Help:      "Webhook messages that exhausted their retries.",
	}, []string{"event_name"})
)

const (
	OutcomeSuccess = "success"
	OutcomeNoop    = "noop"
	OutcomeReplay  = "replay"
	OutcomeError   = "error"
)

// Outcome maps an error to the outcome label
func Outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}
