package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	SettlementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatepass_settlements_total",
			Help: "Settlement invocations by outcome",
		},
		[]string{"result"},
	)

	SettlementDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gatepass_settlement_seconds",
			Help:    "Duration of settlement invocations",
			Buckets: prometheus.DefBuckets,
		},
	)

	TicketsIssued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gatepass_tickets_issued_total",
			Help: "Tickets created by settlement",
		},
	)

	WebhookRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gatepass_webhook_rejected_total",
			Help: "Webhook deliveries rejected for bad signatures",
		},
	)

	NotifyFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gatepass_notify_failures_total",
			Help: "Notification handoffs that failed (non-fatal)",
		},
	)

	RateLimitExceeded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gatepass_rate_limit_exceeded_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)

func InitMetrics() {
	prometheus.MustRegister(SettlementsTotal, SettlementDuration, TicketsIssued,
		WebhookRejected, NotifyFailures, RateLimitExceeded)
}
