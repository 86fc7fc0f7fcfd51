package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookRequestsTotal counts processor webhook requests by event type and HTTP status.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inspecto",
		Subsystem: "billing",
		Name:      "webhook_requests_total",
		Help:      "Total processor webhook requests by event type and HTTP status.",
	}, []string{"event_type", "status"})

	// WebhookDuration tracks webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "inspecto",
		Subsystem: "billing",
		Name:      "webhook_duration_seconds",
		Help:      "Processor webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	// CheckoutTotal counts checkout initiations by outcome.
	CheckoutTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inspecto",
		Subsystem: "billing",
		Name:      "checkout_total",
		Help:      "Checkout session initiations by outcome.",
	}, []string{"outcome"})

	// GateRedirectsTotal counts route gate redirects by destination.
	GateRedirectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inspecto",
		Subsystem: "billing",
		Name:      "gate_redirects_total",
		Help:      "Route gate redirects by destination path.",
	}, []string{"destination"})
)
