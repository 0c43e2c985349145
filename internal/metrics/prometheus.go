package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks total HTTP requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration tracks HTTP request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	EmailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_emails_total",
			Help: "Notification emails by template and result",
		},
		[]string{"template", "result"},
	)

	SSEConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storefront_admin_sse_connections",
			Help: "Currently registered admin event stream connections",
		},
	)

	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_admin_broadcasts_total",
			Help: "Admin events broadcast by type",
		},
		[]string{"type"},
	)

	PaymentVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_payment_verifications_total",
			Help: "Payment signature verifications by result",
		},
		[]string{"result"},
	)

	PaymentIntentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_payment_intents_total",
			Help: "Payment intents requested from the gateway by provider and result",
		},
		[]string{"provider", "result"},
	)

	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_events_published_total",
			Help: "Domain events handed to kafka by event and delivery result",
		},
		[]string{"event", "result"},
	)

	// GatewayBreakerState tracks the gateway circuit breaker (0=closed, 1=open, 2=half-open)
	GatewayBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storefront_gateway_circuit_breaker_state",
			Help: "Payment gateway circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"provider"},
	)
)
