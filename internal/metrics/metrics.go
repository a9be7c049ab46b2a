// Package metrics registers the service's Prometheus collectors on the
// default registry and exposes helpers to record business events.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storefront_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route", "status"},
	)

	checkoutOrders = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_checkout_orders_total",
			Help: "Order submissions by outcome",
		},
		[]string{"result"},
	)

	webhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_webhook_events_total",
			Help: "Payment webhook deliveries by event and outcome",
		},
		[]string{"event", "result"},
	)

	shipments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_shipments_total",
			Help: "Shipment creation attempts by outcome",
		},
		[]string{"result"},
	)

	cartMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_cart_mutations_total",
			Help: "Persisted cart mutations by operation",
		},
		[]string{"op"},
	)

	rateLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_shipping_rate_lookups_total",
			Help: "Shipping rate lookups by outcome",
		},
		[]string{"result"},
	)
)

func result(success bool) string {
	if success {
		return ResultSuccess
	}
	return ResultError
}

// RecordCheckout counts an order submission. Validation rejections use
// result "invalid".
func RecordCheckout(res string) {
	checkoutOrders.WithLabelValues(res).Inc()
}

// RecordWebhook counts a webhook delivery by event name and outcome.
func RecordWebhook(event, outcome string) {
	if event == "" {
		event = "unknown"
	}
	webhookEvents.WithLabelValues(event, outcome).Inc()
}

// RecordShipment counts a shipment creation attempt.
func RecordShipment(success bool) {
	shipments.WithLabelValues(result(success)).Inc()
}

// RecordCartMutation counts a persisted cart change.
func RecordCartMutation(op string) {
	cartMutations.WithLabelValues(op).Inc()
}

// RecordRateLookup counts a shipping rate lookup. res is "success",
// "empty" or "error".
func RecordRateLookup(res string) {
	rateLookups.WithLabelValues(res).Inc()
}
