package middleware

import (
	"net/http"
	"strconv"
	"time"

	"storefront-checkout/internal/metrics"
)

// Metrics records request count and latency per route pattern. Requests that
// matched no route share one label value to keep cardinality bounded.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := wrapped(w)

		next.ServeHTTP(rw, r)

		// ServeMux fills in r.Pattern on the request it was handed.
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(statusOf(rw))

		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
	})
}
