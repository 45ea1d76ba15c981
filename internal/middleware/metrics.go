package middleware

import (
	"net/http"
	"strconv"
	"time"

	"hive-auth/internal/metrics"
)

// Metrics records request latency labelled by chi route pattern, so ids in
// paths do not explode label cardinality.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			wrapped := wrapWriter(w)

			next.ServeHTTP(wrapped, r)

			route := routePattern(r)
			if route == "" {
				route = "unmatched"
			}
			m.RequestDuration.
				WithLabelValues(r.Method, route, strconv.Itoa(wrapped.status)).
				Observe(time.Since(started).Seconds())
		})
	}
}
