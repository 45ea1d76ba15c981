package middleware

import (
	"log/slog"
	"net/http"

	"hive-auth/internal/cookie"
)

// CSRF enforces the double-submit check on state-changing methods and hands
// out a cookie to any client that does not have one yet.
func CSRF(policy cookie.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if policy.CSRFFrom(r) == "" {
				if _, err := policy.IssueCSRF(w); err != nil {
					slog.Error("csrf.issue.fail", "error", err)
				}
			}

			if mutating(r.Method) && !policy.ValidCSRF(r) {
				writeError(w, http.StatusForbidden, "CSRF_INVALID", "missing or mismatched CSRF token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
