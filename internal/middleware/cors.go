package middleware

import (
	"net/http"

	"github.com/rs/cors"

	"hive-auth/internal/cookie"
)

// CORS allows credentialed requests from the configured origins only; a
// wildcard cannot be combined with cookies.
func CORS(origins []string) func(http.Handler) http.Handler {
	handler := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID", cookie.DefaultCSRFHeader},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		MaxAge:           3600,
		AllowCredentials: true,
	})

	return handler.Handler
}
