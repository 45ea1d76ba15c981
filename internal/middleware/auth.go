package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"hive-auth/internal/model"
	"hive-auth/pkg/apierror"
)

type accessValidator interface {
	ValidateAccessToken(ctx context.Context, token string) (*model.AuthClaims, error)
	IsSystemAdmin(ctx context.Context, userID string) (bool, error)
}

type contextKey string

const authClaimsContextKey contextKey = "auth_claims"

type AuthMiddleware struct {
	validator accessValidator
}

func NewAuthMiddleware(validator accessValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid authorization header")
			return
		}

		claims, err := m.validator.ValidateAccessToken(r.Context(), token)
		if err != nil {
			var apiErr *apierror.APIError
			if !errors.As(err, &apiErr) {
				slog.Error("auth.validate.fail", "error", err)
				writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "unexpected server error")
				return
			}
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", apiErr.Message)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// OptionalAuth attaches claims when a valid bearer token is present and
// otherwise lets the request through untouched. Logout uses it.
func (m *AuthMiddleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token, ok := bearerToken(r); ok {
			if claims, err := m.validator.ValidateAccessToken(r.Context(), token); err == nil {
				r = r.WithContext(WithClaims(r.Context(), claims))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (m *AuthMiddleware) RequireSystemAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
			return
		}

		admin, err := m.validator.IsSystemAdmin(r.Context(), claims.UserID)
		if err != nil {
			slog.Error("auth.admin_check.fail", "user_id", claims.UserID, "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "unexpected server error")
			return
		}
		if !admin {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func WithClaims(ctx context.Context, claims *model.AuthClaims) context.Context {
	return context.WithValue(ctx, authClaimsContextKey, claims)
}

func ClaimsFromContext(ctx context.Context) (*model.AuthClaims, bool) {
	claims, ok := ctx.Value(authClaimsContextKey).(*model.AuthClaims)
	return claims, ok && claims != nil
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}

	token := strings.TrimSpace(header[7:])
	return token, token != ""
}
