package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hive-auth/internal/cookie"
	"hive-auth/internal/model"
	"hive-auth/pkg/apierror"
)

func TestCSRF(t *testing.T) {
	t.Parallel()

	policy := cookie.Policy{}.WithDefaults()
	handler := CSRF(policy)(okHandler())

	t.Run("safe requests pass and receive a cookie", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/auth/csrf", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		require.Equal(t, cookie.DefaultCSRFName, cookies[0].Name)
		require.False(t, cookies[0].HttpOnly)
		require.Equal(t, http.SameSiteStrictMode, cookies[0].SameSite)
	})

	t.Run("mutations need a matching header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.AddCookie(&http.Cookie{Name: cookie.DefaultCSRFName, Value: "abc"})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusForbidden, rec.Code)
		require.Contains(t, rec.Body.String(), "CSRF_INVALID")

		req.Header.Set(cookie.DefaultCSRFHeader, "abd")
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusForbidden, rec.Code)

		req.Header.Set(cookie.DefaultCSRFHeader, "abc")
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Empty(t, rec.Result().Cookies())
	})

	t.Run("mutation without any cookie is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/auth/passkeys/x", nil)
		req.Header.Set(cookie.DefaultCSRFHeader, "abc")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusForbidden, rec.Code)
	})
}

type stubValidator struct {
	claims *model.AuthClaims
	admin  bool
}

func (s stubValidator) ValidateAccessToken(_ context.Context, token string) (*model.AuthClaims, error) {
	if token != "good" {
		return nil, apierror.Unauthorized("invalid or expired token")
	}
	return s.claims, nil
}

func (s stubValidator) IsSystemAdmin(context.Context, string) (bool, error) {
	return s.admin, nil
}

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()

	claims := &model.AuthClaims{UserID: "u1", HiveID: "h1", SessionID: "s1"}
	echoClaims := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := ClaimsFromContext(r.Context())
		if ok {
			_, _ = w.Write([]byte(got.UserID))
		}
		w.WriteHeader(http.StatusOK)
	})

	t.Run("require auth", func(t *testing.T) {
		mw := NewAuthMiddleware(stubValidator{claims: claims})
		handler := mw.RequireAuth(echoClaims)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer bad")
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		req.Header.Set("Authorization", "bearer good")
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "u1", rec.Body.String())
	})

	t.Run("optional auth never blocks", func(t *testing.T) {
		mw := NewAuthMiddleware(stubValidator{claims: claims})
		handler := mw.OptionalAuth(echoClaims)

		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer bad")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Body.String())
	})

	t.Run("system admin gate", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer good")

		mw := NewAuthMiddleware(stubValidator{claims: claims})
		rec := httptest.NewRecorder()
		mw.RequireAuth(mw.RequireSystemAdmin(echoClaims)).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		mw = NewAuthMiddleware(stubValidator{claims: claims, admin: true})
		rec = httptest.NewRecorder()
		mw.RequireAuth(mw.RequireSystemAdmin(echoClaims)).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
