//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hive-auth/internal/cookie"
	"hive-auth/internal/model"
)

func TestLoginSetsScopedRefreshCookie(t *testing.T) {
	t.Parallel()

	env := newEnv(t)
	owner := env.newBrowser(t)
	owner.register("owner@example.com", "Home")

	b := env.newBrowser(t)
	resp := b.do(http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    "Owner@Example.com",
		"password": "correct-horse-battery",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	refresh := findCookie(resp, cookie.DefaultRefreshName)
	require.NotNil(t, refresh)
	assert.True(t, refresh.HttpOnly)
	assert.Equal(t, "/api/v1/auth", refresh.Path)
	assert.Equal(t, http.SameSiteStrictMode, refresh.SameSite)
	assert.Positive(t, refresh.MaxAge)

	csrf := findCookie(resp, cookie.DefaultCSRFName)
	require.NotNil(t, csrf)
	assert.False(t, csrf.HttpOnly)

	body := decode[authData](t, resp)
	require.True(t, body.Success)
	assert.NotEmpty(t, body.Data.AccessToken)
	assert.Equal(t, "Home", body.Data.Hive.Name)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	t.Parallel()

	env := newEnv(t)
	env.newBrowser(t).register("owner@example.com", "Home")

	b := env.newBrowser(t)
	resp := b.do(http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    "owner@example.com",
		"password": "wrong-password-123",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Nil(t, findCookie(resp, cookie.DefaultRefreshName))
	require.Equal(t, "INVALID_CREDENTIALS", decode[any](t, resp).Error.Code)
}

func TestRefreshRotatesCookieAndRejectsReplay(t *testing.T) {
	t.Parallel()

	env := newEnv(t)
	b := env.newBrowser(t)
	b.register("owner@example.com", "Home")
	first := b.cookie(cookie.DefaultRefreshName)
	require.NotEmpty(t, first)

	resp := b.do(http.MethodPost, "/api/v1/auth/refresh", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[authData](t, resp)
	require.NotEmpty(t, body.Data.AccessToken)

	second := b.cookie(cookie.DefaultRefreshName)
	require.NotEmpty(t, second)
	require.NotEqual(t, first, second)

	// A second tab presenting the old cookie inside the grace window is
	// refused without killing the session, and the response leaves the
	// cookie alone so a jar shared with the first tab keeps its successor.
	replay := env.newBrowser(t)
	replay.client.Jar.SetCookies(replay.base.JoinPath("/api/v1/auth"), []*http.Cookie{{Name: cookie.DefaultRefreshName, Value: first, Path: "/api/v1/auth"}})
	resp = replay.do(http.MethodPost, "/api/v1/auth/refresh", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Nil(t, findCookie(resp, cookie.DefaultRefreshName))
	require.Equal(t, first, replay.cookie(cookie.DefaultRefreshName))

	resp = b.do(http.MethodPost, "/api/v1/auth/refresh", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRefreshWithoutCookieIsUnauthorized(t *testing.T) {
	t.Parallel()

	env := newEnv(t)
	b := env.newBrowser(t)
	resp := b.do(http.MethodPost, "/api/v1/auth/refresh", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSwitchHiveLeavesRefreshCookie(t *testing.T) {
	t.Parallel()

	env := newEnv(t)
	b := env.newBrowser(t)
	registered := b.register("owner@example.com", "Home")

	ctx := context.Background()
	work := model.Hive{ID: uuid.NewString(), Name: "Work", Type: model.HiveTypeOrganization, Locale: "de", CreatedAt: time.Now()}
	require.NoError(t, env.store.Hives.CreateWithOwner(ctx, work, model.Person{
		ID:          uuid.NewString(),
		HiveID:      work.ID,
		UserID:      registered.User.ID,
		DisplayName: "Owner",
		Role:        model.RoleOrgAdmin,
		CreatedAt:   time.Now(),
	}))

	before := b.cookie(cookie.DefaultRefreshName)
	resp := b.do(http.MethodPost, "/api/v1/auth/switch-hive", map[string]string{"hive_id": work.ID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Nil(t, findCookie(resp, cookie.DefaultRefreshName))
	require.Equal(t, before, b.cookie(cookie.DefaultRefreshName))

	switched := decode[model.SwitchPayload](t, resp)
	require.Equal(t, work.ID, switched.Data.HiveID)
	require.NotEqual(t, registered.AccessToken, switched.Data.AccessToken)

	resp = b.do(http.MethodPost, "/api/v1/auth/refresh", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, work.ID, decode[authData](t, resp).Data.Hive.ID)

	resp = b.do(http.MethodPost, "/api/v1/auth/switch-hive", map[string]string{"hive_id": uuid.NewString()})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLogoutClearsCookieAndIsIdempotent(t *testing.T) {
	t.Parallel()

	env := newEnv(t)
	b := env.newBrowser(t)
	b.register("owner@example.com", "Home")
	csrfBefore := b.cookie(cookie.DefaultCSRFName)

	resp := b.do(http.MethodPost, "/api/v1/auth/logout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cleared := findCookie(resp, cookie.DefaultRefreshName)
	require.NotNil(t, cleared)
	require.Negative(t, cleared.MaxAge)
	require.Empty(t, b.cookie(cookie.DefaultRefreshName))
	require.NotEqual(t, csrfBefore, b.cookie(cookie.DefaultCSRFName))

	resp = b.do(http.MethodPost, "/api/v1/auth/logout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = b.do(http.MethodPost, "/api/v1/auth/refresh", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMutationWithoutCSRFHeaderIsForbidden(t *testing.T) {
	t.Parallel()

	env := newEnv(t)
	b := env.newBrowser(t)
	b.register("owner@example.com", "Home")

	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/api/v1/auth/refresh", http.NoBody)
	require.NoError(t, err)
	req.Header.Set(cookie.DefaultCSRFHeader, "not-the-cookie")
	resp, err := b.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, "CSRF_INVALID", decode[any](t, resp).Error.Code)
}

func TestInvitationRegistration(t *testing.T) {
	t.Parallel()

	env := newEnv(t)
	owner := env.newBrowser(t)
	home := owner.register("parent@example.com", "Home")

	resp := owner.do(http.MethodPost, "/api/v1/auth/invitations", map[string]string{"email": "kid@example.com"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	invite := decode[model.InvitationCreated](t, resp)
	require.Equal(t, model.RoleChild, invite.Data.Role)

	kid := env.newBrowser(t)
	resp = kid.do(http.MethodPost, "/api/v1/auth/register-invite", map[string]string{
		"admin_email":    "kid@example.com",
		"admin_password": "another-long-password",
		"admin_name":     "Kid",
		"invite_token":   invite.Data.Token,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	joined := decode[authData](t, resp)
	require.Equal(t, home.Hive.ID, joined.Data.Hive.ID)

	// Children cannot invite.
	kid.access = joined.Data.AccessToken
	resp = kid.do(http.MethodPost, "/api/v1/auth/invitations", map[string]string{})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	again := env.newBrowser(t)
	resp = again.do(http.MethodPost, "/api/v1/auth/register-invite", map[string]string{
		"admin_email":    "other@example.com",
		"admin_password": "another-long-password",
		"admin_name":     "Other",
		"invite_token":   invite.Data.Token,
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessionsListAndRevoke(t *testing.T) {
	t.Parallel()

	env := newEnv(t)
	first := env.newBrowser(t)
	first.register("owner@example.com", "Home")

	second := env.newBrowser(t)
	resp := second.do(http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    "owner@example.com",
		"password": "correct-horse-battery",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = first.do(http.MethodGet, "/api/v1/auth/sessions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sessions := decode[[]model.SessionSummary](t, resp)
	require.Len(t, sessions.Data, 2)

	var other string
	for _, s := range sessions.Data {
		if !s.Current {
			other = s.ID
		}
	}
	require.NotEmpty(t, other)

	resp = first.do(http.MethodDelete, "/api/v1/auth/sessions/"+other, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = second.do(http.MethodPost, "/api/v1/auth/refresh", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = first.do(http.MethodPost, "/api/v1/auth/logout-all", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = first.do(http.MethodPost, "/api/v1/auth/refresh", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
