//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hive-auth/internal/app"
	"hive-auth/internal/config"
	"hive-auth/internal/cookie"
	"hive-auth/internal/repository/memory"
	"hive-auth/internal/security"
)

const testOrigin = "http://localhost:5173"

type testEnv struct {
	server *httptest.Server
	app    *app.Server
	store  *memory.Store
}

func testConfig() *config.Config {
	return &config.Config{
		ServerPort:          "0",
		RequestTimeout:      5 * time.Second,
		LogLevel:            "error",
		LogFormat:           "json",
		JWTSecret:           "integration-secret-0123456789abcdef",
		JWTIssuer:           "hive-auth-test",
		JWTAccessTTL:        15 * time.Minute,
		RefreshTTL:          24 * time.Hour,
		RefreshReuseGrace:   10 * time.Second,
		BcryptCost:          4,
		CookieSecure:        false,
		RefreshCookieName:   cookie.DefaultRefreshName,
		CSRFCookieName:      cookie.DefaultCSRFName,
		CORSOrigins:         []string{testOrigin},
		RateLimitRPM:        1000,
		AuthRateLimitRPM:    1000,
		WebAuthnRPID:        "localhost",
		WebAuthnRPName:      "Hive",
		WebAuthnRPOrigins:   []string{testOrigin},
		PasskeyChallengeTTL: time.Minute,
		DefaultLocale:       "en",
		InviteTTL:           time.Hour,
		CleanupInterval:     time.Hour,
		MetricsEnabled:      true,
	}
}

func newEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()

	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}

	rp, err := security.NewRelyingParty(security.RelyingPartyConfig{
		ID:          cfg.WebAuthnRPID,
		DisplayName: cfg.WebAuthnRPName,
		Origins:     cfg.WebAuthnRPOrigins,
	})
	require.NoError(t, err)

	store := memory.New()
	srv, err := app.Build(cfg, app.MemoryStores(store), rp, nil)
	require.NoError(t, err)

	server := httptest.NewServer(srv.Handler)
	t.Cleanup(server.Close)

	return &testEnv{server: server, app: srv, store: store}
}

// browser mimics a SPA: it keeps cookies in a jar and copies the CSRF
// cookie into the header on every request.
type browser struct {
	t      *testing.T
	base   *url.URL
	client *http.Client
	access string
}

func (e *testEnv) newBrowser(t *testing.T) *browser {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	base, err := url.Parse(e.server.URL)
	require.NoError(t, err)

	b := &browser{t: t, base: base, client: &http.Client{Jar: jar}}
	resp := b.do(http.MethodGet, "/api/v1/auth/csrf", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return b
}

func (b *browser) cookie(name string) string {
	u := b.base.JoinPath("/api/v1/auth")
	for _, c := range b.client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func (b *browser) do(method string, path string, body any) *http.Response {
	b.t.Helper()

	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(b.t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, b.base.String()+path, reader)
	require.NoError(b.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if csrf := b.cookie(cookie.DefaultCSRFName); csrf != "" {
		req.Header.Set(cookie.DefaultCSRFHeader, csrf)
	}
	if b.access != "" {
		req.Header.Set("Authorization", "Bearer "+b.access)
	}

	resp, err := b.client.Do(req)
	require.NoError(b.t, err)
	b.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

type envelope[T any] struct {
	Success bool `json:"success"`
	Data    T    `json:"data"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func decode[T any](t *testing.T, resp *http.Response) envelope[T] {
	t.Helper()

	var out envelope[T]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

type authData struct {
	User struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
	Hive struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"hive"`
	PersonID    string `json:"person_id"`
	AccessToken string `json:"access_token"`
}

func (b *browser) register(email string, hiveName string) authData {
	b.t.Helper()

	resp := b.do(http.MethodPost, "/api/v1/auth/register", map[string]string{
		"admin_email":    email,
		"admin_password": "correct-horse-battery",
		"admin_name":     "Owner",
		"hive_name":      hiveName,
		"hive_type":      "family",
	})
	require.Equal(b.t, http.StatusCreated, resp.StatusCode)

	body := decode[authData](b.t, resp)
	require.True(b.t, body.Success)
	b.access = body.Data.AccessToken
	return body.Data
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
