//go:build integration

package integration

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"hive-auth/internal/model"
)

func TestPasskeyAuthOptionsAreSingleUse(t *testing.T) {
	t.Parallel()

	env := newEnv(t)
	b := env.newBrowser(t)

	resp := b.do(http.MethodPost, "/api/v1/auth/passkey/auth/options", map[string]string{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	options := decode[model.PasskeyAuthOptions](t, resp)
	require.NotEmpty(t, options.Data.SessionID)
	require.NotNil(t, options.Data.Options)

	verify := model.PasskeyVerifyAuthRequest{SessionID: options.Data.SessionID, Response: json.RawMessage(`{"id":"bogus"}`)}
	resp = b.do(http.MethodPost, "/api/v1/auth/passkey/auth/verify", verify)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "VERIFICATION_FAILED", decode[any](t, resp).Error.Code)

	resp = b.do(http.MethodPost, "/api/v1/auth/passkey/auth/verify", verify)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPasskeyRegistrationOptionsNeedAuth(t *testing.T) {
	t.Parallel()

	env := newEnv(t)
	b := env.newBrowser(t)

	resp := b.do(http.MethodPost, "/api/v1/auth/passkey/register/options", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	b.register("owner@example.com", "Home")
	resp = b.do(http.MethodPost, "/api/v1/auth/passkey/register/options", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = b.do(http.MethodGet, "/api/v1/auth/passkeys", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, decode[[]model.PasskeySummary](t, resp).Data)
}
