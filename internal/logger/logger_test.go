package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, "debug", "json")
	defer slog.SetDefault(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	l.Debug("auth.login", "email", "ana@example.com", "password", "hunter22", "refresh_token", "abc")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "ana@example.com", line["email"])
	require.Equal(t, redacted, line["password"])
	require.Equal(t, redacted, line["refresh_token"])
}

func TestPrettyHandler(t *testing.T) {
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo, ReplaceAttr: Redact})
	l := slog.New(h).With("request_id", "r1")

	l.Debug("hidden")
	require.Zero(t, buf.Len())

	l.Info("session.created", "token", "secret-value", "user_id", "u1")
	out := buf.String()
	require.Contains(t, out, "session.created")
	require.Contains(t, out, "request_id")
	require.Contains(t, out, "u1")
	require.NotContains(t, out, "secret-value")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel(""))
}
