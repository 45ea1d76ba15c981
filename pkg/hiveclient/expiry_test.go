package hiveclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeExpiry(t *testing.T) {
	t.Parallel()

	exp := time.Date(2026, 3, 1, 9, 15, 0, 0, time.UTC)
	got, err := DecodeExpiry(fakeToken(map[string]any{"exp": exp.Unix(), "hid": "h1"}))
	require.NoError(t, err)
	assert.True(t, exp.Equal(got))

	bad := []string{
		"",
		"a.b",
		"a..c",
		"a.e30.c",
		fakeToken(map[string]any{"exp": -5}),
		fakeToken(map[string]any{"exp": "tomorrow"}),
		fakeToken(map[string]any{"exp": 1e300}),
		fakeToken(map[string]any{"exp": int64(1) << 40}),
	}
	for _, token := range bad {
		_, err := DecodeExpiry(token)
		assert.Error(t, err, token)
	}

	_, err = DecodeExpiry(fakeToken(map[string]any{"sub": "user-1"}))
	assert.ErrorIs(t, err, errNoExpiry)
}

func TestRenewDelay(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, 10*time.Minute, RenewDelay(now.Add(15*time.Minute), now))
	assert.Equal(t, time.Duration(0), RenewDelay(now.Add(5*time.Minute), now))
	assert.Equal(t, time.Duration(0), RenewDelay(now.Add(2*time.Minute), now))
	assert.Equal(t, time.Duration(0), RenewDelay(now.Add(-time.Hour), now))
}
