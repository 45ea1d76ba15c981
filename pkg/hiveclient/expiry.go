package hiveclient

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RenewMargin is how long before expiry the access token is renewed.
const RenewMargin = 5 * time.Minute

var (
	errNoExpiry = errors.New("token has no exp claim")

	// Anything past this is treated as garbage rather than a real expiry.
	maxExpiry = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)
)

var unverified = jwt.NewParser()

// DecodeExpiry reads the exp claim of a JWT without verifying its signature.
func DecodeExpiry(token string) (time.Time, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := unverified.ParseUnverified(token, &claims); err != nil {
		return time.Time{}, fmt.Errorf("decode expiry: %w", err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("decode expiry: %w", err)
	}
	if exp == nil {
		return time.Time{}, errNoExpiry
	}
	if secs := exp.Unix(); secs <= 0 || secs > maxExpiry.Unix() {
		return time.Time{}, fmt.Errorf("decode expiry: exp %d out of range", secs)
	}

	return exp.Time, nil
}

// RenewDelay is the wait until exp-RenewMargin, never negative.
func RenewDelay(exp time.Time, now time.Time) time.Duration {
	return max(exp.Add(-RenewMargin).Sub(now), 0)
}
