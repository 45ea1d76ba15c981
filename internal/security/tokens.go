package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"hive-auth/internal/model"
)

const minSecretLength = 32

var ErrInvalidToken = errors.New("invalid token")

// AccessClaims is the JWT body of an access token. The hive and person
// claims scope the token to one membership.
type AccessClaims struct {
	jwt.RegisteredClaims
	HiveID    string `json:"hid"`
	PersonID  string `json:"pid"`
	SessionID string `json:"sid"`
}

type AccessSubject struct {
	UserID    string
	HiveID    string
	PersonID  string
	SessionID string
}

type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, issuer string, ttl time.Duration) (*TokenIssuer, error) {
	if len(strings.TrimSpace(secret)) < minSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", minSecretLength)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("access token ttl must be positive")
	}

	return &TokenIssuer{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

func (i *TokenIssuer) Issue(subject AccessSubject) (string, time.Time, error) {
	now := i.now().UTC()
	expiresAt := now.Add(i.ttl)

	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject.UserID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		HiveID:    subject.HiveID,
		PersonID:  subject.PersonID,
		SessionID: subject.SessionID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}

	return signed, expiresAt, nil
}

func (i *TokenIssuer) Parse(token string) (*model.AuthClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &AccessClaims{}, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || claims.Subject == "" || claims.SessionID == "" || claims.HiveID == "" {
		return nil, ErrInvalidToken
	}

	return &model.AuthClaims{
		UserID:    claims.Subject,
		HiveID:    claims.HiveID,
		PersonID:  claims.PersonID,
		SessionID: claims.SessionID,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
