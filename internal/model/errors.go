package model

import "errors"

var (
	// User related errors
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Hive related errors
	ErrHiveNotFound  = errors.New("hive not found")
	ErrNotHiveMember = errors.New("not a member of hive")

	// Session related errors
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionRevoked       = errors.New("session revoked")
	ErrSessionExpired       = errors.New("session expired")
	ErrRefreshReused        = errors.New("refresh token already rotated")
	ErrRefreshReuseDetected = errors.New("refresh token reuse detected")

	// Invitation related errors
	ErrInvitationInvalid = errors.New("invitation invalid or expired")

	// Passkey related errors
	ErrPasskeyNotFound   = errors.New("passkey not found")
	ErrChallengeNotFound = errors.New("challenge not found")

	// Permission/Access related errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)
