package model

import "time"

const (
	RevokeReasonLogout        = "logout"
	RevokeReasonLogoutAll     = "logout_all"
	RevokeReasonReuseDetected = "reuse_detected"
)

// Session is the server record behind one refresh cookie. Only the hash of
// the refresh token is stored.
type Session struct {
	ID                string
	UserID            string
	TokenHash         string
	PreviousTokenHash string
	CreatedAt         time.Time
	RotatedAt         time.Time
	LastUsedAt        time.Time
	ExpiresAt         time.Time
	RevokedAt         *time.Time
	RevocationReason  string
	UserAgent         string
	IP                string
}

func (s Session) Active(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

type RotateParams struct {
	PresentedHash string
	NewHash       string
	Now           time.Time
	TTL           time.Duration
	ReuseGrace    time.Duration
}

type Invitation struct {
	ID        string
	HiveID    string
	Email     string
	Role      string
	TokenHash string
	CreatedBy string
	ExpiresAt time.Time
	UsedAt    *time.Time
	UsedBy    string
	CreatedAt time.Time
}

type ChallengePurpose string

const (
	ChallengeAuthentication ChallengePurpose = "authentication"
	ChallengeRegistration   ChallengePurpose = "registration"
)

// Challenge holds serialized ceremony session data between the options and
// verify calls. It is consumed on first read.
type Challenge struct {
	ID          string
	Purpose     ChallengePurpose
	UserID      string
	SessionData []byte
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

type PasskeyCredential struct {
	ID         string
	UserID     string
	Credential []byte
	DeviceName string
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

func (p PasskeyCredential) Summary() PasskeySummary {
	return PasskeySummary{ID: p.ID, DeviceName: p.DeviceName, CreatedAt: p.CreatedAt, LastUsedAt: p.LastUsedAt}
}
