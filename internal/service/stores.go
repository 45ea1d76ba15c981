package service

import (
	"context"
	"time"

	"hive-auth/internal/model"
)

type UserStore interface {
	Create(ctx context.Context, user model.User) error
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	SetLastHive(ctx context.Context, userID string, hiveID string) error
}

type HiveStore interface {
	CreateWithOwner(ctx context.Context, hive model.Hive, owner model.Person) error
	FindByID(ctx context.Context, id string) (model.Hive, error)
	AddPerson(ctx context.Context, person model.Person) error
	FindPerson(ctx context.Context, hiveID string, userID string) (model.Person, error)
	ListMemberships(ctx context.Context, userID string) ([]model.Membership, error)
	ListPermissionOverrides(ctx context.Context, hiveID string) ([]model.PermissionOverride, error)
}

type SessionStore interface {
	Create(ctx context.Context, session model.Session) error
	Rotate(ctx context.Context, params model.RotateParams) (model.Session, error)
	FindByID(ctx context.Context, id string) (model.Session, error)
	FindByTokenHash(ctx context.Context, hash string) (model.Session, error)
	Revoke(ctx context.Context, id string, reason string, at time.Time) error
	RevokeAllForUser(ctx context.Context, userID string, reason string, at time.Time) (int64, error)
	ListActiveForUser(ctx context.Context, userID string, now time.Time) ([]model.Session, error)
	CleanExpired(ctx context.Context, now time.Time) (int64, error)
}

type InvitationStore interface {
	Create(ctx context.Context, invitation model.Invitation) error
	FindUsable(ctx context.Context, tokenHash string, now time.Time) (model.Invitation, error)
	Consume(ctx context.Context, id string, userID string, now time.Time) error
	CleanExpired(ctx context.Context, now time.Time) (int64, error)
}

type PasskeyStore interface {
	Create(ctx context.Context, credential model.PasskeyCredential) error
	FindByID(ctx context.Context, id string) (model.PasskeyCredential, error)
	ListForUser(ctx context.Context, userID string) ([]model.PasskeyCredential, error)
	RecordUse(ctx context.Context, id string, credential []byte, usedAt time.Time) error
	Delete(ctx context.Context, userID string, id string) error
}

type ChallengeStore interface {
	// Put stores a challenge. Registration challenges replace any
	// outstanding one for the same user.
	Put(ctx context.Context, challenge model.Challenge) error
	Take(ctx context.Context, id string, purpose model.ChallengePurpose) (model.Challenge, error)
	TakeForUser(ctx context.Context, userID string, purpose model.ChallengePurpose) (model.Challenge, error)
	CleanExpired(ctx context.Context, now time.Time) (int64, error)
}

type AuditStore interface {
	Log(ctx context.Context, entry model.AuditEntry) error
	Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error)
}

// Stores groups the persistence collaborators. Postgres and in-memory
// implementations both satisfy it.
type Stores struct {
	Users       UserStore
	Hives       HiveStore
	Sessions    SessionStore
	Invitations InvitationStore
	Passkeys    PasskeyStore
	Challenges  ChallengeStore
	Audit       AuditStore
}
