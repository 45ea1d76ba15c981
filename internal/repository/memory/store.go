// Package memory holds map-backed repositories used when no DATABASE_URL is
// configured and by tests. They mirror the Postgres repositories' semantics,
// including the sentinel errors they return.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"hive-auth/internal/model"
)

type Store struct {
	Users       *UserRepository
	Hives       *HiveRepository
	Sessions    *SessionRepository
	Invitations *InvitationRepository
	Passkeys    *PasskeyRepository
	Challenges  *ChallengeRepository
	Audit       *AuditRepository
}

func New() *Store {
	return &Store{
		Users:       &UserRepository{byID: map[string]model.User{}},
		Hives:       &HiveRepository{hives: map[string]model.Hive{}, overrides: map[string][]model.PermissionOverride{}},
		Sessions:    &SessionRepository{byID: map[string]model.Session{}},
		Invitations: &InvitationRepository{byID: map[string]model.Invitation{}},
		Passkeys:    &PasskeyRepository{byID: map[string]model.PasskeyCredential{}},
		Challenges:  &ChallengeRepository{byID: map[string]model.Challenge{}},
		Audit:       &AuditRepository{},
	}
}

type UserRepository struct {
	mu   sync.RWMutex
	byID map[string]model.User
}

func (r *UserRepository) Create(_ context.Context, u model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.byID {
		if strings.EqualFold(existing.Email, u.Email) {
			return model.ErrEmailTaken
		}
	}
	r.byID[u.ID] = u
	return nil
}

func (r *UserRepository) FindByID(_ context.Context, id string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return u, nil
}

func (r *UserRepository) FindByEmail(_ context.Context, email string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	email = strings.TrimSpace(email)
	for _, u := range r.byID {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return model.User{}, model.ErrUserNotFound
}

func (r *UserRepository) SetLastHive(_ context.Context, userID string, hiveID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[userID]
	if !ok {
		return model.ErrUserNotFound
	}
	u.LastHiveID = hiveID
	u.UpdatedAt = time.Now().UTC()
	r.byID[userID] = u
	return nil
}

type HiveRepository struct {
	mu        sync.RWMutex
	hives     map[string]model.Hive
	persons   []model.Person
	overrides map[string][]model.PermissionOverride
}

func (r *HiveRepository) CreateWithOwner(_ context.Context, hive model.Hive, owner model.Person) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.hives[hive.ID] = hive
	r.persons = append(r.persons, owner)
	return nil
}

func (r *HiveRepository) FindByID(_ context.Context, id string) (model.Hive, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.hives[id]
	if !ok {
		return model.Hive{}, model.ErrHiveNotFound
	}
	return h, nil
}

func (r *HiveRepository) AddPerson(_ context.Context, p model.Person) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.persons {
		if existing.HiveID == p.HiveID && existing.UserID == p.UserID {
			return model.ErrInvalidInput
		}
	}
	r.persons = append(r.persons, p)
	return nil
}

func (r *HiveRepository) FindPerson(_ context.Context, hiveID string, userID string) (model.Person, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.persons {
		if p.HiveID == hiveID && p.UserID == userID {
			return p, nil
		}
	}
	return model.Person{}, model.ErrNotHiveMember
}

func (r *HiveRepository) ListMemberships(_ context.Context, userID string) ([]model.Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Membership, 0)
	for _, p := range r.persons {
		if p.UserID != userID {
			continue
		}
		out = append(out, model.Membership{Hive: r.hives[p.HiveID], Person: p})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Person.CreatedAt.Before(out[j].Person.CreatedAt)
	})
	return out, nil
}

func (r *HiveRepository) ListPermissionOverrides(_ context.Context, hiveID string) ([]model.PermissionOverride, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]model.PermissionOverride(nil), r.overrides[hiveID]...), nil
}

// SetPermissionOverrides replaces a hive's overrides. Postgres rows are
// managed by the permissions admin surface, which lives outside this service.
func (r *HiveRepository) SetPermissionOverrides(hiveID string, overrides []model.PermissionOverride) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.overrides[hiveID] = append([]model.PermissionOverride(nil), overrides...)
}

type SessionRepository struct {
	mu   sync.Mutex
	byID map[string]model.Session
}

func (r *SessionRepository) Create(_ context.Context, s model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID[s.ID] = s
	return nil
}

func (r *SessionRepository) Rotate(_ context.Context, p model.RotateParams) (model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, s := range r.byID {
		if s.TokenHash != p.PresentedHash {
			continue
		}
		if s.RevokedAt != nil {
			return s, model.ErrSessionRevoked
		}
		if !p.Now.Before(s.ExpiresAt) {
			return s, model.ErrSessionExpired
		}
		s.PreviousTokenHash = s.TokenHash
		s.TokenHash = p.NewHash
		s.RotatedAt = p.Now
		s.LastUsedAt = p.Now
		s.ExpiresAt = p.Now.Add(p.TTL)
		r.byID[id] = s
		return s, nil
	}

	for id, s := range r.byID {
		if s.PreviousTokenHash == "" || s.PreviousTokenHash != p.PresentedHash {
			continue
		}
		if s.RevokedAt != nil {
			return s, model.ErrSessionRevoked
		}
		if p.Now.Sub(s.RotatedAt) <= p.ReuseGrace {
			return s, model.ErrRefreshReused
		}
		revokedAt := p.Now
		s.RevokedAt = &revokedAt
		s.RevocationReason = model.RevokeReasonReuseDetected
		r.byID[id] = s
		return s, model.ErrRefreshReuseDetected
	}

	return model.Session{}, model.ErrSessionNotFound
}

func (r *SessionRepository) FindByID(_ context.Context, id string) (model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return model.Session{}, model.ErrSessionNotFound
	}
	return s, nil
}

func (r *SessionRepository) FindByTokenHash(_ context.Context, hash string) (model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.byID {
		if s.TokenHash == hash {
			return s, nil
		}
	}
	return model.Session{}, model.ErrSessionNotFound
}

func (r *SessionRepository) Revoke(_ context.Context, id string, reason string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok || s.RevokedAt != nil {
		return model.ErrSessionNotFound
	}
	s.RevokedAt = &at
	s.RevocationReason = reason
	r.byID[id] = s
	return nil
}

func (r *SessionRepository) RevokeAllForUser(_ context.Context, userID string, reason string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, s := range r.byID {
		if s.UserID != userID || s.RevokedAt != nil {
			continue
		}
		revokedAt := at
		s.RevokedAt = &revokedAt
		s.RevocationReason = reason
		r.byID[id] = s
		n++
	}
	return n, nil
}

func (r *SessionRepository) ListActiveForUser(_ context.Context, userID string, now time.Time) ([]model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.Session, 0)
	for _, s := range r.byID {
		if s.UserID == userID && s.Active(now) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUsedAt.After(out[j].LastUsedAt) })
	return out, nil
}

func (r *SessionRepository) CleanExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	cutoff := now.Add(-24 * time.Hour)
	for id, s := range r.byID {
		if !now.Before(s.ExpiresAt) || (s.RevokedAt != nil && !s.RevokedAt.After(cutoff)) {
			delete(r.byID, id)
			n++
		}
	}
	return n, nil
}

type InvitationRepository struct {
	mu   sync.Mutex
	byID map[string]model.Invitation
}

func (r *InvitationRepository) Create(_ context.Context, inv model.Invitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID[inv.ID] = inv
	return nil
}

func (r *InvitationRepository) FindUsable(_ context.Context, tokenHash string, now time.Time) (model.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, inv := range r.byID {
		if inv.TokenHash == tokenHash && inv.UsedAt == nil && now.Before(inv.ExpiresAt) {
			return inv, nil
		}
	}
	return model.Invitation{}, model.ErrInvitationInvalid
}

func (r *InvitationRepository) Consume(_ context.Context, id string, userID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv, ok := r.byID[id]
	if !ok || inv.UsedAt != nil || !now.Before(inv.ExpiresAt) {
		return model.ErrInvitationInvalid
	}
	usedAt := now
	inv.UsedAt = &usedAt
	inv.UsedBy = userID
	r.byID[id] = inv
	return nil
}

func (r *InvitationRepository) CleanExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, inv := range r.byID {
		if inv.UsedAt == nil && !now.Before(inv.ExpiresAt) {
			delete(r.byID, id)
			n++
		}
	}
	return n, nil
}

type PasskeyRepository struct {
	mu   sync.RWMutex
	byID map[string]model.PasskeyCredential
}

func (r *PasskeyRepository) Create(_ context.Context, p model.PasskeyCredential) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[p.ID]; exists {
		return model.ErrInvalidInput
	}
	r.byID[p.ID] = p
	return nil
}

func (r *PasskeyRepository) FindByID(_ context.Context, id string) (model.PasskeyCredential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byID[id]
	if !ok {
		return model.PasskeyCredential{}, model.ErrPasskeyNotFound
	}
	return p, nil
}

func (r *PasskeyRepository) ListForUser(_ context.Context, userID string) ([]model.PasskeyCredential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.PasskeyCredential, 0)
	for _, p := range r.byID {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *PasskeyRepository) RecordUse(_ context.Context, id string, credential []byte, usedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok {
		return model.ErrPasskeyNotFound
	}
	p.Credential = credential
	p.LastUsedAt = &usedAt
	r.byID[id] = p
	return nil
}

func (r *PasskeyRepository) Delete(_ context.Context, userID string, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byID[id]
	if !ok || p.UserID != userID {
		return model.ErrPasskeyNotFound
	}
	delete(r.byID, id)
	return nil
}

type ChallengeRepository struct {
	mu   sync.Mutex
	byID map[string]model.Challenge
}

func (r *ChallengeRepository) Put(_ context.Context, c model.Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c.Purpose == model.ChallengeRegistration && c.UserID != "" {
		for id, existing := range r.byID {
			if existing.UserID == c.UserID && existing.Purpose == c.Purpose {
				delete(r.byID, id)
			}
		}
	}
	r.byID[c.ID] = c
	return nil
}

func (r *ChallengeRepository) Take(_ context.Context, id string, purpose model.ChallengePurpose) (model.Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[id]
	if !ok || c.Purpose != purpose {
		return model.Challenge{}, model.ErrChallengeNotFound
	}
	delete(r.byID, id)
	return c, nil
}

func (r *ChallengeRepository) TakeForUser(_ context.Context, userID string, purpose model.ChallengePurpose) (model.Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, c := range r.byID {
		if c.UserID == userID && c.Purpose == purpose {
			delete(r.byID, id)
			return c, nil
		}
	}
	return model.Challenge{}, model.ErrChallengeNotFound
}

func (r *ChallengeRepository) CleanExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, c := range r.byID {
		if !now.Before(c.ExpiresAt) {
			delete(r.byID, id)
			n++
		}
	}
	return n, nil
}

type AuditRepository struct {
	mu      sync.RWMutex
	entries []model.AuditEntry
}

func (r *AuditRepository) Log(_ context.Context, entry model.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, entry)
	return nil
}

func (r *AuditRepository) Query(_ context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	if query.Page < 1 {
		query.Page = 1
	}
	if query.Limit <= 0 {
		query.Limit = 50
	}
	if query.Limit > 200 {
		query.Limit = 200
	}

	r.mu.RLock()
	items := make([]model.AuditEntry, 0, len(r.entries))
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if query.Action != "" && !strings.EqualFold(e.Action, query.Action) {
			continue
		}
		if query.ActorID != "" && e.ActorID != query.ActorID {
			continue
		}
		if query.HiveID != "" && e.HiveID != query.HiveID {
			continue
		}
		if query.Status != "" && !strings.EqualFold(e.Status, query.Status) {
			continue
		}
		items = append(items, e)
	}
	r.mu.RUnlock()

	total := len(items)
	start := (query.Page - 1) * query.Limit
	if start > total {
		start = total
	}
	end := start + query.Limit
	if end > total {
		end = total
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + query.Limit - 1) / query.Limit
	}

	return items[start:end], model.Meta{Page: query.Page, Limit: query.Limit, Total: total, TotalPages: totalPages}, nil
}
