package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hive-auth/internal/event"
	"hive-auth/internal/model"
	"hive-auth/internal/repository/memory"
	"hive-auth/internal/security"
	"hive-auth/pkg/apierror"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type recordingBus struct {
	mu     sync.Mutex
	events []event.Event
}

func (b *recordingBus) Publish(e event.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *recordingBus) Subscribe() (<-chan event.Event, func()) {
	ch := make(chan event.Event)
	close(ch)
	return ch, func() {}
}

func (b *recordingBus) types() []event.Type {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]event.Type, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.Type)
	}
	return out
}

type authHarness struct {
	svc   *AuthService
	store *memory.Store
	bus   *recordingBus

	mu  sync.Mutex
	now time.Time
}

func newAuthHarness(t *testing.T) *authHarness {
	t.Helper()

	issuer, err := security.NewTokenIssuer(testSecret, "hive-auth", 15*time.Minute)
	require.NoError(t, err)

	h := &authHarness{store: memory.New(), bus: &recordingBus{}, now: time.Now().UTC()}
	h.svc = NewAuthService(AuthConfig{
		RefreshTTL:    7 * 24 * time.Hour,
		ReuseGrace:    30 * time.Second,
		InviteTTL:     72 * time.Hour,
		BcryptCost:    4,
		DefaultLocale: "en",
	}, storesOf(h.store), issuer, nil, h.bus)
	h.svc.now = h.clock
	return h
}

func storesOf(m *memory.Store) Stores {
	return Stores{
		Users:       m.Users,
		Hives:       m.Hives,
		Sessions:    m.Sessions,
		Invitations: m.Invitations,
		Passkeys:    m.Passkeys,
		Challenges:  m.Challenges,
		Audit:       m.Audit,
	}
}

func (h *authHarness) clock() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

func (h *authHarness) advance(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = h.now.Add(d)
}

func (h *authHarness) register(t *testing.T, email string, hiveType model.HiveType) model.IssuedSession {
	t.Helper()

	issued, err := h.svc.Register(context.Background(), model.RegisterRequest{
		AdminEmail:    email,
		AdminPassword: "correct-horse",
		AdminName:     "Owner " + email,
		HiveName:      "Hive of " + email,
		HiveType:      hiveType,
	}, model.DeviceInfo{UserAgent: "test", IP: "127.0.0.1"})
	require.NoError(t, err)
	return issued
}

func (h *authHarness) claims(t *testing.T, issued model.IssuedSession) *model.AuthClaims {
	t.Helper()

	claims, err := h.svc.ValidateAccessToken(context.Background(), issued.Payload.AccessToken)
	require.NoError(t, err)
	return claims
}

func TestAuthServiceRegisterAndLogin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("register creates hive with owner role and a session", func(t *testing.T) {
		h := newAuthHarness(t)
		issued := h.register(t, "ana@example.com", model.HiveTypeFamily)

		require.NotEmpty(t, issued.RefreshToken)
		require.NotEmpty(t, issued.Payload.AccessToken)
		require.Equal(t, "ana@example.com", issued.Payload.User.Email)
		require.Equal(t, model.HiveTypeFamily, issued.Payload.Hive.Type)
		require.Equal(t, "en", issued.Payload.Locale)

		person, err := h.store.Hives.FindPerson(ctx, issued.Payload.Hive.ID, issued.Payload.User.ID)
		require.NoError(t, err)
		require.Equal(t, model.RoleParent, person.Role)
		require.Equal(t, person.ID, issued.Payload.PersonID)

		sess, err := h.store.Sessions.FindByTokenHash(ctx, security.HashToken(issued.RefreshToken))
		require.NoError(t, err)
		require.Equal(t, issued.SessionID, sess.ID)
		require.Contains(t, h.bus.types(), event.TypeSessionCreated)
	})

	t.Run("organization owner gets org_admin", func(t *testing.T) {
		h := newAuthHarness(t)
		issued := h.register(t, "boss@example.com", model.HiveTypeOrganization)

		person, err := h.store.Hives.FindPerson(ctx, issued.Payload.Hive.ID, issued.Payload.User.ID)
		require.NoError(t, err)
		require.Equal(t, model.RoleOrgAdmin, person.Role)
	})

	t.Run("register rejects duplicate email and bad input", func(t *testing.T) {
		h := newAuthHarness(t)
		h.register(t, "ana@example.com", model.HiveTypeFamily)

		_, err := h.svc.Register(ctx, model.RegisterRequest{
			AdminEmail: "ANA@example.com", AdminPassword: "correct-horse", AdminName: "Ana", HiveName: "x", HiveType: model.HiveTypeFamily,
		}, model.DeviceInfo{})
		require.Equal(t, "EMAIL_TAKEN", apierror.CodeOf(err))

		_, err = h.svc.Register(ctx, model.RegisterRequest{
			AdminEmail: "new@example.com", AdminPassword: "short", AdminName: "New", HiveName: "x", HiveType: model.HiveTypeFamily,
		}, model.DeviceInfo{})
		require.Equal(t, "VALIDATION", apierror.CodeOf(err))

		_, err = h.svc.Register(ctx, model.RegisterRequest{
			AdminEmail: "new@example.com", AdminPassword: "correct-horse", AdminName: "New", HiveName: "x", HiveType: "tribe",
		}, model.DeviceInfo{})
		require.Equal(t, "VALIDATION", apierror.CodeOf(err))
	})

	t.Run("login succeeds with the right password only", func(t *testing.T) {
		h := newAuthHarness(t)
		registered := h.register(t, "ana@example.com", model.HiveTypeFamily)

		issued, err := h.svc.Login(ctx, " Ana@Example.com ", "correct-horse", model.DeviceInfo{})
		require.NoError(t, err)
		require.Equal(t, registered.Payload.Hive.ID, issued.Payload.Hive.ID)
		require.NotEqual(t, registered.SessionID, issued.SessionID)

		_, err = h.svc.Login(ctx, "ana@example.com", "wrong-horse", model.DeviceInfo{})
		require.Equal(t, "INVALID_CREDENTIALS", apierror.CodeOf(err))

		_, err = h.svc.Login(ctx, "nobody@example.com", "correct-horse", model.DeviceInfo{})
		require.Equal(t, "INVALID_CREDENTIALS", apierror.CodeOf(err))

		failures := 0
		for _, typ := range h.bus.types() {
			if typ == event.TypeLoginFailed {
				failures++
			}
		}
		require.Equal(t, 2, failures)
	})
}

func TestAuthServiceRefresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("rotates the refresh token", func(t *testing.T) {
		h := newAuthHarness(t)
		first := h.register(t, "ana@example.com", model.HiveTypeFamily)

		h.advance(time.Minute)
		second, err := h.svc.Refresh(ctx, first.RefreshToken, model.DeviceInfo{})
		require.NoError(t, err)
		require.NotEqual(t, first.RefreshToken, second.RefreshToken)
		require.Equal(t, first.SessionID, second.SessionID)
		require.Equal(t, first.Payload.Hive.ID, second.Payload.Hive.ID)
		require.True(t, second.RefreshExpiresAt.After(first.RefreshExpiresAt))

		third, err := h.svc.Refresh(ctx, second.RefreshToken, model.DeviceInfo{})
		require.NoError(t, err)
		require.NotEqual(t, second.RefreshToken, third.RefreshToken)
	})

	t.Run("reuse inside the grace window is rejected without revoking", func(t *testing.T) {
		h := newAuthHarness(t)
		first := h.register(t, "ana@example.com", model.HiveTypeFamily)

		second, err := h.svc.Refresh(ctx, first.RefreshToken, model.DeviceInfo{})
		require.NoError(t, err)

		h.advance(5 * time.Second)
		_, err = h.svc.Refresh(ctx, first.RefreshToken, model.DeviceInfo{})
		require.ErrorIs(t, err, ErrRefreshRotated)
		require.Equal(t, "UNAUTHORIZED", apierror.CodeOf(err))
		require.NotContains(t, h.bus.types(), event.TypeSessionReuseDetected)

		_, err = h.svc.Refresh(ctx, second.RefreshToken, model.DeviceInfo{})
		require.NoError(t, err)
	})

	t.Run("reuse after the grace window revokes the session", func(t *testing.T) {
		h := newAuthHarness(t)
		first := h.register(t, "ana@example.com", model.HiveTypeFamily)

		second, err := h.svc.Refresh(ctx, first.RefreshToken, model.DeviceInfo{})
		require.NoError(t, err)

		h.advance(time.Minute)
		_, err = h.svc.Refresh(ctx, first.RefreshToken, model.DeviceInfo{})
		require.Equal(t, "UNAUTHORIZED", apierror.CodeOf(err))
		require.Contains(t, h.bus.types(), event.TypeSessionReuseDetected)

		_, err = h.svc.Refresh(ctx, second.RefreshToken, model.DeviceInfo{})
		require.Equal(t, "UNAUTHORIZED", apierror.CodeOf(err))

		_, err = h.svc.ValidateAccessToken(ctx, second.Payload.AccessToken)
		require.Equal(t, "UNAUTHORIZED", apierror.CodeOf(err))
	})

	t.Run("unknown empty and expired tokens are unauthorized", func(t *testing.T) {
		h := newAuthHarness(t)
		first := h.register(t, "ana@example.com", model.HiveTypeFamily)

		_, err := h.svc.Refresh(ctx, "", model.DeviceInfo{})
		require.Equal(t, "UNAUTHORIZED", apierror.CodeOf(err))

		_, err = h.svc.Refresh(ctx, "not-a-token", model.DeviceInfo{})
		require.Equal(t, "UNAUTHORIZED", apierror.CodeOf(err))

		h.advance(8 * 24 * time.Hour)
		_, err = h.svc.Refresh(ctx, first.RefreshToken, model.DeviceInfo{})
		require.Equal(t, "UNAUTHORIZED", apierror.CodeOf(err))
	})
}

func TestAuthServiceSwitchHive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	h := newAuthHarness(t)
	ana := h.register(t, "ana@example.com", model.HiveTypeFamily)
	other := h.register(t, "bo@example.com", model.HiveTypeOrganization)
	stranger := h.register(t, "cy@example.com", model.HiveTypeFamily)

	require.NoError(t, h.store.Hives.AddPerson(ctx, model.Person{
		ID: "p-ana-org", HiveID: other.Payload.Hive.ID, UserID: ana.Payload.User.ID, Role: model.RoleMember, CreatedAt: h.clock().Add(time.Second),
	}))

	claims := h.claims(t, ana)

	t.Run("issues a token for the new hive and leaves the session alone", func(t *testing.T) {
		before, err := h.store.Sessions.FindByID(ctx, ana.SessionID)
		require.NoError(t, err)

		switched, err := h.svc.SwitchHive(ctx, claims, other.Payload.Hive.ID)
		require.NoError(t, err)
		require.Equal(t, other.Payload.Hive.ID, switched.HiveID)
		require.Equal(t, "p-ana-org", switched.PersonID)

		after, err := h.store.Sessions.FindByID(ctx, ana.SessionID)
		require.NoError(t, err)
		require.Equal(t, before.TokenHash, after.TokenHash)

		newClaims, err := h.svc.ValidateAccessToken(ctx, switched.AccessToken)
		require.NoError(t, err)
		require.Equal(t, other.Payload.Hive.ID, newClaims.HiveID)
		require.Equal(t, ana.SessionID, newClaims.SessionID)

		refreshed, err := h.svc.Refresh(ctx, ana.RefreshToken, model.DeviceInfo{})
		require.NoError(t, err)
		require.Equal(t, other.Payload.Hive.ID, refreshed.Payload.Hive.ID)
	})

	t.Run("non members and unknown hives are refused", func(t *testing.T) {
		_, err := h.svc.SwitchHive(ctx, claims, stranger.Payload.Hive.ID)
		require.Equal(t, "FORBIDDEN", apierror.CodeOf(err))

		_, err = h.svc.SwitchHive(ctx, claims, "missing")
		require.Equal(t, "NOT_FOUND", apierror.CodeOf(err))

		_, err = h.svc.SwitchHive(ctx, claims, " ")
		require.Equal(t, "VALIDATION", apierror.CodeOf(err))
	})
}

func TestAuthServiceSwitchFollowsUserAcrossDevices(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	h := newAuthHarness(t)
	laptop := h.register(t, "ana@example.com", model.HiveTypeFamily)
	org := h.register(t, "bo@example.com", model.HiveTypeOrganization)
	require.NoError(t, h.store.Hives.AddPerson(ctx, model.Person{
		ID: "p-ana-org", HiveID: org.Payload.Hive.ID, UserID: laptop.Payload.User.ID, Role: model.RoleMember, CreatedAt: h.clock().Add(time.Second),
	}))

	phone, err := h.svc.Login(ctx, "ana@example.com", "correct-horse", model.DeviceInfo{UserAgent: "phone"})
	require.NoError(t, err)
	require.NotEqual(t, laptop.SessionID, phone.SessionID)
	require.Equal(t, laptop.Payload.Hive.ID, phone.Payload.Hive.ID)

	_, err = h.svc.SwitchHive(ctx, h.claims(t, laptop), org.Payload.Hive.ID)
	require.NoError(t, err)

	// The phone keeps its current token until it refreshes, then lands in
	// the hive last chosen on any device.
	phoneClaims := h.claims(t, phone)
	require.Equal(t, laptop.Payload.Hive.ID, phoneClaims.HiveID)

	refreshed, err := h.svc.Refresh(ctx, phone.RefreshToken, model.DeviceInfo{UserAgent: "phone"})
	require.NoError(t, err)
	require.Equal(t, org.Payload.Hive.ID, refreshed.Payload.Hive.ID)
	require.Equal(t, phone.SessionID, refreshed.SessionID)
}

func TestAuthServiceLogout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("revokes the cookie session and is idempotent", func(t *testing.T) {
		h := newAuthHarness(t)
		issued := h.register(t, "ana@example.com", model.HiveTypeFamily)

		h.svc.Logout(ctx, issued.RefreshToken, nil, model.DeviceInfo{})
		h.svc.Logout(ctx, issued.RefreshToken, nil, model.DeviceInfo{})
		h.svc.Logout(ctx, "", nil, model.DeviceInfo{})

		_, err := h.svc.ValidateAccessToken(ctx, issued.Payload.AccessToken)
		require.Equal(t, "UNAUTHORIZED", apierror.CodeOf(err))

		_, err = h.svc.Refresh(ctx, issued.RefreshToken, model.DeviceInfo{})
		require.Equal(t, "UNAUTHORIZED", apierror.CodeOf(err))

		revoked := 0
		for _, typ := range h.bus.types() {
			if typ == event.TypeSessionRevoked {
				revoked++
			}
		}
		require.Equal(t, 1, revoked)
	})

	t.Run("falls back to the access token session", func(t *testing.T) {
		h := newAuthHarness(t)
		issued := h.register(t, "ana@example.com", model.HiveTypeFamily)
		claims := h.claims(t, issued)

		h.svc.Logout(ctx, "", claims, model.DeviceInfo{})

		sess, err := h.store.Sessions.FindByID(ctx, issued.SessionID)
		require.NoError(t, err)
		require.NotNil(t, sess.RevokedAt)
		require.Equal(t, model.RevokeReasonLogout, sess.RevocationReason)
	})

	t.Run("logout all revokes every session", func(t *testing.T) {
		h := newAuthHarness(t)
		first := h.register(t, "ana@example.com", model.HiveTypeFamily)
		second, err := h.svc.Login(ctx, "ana@example.com", "correct-horse", model.DeviceInfo{UserAgent: "phone"})
		require.NoError(t, err)

		claims := h.claims(t, first)
		sessions, err := h.svc.ListSessions(ctx, claims)
		require.NoError(t, err)
		require.Len(t, sessions, 2)
		current := 0
		for _, s := range sessions {
			if s.Current {
				current++
				assert.Equal(t, first.SessionID, s.ID)
			}
		}
		require.Equal(t, 1, current)

		n, err := h.svc.LogoutAll(ctx, claims)
		require.NoError(t, err)
		require.EqualValues(t, 2, n)

		_, err = h.svc.Refresh(ctx, second.RefreshToken, model.DeviceInfo{})
		require.Equal(t, "UNAUTHORIZED", apierror.CodeOf(err))
	})

	t.Run("revoking another user's session reports not found", func(t *testing.T) {
		h := newAuthHarness(t)
		ana := h.register(t, "ana@example.com", model.HiveTypeFamily)
		bo := h.register(t, "bo@example.com", model.HiveTypeFamily)

		err := h.svc.RevokeSession(ctx, h.claims(t, ana), bo.SessionID)
		require.Equal(t, "NOT_FOUND", apierror.CodeOf(err))

		require.NoError(t, h.svc.RevokeSession(ctx, h.claims(t, bo), bo.SessionID))
	})
}

func TestAuthServiceInvitations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	h := newAuthHarness(t)
	parent := h.register(t, "ana@example.com", model.HiveTypeFamily)
	parentClaims := h.claims(t, parent)

	t.Run("invitee joins with the invited role", func(t *testing.T) {
		inv, err := h.svc.CreateInvitation(ctx, parentClaims, model.CreateInvitationRequest{Email: "kid@example.com"})
		require.NoError(t, err)
		require.Equal(t, model.RoleChild, inv.Role)
		require.NotEmpty(t, inv.Token)

		req := model.RegisterRequest{AdminEmail: "kid@example.com", AdminPassword: "correct-horse", AdminName: "Kid", InviteToken: inv.Token}
		issued, err := h.svc.RegisterWithInvitation(ctx, req, model.DeviceInfo{})
		require.NoError(t, err)
		require.Equal(t, parent.Payload.Hive.ID, issued.Payload.Hive.ID)

		person, err := h.store.Hives.FindPerson(ctx, parent.Payload.Hive.ID, issued.Payload.User.ID)
		require.NoError(t, err)
		require.Equal(t, model.RoleChild, person.Role)

		req.AdminEmail = "kid2@example.com"
		_, err = h.svc.RegisterWithInvitation(ctx, req, model.DeviceInfo{})
		require.Equal(t, "INVALID_OR_EXPIRED_INVITE", apierror.CodeOf(err))

		childClaims := h.claims(t, issued)
		_, err = h.svc.CreateInvitation(ctx, childClaims, model.CreateInvitationRequest{})
		require.Equal(t, "FORBIDDEN", apierror.CodeOf(err))

		h.store.Hives.SetPermissionOverrides(parent.Payload.Hive.ID, []model.PermissionOverride{
			{Role: model.RoleChild, Permission: model.PermissionMembersInvite, Granted: true},
		})
		_, err = h.svc.CreateInvitation(ctx, childClaims, model.CreateInvitationRequest{})
		require.NoError(t, err)
	})

	t.Run("rejects mismatched email and expired invitations", func(t *testing.T) {
		inv, err := h.svc.CreateInvitation(ctx, parentClaims, model.CreateInvitationRequest{Email: "someone@example.com", Role: model.RoleParent})
		require.NoError(t, err)

		_, err = h.svc.RegisterWithInvitation(ctx, model.RegisterRequest{
			AdminEmail: "else@example.com", AdminPassword: "correct-horse", AdminName: "Else", InviteToken: inv.Token,
		}, model.DeviceInfo{})
		require.Equal(t, "INVALID_OR_EXPIRED_INVITE", apierror.CodeOf(err))

		_, err = h.svc.RegisterWithInvitation(ctx, model.RegisterRequest{
			AdminEmail: "someone@example.com", AdminPassword: "correct-horse", AdminName: "Someone", InviteToken: "bogus",
		}, model.DeviceInfo{})
		require.Equal(t, "INVALID_OR_EXPIRED_INVITE", apierror.CodeOf(err))

		_, err = h.svc.CreateInvitation(ctx, parentClaims, model.CreateInvitationRequest{Role: model.RoleOrgAdmin})
		require.Equal(t, "VALIDATION", apierror.CodeOf(err))
	})
}

func TestAuthServiceMeAndCleanup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	h := newAuthHarness(t)
	issued := h.register(t, "ana@example.com", model.HiveTypeFamily)

	me, err := h.svc.Me(ctx, h.claims(t, issued))
	require.NoError(t, err)
	require.Equal(t, issued.Payload.Hive.ID, me.Hive.ID)
	require.Equal(t, model.RoleParent, me.Role)
	require.Len(t, me.Hives, 1)

	h.advance(8 * 24 * time.Hour)
	h.svc.CleanupExpired(ctx)

	_, err = h.store.Sessions.FindByID(ctx, issued.SessionID)
	require.ErrorIs(t, err, model.ErrSessionNotFound)
}
