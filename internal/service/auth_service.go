package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"hive-auth/internal/event"
	"hive-auth/internal/metrics"
	"hive-auth/internal/model"
	"hive-auth/internal/security"
	"hive-auth/internal/util"
	"hive-auth/pkg/apierror"
)

const (
	minPasswordLength = 8
	maxLabelRunes     = 100
)

var (
	errInvalidCredentials = apierror.New("INVALID_CREDENTIALS", "invalid email or password", "", http.StatusUnauthorized)
	errSessionInactive    = apierror.Unauthorized("session is not active")
	errInvalidInvite      = apierror.New("INVALID_OR_EXPIRED_INVITE", "invitation is invalid or has expired", "", http.StatusBadRequest)
	errEmailTaken         = apierror.New("EMAIL_TAKEN", "an account with this email already exists", "", http.StatusConflict)
	errNoMembership       = apierror.Forbidden("account has no hive membership")
)

// ErrRefreshRotated is returned for a refresh token that was rotated within
// the reuse grace window. The session stays active.
var ErrRefreshRotated = apierror.Unauthorized("refresh token was already rotated")

type AuthConfig struct {
	RefreshTTL    time.Duration
	ReuseGrace    time.Duration
	InviteTTL     time.Duration
	BcryptCost    int
	DefaultLocale string
}

type AuthService struct {
	cfg     AuthConfig
	stores  Stores
	tokens  *security.TokenIssuer
	authz   Authorizer
	bus     event.Bus
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewAuthService(cfg AuthConfig, stores Stores, tokens *security.TokenIssuer, authz Authorizer, bus event.Bus) *AuthService {
	if cfg.DefaultLocale == "" {
		cfg.DefaultLocale = "en"
	}
	if authz == nil {
		authz = NewRoleAuthorizer()
	}
	if bus == nil {
		bus = event.Nop{}
	}

	return &AuthService{
		cfg:    cfg,
		stores: stores,
		tokens: tokens,
		authz:  authz,
		bus:    bus,
		now:    time.Now,
	}
}

func (s *AuthService) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

func (s *AuthService) Login(ctx context.Context, email string, password string, dev model.DeviceInfo) (model.IssuedSession, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return model.IssuedSession{}, apierror.Validation("email and password are required", "")
	}

	user, err := s.stores.Users.FindByEmail(ctx, email)
	if errors.Is(err, model.ErrUserNotFound) {
		security.BurnPasswordCheck(password)
		s.publish(event.Event{Type: event.TypeLoginFailed, IP: dev.IP, Payload: map[string]any{"reason": "unknown_email"}})
		return model.IssuedSession{}, errInvalidCredentials
	}
	if err != nil {
		return model.IssuedSession{}, err
	}

	if !security.CheckPassword(user.PasswordHash, password) {
		s.publish(event.Event{Type: event.TypeLoginFailed, ActorID: user.ID, IP: dev.IP, Payload: map[string]any{"reason": "bad_password"}})
		return model.IssuedSession{}, errInvalidCredentials
	}

	return s.startSession(ctx, user, dev)
}

func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest, dev model.DeviceInfo) (model.IssuedSession, error) {
	if err := validateAccount(req); err != nil {
		return model.IssuedSession{}, err
	}

	hiveName, err := util.Label(req.HiveName, "hive_name", maxLabelRunes)
	if err != nil {
		return model.IssuedSession{}, err
	}
	if !req.HiveType.Valid() {
		return model.IssuedSession{}, apierror.Validation("hive type must be family or organization", "hive_type")
	}

	user, err := s.createUser(ctx, req)
	if err != nil {
		return model.IssuedSession{}, err
	}

	now := s.now().UTC()
	hive := model.Hive{ID: uuid.NewString(), Name: hiveName, Type: req.HiveType, CreatedAt: now}
	owner := model.Person{
		ID:          uuid.NewString(),
		HiveID:      hive.ID,
		UserID:      user.ID,
		DisplayName: user.DisplayName,
		Role:        req.HiveType.OwnerRole(),
		CreatedAt:   now,
	}
	if err := s.stores.Hives.CreateWithOwner(ctx, hive, owner); err != nil {
		return model.IssuedSession{}, err
	}
	if err := s.stores.Users.SetLastHive(ctx, user.ID, hive.ID); err != nil {
		return model.IssuedSession{}, err
	}
	user.LastHiveID = hive.ID

	s.publish(event.Event{Type: event.TypeUserRegistered, ActorID: user.ID, HiveID: hive.ID, IP: dev.IP,
		Payload: map[string]any{"hive_type": string(hive.Type), "via": "register"}})

	return s.startSession(ctx, user, dev)
}

func (s *AuthService) RegisterWithInvitation(ctx context.Context, req model.RegisterRequest, dev model.DeviceInfo) (model.IssuedSession, error) {
	if err := validateAccount(req); err != nil {
		return model.IssuedSession{}, err
	}

	token := strings.TrimSpace(req.InviteToken)
	if token == "" {
		return model.IssuedSession{}, errInvalidInvite
	}

	now := s.now().UTC()
	inv, err := s.stores.Invitations.FindUsable(ctx, security.HashToken(token), now)
	if errors.Is(err, model.ErrInvitationInvalid) {
		return model.IssuedSession{}, errInvalidInvite
	}
	if err != nil {
		return model.IssuedSession{}, err
	}
	if inv.Email != "" && !strings.EqualFold(inv.Email, normalizeEmail(req.AdminEmail)) {
		return model.IssuedSession{}, errInvalidInvite
	}

	hive, err := s.stores.Hives.FindByID(ctx, inv.HiveID)
	if errors.Is(err, model.ErrHiveNotFound) {
		return model.IssuedSession{}, errInvalidInvite
	}
	if err != nil {
		return model.IssuedSession{}, err
	}

	user, err := s.createUser(ctx, req)
	if err != nil {
		return model.IssuedSession{}, err
	}

	if err := s.stores.Invitations.Consume(ctx, inv.ID, user.ID, now); err != nil {
		if errors.Is(err, model.ErrInvitationInvalid) {
			return model.IssuedSession{}, errInvalidInvite
		}
		return model.IssuedSession{}, err
	}

	person := model.Person{
		ID:          uuid.NewString(),
		HiveID:      hive.ID,
		UserID:      user.ID,
		DisplayName: user.DisplayName,
		Role:        inv.Role,
		CreatedAt:   now,
	}
	if err := s.stores.Hives.AddPerson(ctx, person); err != nil {
		return model.IssuedSession{}, err
	}
	if err := s.stores.Users.SetLastHive(ctx, user.ID, hive.ID); err != nil {
		return model.IssuedSession{}, err
	}
	user.LastHiveID = hive.ID

	s.publish(event.Event{Type: event.TypeUserRegistered, ActorID: user.ID, HiveID: hive.ID, IP: dev.IP,
		Payload: map[string]any{"invitation_id": inv.ID, "via": "invitation"}})

	return s.startSession(ctx, user, dev)
}

// Refresh rotates the presented refresh token and mints a new access token
// for the user's active hive.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, dev model.DeviceInfo) (model.IssuedSession, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return model.IssuedSession{}, errSessionInactive
	}

	if s.metrics != nil {
		s.metrics.ActiveRefreshes.Inc()
		defer s.metrics.ActiveRefreshes.Dec()
	}

	next, err := security.NewOpaqueToken(security.RefreshTokenBytes)
	if err != nil {
		return model.IssuedSession{}, err
	}

	now := s.now().UTC()
	sess, err := s.stores.Sessions.Rotate(ctx, model.RotateParams{
		PresentedHash: security.HashToken(refreshToken),
		NewHash:       security.HashToken(next),
		Now:           now,
		TTL:           s.cfg.RefreshTTL,
		ReuseGrace:    s.cfg.ReuseGrace,
	})
	switch {
	case errors.Is(err, model.ErrRefreshReuseDetected):
		slog.Warn("auth.refresh.reuse_detected", "session_id", sess.ID, "user_id", sess.UserID, "ip", dev.IP)
		s.publish(event.Event{Type: event.TypeSessionReuseDetected, ActorID: sess.UserID, SessionID: sess.ID, IP: dev.IP})
		return model.IssuedSession{}, errSessionInactive
	case errors.Is(err, model.ErrRefreshReused):
		slog.Info("auth.refresh.superseded", "session_id", sess.ID, "ip", dev.IP)
		return model.IssuedSession{}, ErrRefreshRotated
	case errors.Is(err, model.ErrSessionNotFound),
		errors.Is(err, model.ErrSessionRevoked),
		errors.Is(err, model.ErrSessionExpired):
		return model.IssuedSession{}, errSessionInactive
	case err != nil:
		return model.IssuedSession{}, err
	}

	user, err := s.stores.Users.FindByID(ctx, sess.UserID)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.IssuedSession{}, errSessionInactive
	}
	if err != nil {
		return model.IssuedSession{}, err
	}

	membership, err := s.activeMembership(ctx, user)
	if err != nil {
		return model.IssuedSession{}, err
	}

	payload, err := s.payload(user, membership, sess.ID)
	if err != nil {
		return model.IssuedSession{}, err
	}

	s.publish(event.Event{Type: event.TypeSessionRefreshed, ActorID: user.ID, HiveID: membership.Hive.ID, SessionID: sess.ID, IP: dev.IP})

	return model.IssuedSession{
		Payload:          payload,
		SessionID:        sess.ID,
		RefreshToken:     next,
		RefreshExpiresAt: sess.ExpiresAt,
	}, nil
}

// SwitchHive re-scopes the caller to another hive. Only a new access token
// is minted; the session record and its refresh token are left alone.
func (s *AuthService) SwitchHive(ctx context.Context, claims *model.AuthClaims, hiveID string) (model.SwitchPayload, error) {
	hiveID = strings.TrimSpace(hiveID)
	if hiveID == "" {
		return model.SwitchPayload{}, apierror.Validation("hive id is required", "hive_id")
	}

	hive, err := s.stores.Hives.FindByID(ctx, hiveID)
	if errors.Is(err, model.ErrHiveNotFound) {
		return model.SwitchPayload{}, apierror.NotFound("hive not found", hiveID)
	}
	if err != nil {
		return model.SwitchPayload{}, err
	}

	person, err := s.stores.Hives.FindPerson(ctx, hive.ID, claims.UserID)
	if errors.Is(err, model.ErrNotHiveMember) {
		return model.SwitchPayload{}, apierror.Forbidden("not a member of this hive")
	}
	if err != nil {
		return model.SwitchPayload{}, err
	}

	user, err := s.stores.Users.FindByID(ctx, claims.UserID)
	if err != nil {
		return model.SwitchPayload{}, err
	}

	token, exp, err := s.tokens.Issue(security.AccessSubject{
		UserID:    user.ID,
		HiveID:    hive.ID,
		PersonID:  person.ID,
		SessionID: claims.SessionID,
	})
	if err != nil {
		return model.SwitchPayload{}, err
	}

	if err := s.stores.Users.SetLastHive(ctx, user.ID, hive.ID); err != nil {
		return model.SwitchPayload{}, err
	}

	s.publish(event.Event{Type: event.TypeHiveSwitched, ActorID: user.ID, HiveID: hive.ID, SessionID: claims.SessionID,
		Payload: map[string]any{"from_hive_id": claims.HiveID}})

	return model.SwitchPayload{
		AccessToken:          token,
		AccessTokenExpiresAt: exp,
		HiveID:               hive.ID,
		HiveName:             hive.Name,
		PersonID:             person.ID,
		Locale:               s.locale(user, hive),
	}, nil
}

// Logout revokes the session named by the refresh cookie, or failing that
// by the access token. It never fails; errors are only logged.
func (s *AuthService) Logout(ctx context.Context, refreshToken string, claims *model.AuthClaims, dev model.DeviceInfo) {
	var sessionID, userID string
	if refreshToken = strings.TrimSpace(refreshToken); refreshToken != "" {
		if sess, err := s.stores.Sessions.FindByTokenHash(ctx, security.HashToken(refreshToken)); err == nil {
			sessionID, userID = sess.ID, sess.UserID
		}
	}
	if sessionID == "" && claims != nil {
		sessionID, userID = claims.SessionID, claims.UserID
	}
	if sessionID == "" {
		return
	}

	err := s.stores.Sessions.Revoke(ctx, sessionID, model.RevokeReasonLogout, s.now().UTC())
	if errors.Is(err, model.ErrSessionNotFound) {
		return
	}
	if err != nil {
		slog.Warn("auth.logout.revoke_failed", "session_id", sessionID, "error", err)
		return
	}

	s.publish(event.Event{Type: event.TypeSessionRevoked, ActorID: userID, SessionID: sessionID, IP: dev.IP,
		Payload: map[string]any{"reason": model.RevokeReasonLogout}})
}

func (s *AuthService) LogoutAll(ctx context.Context, claims *model.AuthClaims) (int64, error) {
	n, err := s.stores.Sessions.RevokeAllForUser(ctx, claims.UserID, model.RevokeReasonLogoutAll, s.now().UTC())
	if err != nil {
		return 0, err
	}

	s.publish(event.Event{Type: event.TypeSessionRevoked, ActorID: claims.UserID, SessionID: claims.SessionID,
		Payload: map[string]any{"reason": model.RevokeReasonLogoutAll, "count": n}})
	return n, nil
}

func (s *AuthService) ListSessions(ctx context.Context, claims *model.AuthClaims) ([]model.SessionSummary, error) {
	sessions, err := s.stores.Sessions.ListActiveForUser(ctx, claims.UserID, s.now().UTC())
	if err != nil {
		return nil, err
	}

	out := make([]model.SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, model.SessionSummary{
			ID:         sess.ID,
			Current:    sess.ID == claims.SessionID,
			UserAgent:  sess.UserAgent,
			IP:         sess.IP,
			CreatedAt:  sess.CreatedAt,
			LastUsedAt: sess.LastUsedAt,
			ExpiresAt:  sess.ExpiresAt,
		})
	}
	return out, nil
}

func (s *AuthService) RevokeSession(ctx context.Context, claims *model.AuthClaims, sessionID string) error {
	sess, err := s.stores.Sessions.FindByID(ctx, sessionID)
	if errors.Is(err, model.ErrSessionNotFound) || (err == nil && sess.UserID != claims.UserID) {
		return apierror.NotFound("session not found", sessionID)
	}
	if err != nil {
		return err
	}

	if err := s.stores.Sessions.Revoke(ctx, sess.ID, model.RevokeReasonLogout, s.now().UTC()); err != nil {
		if errors.Is(err, model.ErrSessionNotFound) {
			return apierror.NotFound("session not found", sessionID)
		}
		return err
	}

	s.publish(event.Event{Type: event.TypeSessionRevoked, ActorID: claims.UserID, SessionID: sess.ID,
		Payload: map[string]any{"reason": model.RevokeReasonLogout, "by_session_id": claims.SessionID}})
	return nil
}

func (s *AuthService) Me(ctx context.Context, claims *model.AuthClaims) (model.MeView, error) {
	user, err := s.stores.Users.FindByID(ctx, claims.UserID)
	if err != nil {
		return model.MeView{}, err
	}

	memberships, err := s.stores.Hives.ListMemberships(ctx, user.ID)
	if err != nil {
		return model.MeView{}, err
	}

	view := model.MeView{User: user.View(), PersonID: claims.PersonID, Hives: make([]model.MembershipView, 0, len(memberships))}
	for _, m := range memberships {
		view.Hives = append(view.Hives, model.MembershipView{
			HiveID:   m.Hive.ID,
			HiveName: m.Hive.Name,
			HiveType: m.Hive.Type,
			PersonID: m.Person.ID,
			Role:     m.Person.Role,
		})
		if m.Hive.ID == claims.HiveID {
			view.Hive = m.Hive.View()
			view.Role = m.Person.Role
			view.Locale = s.locale(user, m.Hive)
		}
	}
	if view.Hive.ID == "" {
		return model.MeView{}, apierror.Forbidden("not a member of this hive")
	}

	return view, nil
}

func (s *AuthService) CreateInvitation(ctx context.Context, claims *model.AuthClaims, req model.CreateInvitationRequest) (model.InvitationCreated, error) {
	hive, err := s.stores.Hives.FindByID(ctx, claims.HiveID)
	if errors.Is(err, model.ErrHiveNotFound) {
		return model.InvitationCreated{}, apierror.NotFound("hive not found", claims.HiveID)
	}
	if err != nil {
		return model.InvitationCreated{}, err
	}

	person, err := s.stores.Hives.FindPerson(ctx, hive.ID, claims.UserID)
	if errors.Is(err, model.ErrNotHiveMember) {
		return model.InvitationCreated{}, apierror.Forbidden("not a member of this hive")
	}
	if err != nil {
		return model.InvitationCreated{}, err
	}

	overrides, err := s.stores.Hives.ListPermissionOverrides(ctx, hive.ID)
	if err != nil {
		return model.InvitationCreated{}, err
	}
	if !s.authz.Allowed(hive.Type, person.Role, model.PermissionMembersInvite, overrides) {
		return model.InvitationCreated{}, apierror.New("FORBIDDEN", "missing permission", string(model.PermissionMembersInvite), http.StatusForbidden)
	}

	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = defaultMemberRole(hive.Type)
	}
	if !model.ValidRole(hive.Type, role) {
		return model.InvitationCreated{}, apierror.Validation("role is not valid for this hive", "role")
	}

	email := normalizeEmail(req.Email)
	if email != "" && !validEmail(email) {
		return model.InvitationCreated{}, apierror.Validation("email is not valid", "email")
	}

	token, err := security.NewOpaqueToken(security.InviteTokenBytes)
	if err != nil {
		return model.InvitationCreated{}, err
	}

	now := s.now().UTC()
	inv := model.Invitation{
		ID:        uuid.NewString(),
		HiveID:    hive.ID,
		Email:     email,
		Role:      role,
		TokenHash: security.HashToken(token),
		CreatedBy: claims.UserID,
		ExpiresAt: now.Add(s.cfg.InviteTTL),
		CreatedAt: now,
	}
	if err := s.stores.Invitations.Create(ctx, inv); err != nil {
		return model.InvitationCreated{}, err
	}

	s.publish(event.Event{Type: event.TypeInvitationCreated, ActorID: claims.UserID, HiveID: hive.ID,
		Payload: map[string]any{"invitation_id": inv.ID, "role": role}})

	return model.InvitationCreated{ID: inv.ID, Token: token, Role: role, Email: email, ExpiresAt: inv.ExpiresAt}, nil
}

// ValidateAccessToken checks the JWT and that the session behind it has not
// been revoked.
func (s *AuthService) ValidateAccessToken(ctx context.Context, token string) (*model.AuthClaims, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, apierror.Unauthorized("invalid or expired token")
	}

	sess, err := s.stores.Sessions.FindByID(ctx, claims.SessionID)
	if errors.Is(err, model.ErrSessionNotFound) {
		return nil, errSessionInactive
	}
	if err != nil {
		return nil, err
	}
	if !sess.Active(s.now().UTC()) {
		return nil, errSessionInactive
	}

	return claims, nil
}

func (s *AuthService) IsSystemAdmin(ctx context.Context, userID string) (bool, error) {
	user, err := s.stores.Users.FindByID(ctx, userID)
	if errors.Is(err, model.ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return user.IsSystemAdmin, nil
}

func (s *AuthService) CleanupExpired(ctx context.Context) {
	now := s.now().UTC()

	if n, err := s.stores.Sessions.CleanExpired(ctx, now); err != nil {
		slog.Warn("cleanup.sessions.fail", "error", err)
	} else if n > 0 {
		slog.Info("cleanup.sessions", "removed", n)
	}
	if n, err := s.stores.Challenges.CleanExpired(ctx, now); err != nil {
		slog.Warn("cleanup.challenges.fail", "error", err)
	} else if n > 0 {
		slog.Info("cleanup.challenges", "removed", n)
	}
	if n, err := s.stores.Invitations.CleanExpired(ctx, now); err != nil {
		slog.Warn("cleanup.invitations.fail", "error", err)
	} else if n > 0 {
		slog.Info("cleanup.invitations", "removed", n)
	}
}

// StartCleanupTicker runs CleanupExpired on a regular interval until ctx is cancelled.
func (s *AuthService) StartCleanupTicker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.CleanupExpired(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CleanupExpired(ctx)
		}
	}
}

func (s *AuthService) startSession(ctx context.Context, user model.User, dev model.DeviceInfo) (model.IssuedSession, error) {
	membership, err := s.activeMembership(ctx, user)
	if err != nil {
		return model.IssuedSession{}, err
	}

	refreshToken, err := security.NewOpaqueToken(security.RefreshTokenBytes)
	if err != nil {
		return model.IssuedSession{}, err
	}

	now := s.now().UTC()
	sess := model.Session{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		TokenHash:  security.HashToken(refreshToken),
		CreatedAt:  now,
		RotatedAt:  now,
		LastUsedAt: now,
		ExpiresAt:  now.Add(s.cfg.RefreshTTL),
		UserAgent:  util.CleanLabel(dev.UserAgent, 512),
		IP:         dev.IP,
	}
	if err := s.stores.Sessions.Create(ctx, sess); err != nil {
		return model.IssuedSession{}, err
	}

	payload, err := s.payload(user, membership, sess.ID)
	if err != nil {
		return model.IssuedSession{}, err
	}

	s.publish(event.Event{Type: event.TypeSessionCreated, ActorID: user.ID, HiveID: membership.Hive.ID, SessionID: sess.ID, IP: dev.IP})

	return model.IssuedSession{
		Payload:          payload,
		SessionID:        sess.ID,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: sess.ExpiresAt,
	}, nil
}

// activeMembership picks the hive a fresh token is scoped to: the last hive
// the user switched to while still a member, else the oldest membership.
func (s *AuthService) activeMembership(ctx context.Context, user model.User) (model.Membership, error) {
	memberships, err := s.stores.Hives.ListMemberships(ctx, user.ID)
	if err != nil {
		return model.Membership{}, err
	}
	if len(memberships) == 0 {
		return model.Membership{}, errNoMembership
	}

	for _, m := range memberships {
		if m.Hive.ID == user.LastHiveID {
			return m, nil
		}
	}
	return memberships[0], nil
}

func (s *AuthService) payload(user model.User, m model.Membership, sessionID string) (model.AuthPayload, error) {
	token, exp, err := s.tokens.Issue(security.AccessSubject{
		UserID:    user.ID,
		HiveID:    m.Hive.ID,
		PersonID:  m.Person.ID,
		SessionID: sessionID,
	})
	if err != nil {
		return model.AuthPayload{}, err
	}

	return model.AuthPayload{
		User:                 user.View(),
		Hive:                 m.Hive.View(),
		PersonID:             m.Person.ID,
		AccessToken:          token,
		AccessTokenExpiresAt: exp,
		Locale:               s.locale(user, m.Hive),
	}, nil
}

func (s *AuthService) locale(user model.User, hive model.Hive) string {
	if user.Locale != "" {
		return user.Locale
	}
	if hive.Locale != "" {
		return hive.Locale
	}
	return s.cfg.DefaultLocale
}

func (s *AuthService) createUser(ctx context.Context, req model.RegisterRequest) (model.User, error) {
	hash, err := security.HashPassword(req.AdminPassword, s.cfg.BcryptCost)
	if err != nil {
		return model.User{}, err
	}

	now := s.now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Email:        normalizeEmail(req.AdminEmail),
		PasswordHash: hash,
		DisplayName:  util.CleanLabel(req.AdminName, maxLabelRunes),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.stores.Users.Create(ctx, user); err != nil {
		if errors.Is(err, model.ErrEmailTaken) {
			return model.User{}, errEmailTaken
		}
		return model.User{}, fmt.Errorf("register user: %w", err)
	}
	return user, nil
}

func (s *AuthService) publish(e event.Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now().UTC()
	}
	s.bus.Publish(e)
}

func validateAccount(req model.RegisterRequest) error {
	if !validEmail(normalizeEmail(req.AdminEmail)) {
		return apierror.Validation("a valid email is required", "admin_email")
	}
	if len(req.AdminPassword) < minPasswordLength {
		return apierror.Validation(fmt.Sprintf("password must be at least %d characters", minPasswordLength), "admin_password")
	}
	_, err := util.Label(req.AdminName, "admin_name", maxLabelRunes)
	return err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func defaultMemberRole(t model.HiveType) string {
	if t == model.HiveTypeOrganization {
		return model.RoleMember
	}
	return model.RoleChild
}

