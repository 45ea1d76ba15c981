package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/oklog/ulid/v2"

	"hive-auth/internal/event"
	"hive-auth/internal/model"
	"hive-auth/internal/security"
	"hive-auth/internal/util"
	"hive-auth/pkg/apierror"
)

var errVerificationFailed = apierror.New("VERIFICATION_FAILED", "passkey verification failed", "", http.StatusBadRequest)

// RelyingParty is the WebAuthn server side. *security.RelyingParty
// satisfies it.
type RelyingParty interface {
	BeginLogin(user webauthn.User) (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	BeginDiscoverableLogin() (*protocol.CredentialAssertion, *webauthn.SessionData, error)
	FinishLogin(user webauthn.User, session webauthn.SessionData, response []byte) (*webauthn.Credential, error)
	FinishDiscoverableLogin(lookup webauthn.DiscoverableUserHandler, session webauthn.SessionData, response []byte) (*webauthn.Credential, error)
	BeginRegistration(user webauthn.User, exclude []protocol.CredentialDescriptor) (*protocol.CredentialCreation, *webauthn.SessionData, error)
	FinishRegistration(user webauthn.User, session webauthn.SessionData, response []byte) (*webauthn.Credential, error)
}

type PasskeyService struct {
	auth         *AuthService
	stores       Stores
	rp           RelyingParty
	challengeTTL time.Duration
	now          func() time.Time
}

func NewPasskeyService(auth *AuthService, rp RelyingParty, challengeTTL time.Duration) *PasskeyService {
	if challengeTTL <= 0 {
		challengeTTL = 5 * time.Minute
	}

	return &PasskeyService{
		auth:         auth,
		stores:       auth.stores,
		rp:           rp,
		challengeTTL: challengeTTL,
		now:          auth.now,
	}
}

// GenerateAuthOptions starts a login ceremony. A known email with stored
// credentials narrows allowCredentials; anything else gets a discoverable
// ceremony so the response does not reveal whether the account exists.
func (s *PasskeyService) GenerateAuthOptions(ctx context.Context, email string) (model.PasskeyAuthOptions, error) {
	var (
		assertion *protocol.CredentialAssertion
		session   *webauthn.SessionData
		userID    string
		err       error
	)

	if email = normalizeEmail(email); email != "" {
		user, findErr := s.stores.Users.FindByEmail(ctx, email)
		switch {
		case findErr == nil:
			pu, loadErr := s.passkeyUser(ctx, user)
			if loadErr != nil {
				return model.PasskeyAuthOptions{}, loadErr
			}
			if len(pu.Credentials) > 0 {
				assertion, session, err = s.rp.BeginLogin(pu)
				if err != nil {
					return model.PasskeyAuthOptions{}, fmt.Errorf("begin passkey login: %w", err)
				}
				userID = user.ID
			}
		case !errors.Is(findErr, model.ErrUserNotFound):
			return model.PasskeyAuthOptions{}, findErr
		}
	}

	if assertion == nil {
		assertion, session, err = s.rp.BeginDiscoverableLogin()
		if err != nil {
			return model.PasskeyAuthOptions{}, fmt.Errorf("begin passkey login: %w", err)
		}
	}

	id, err := s.putChallenge(ctx, model.ChallengeAuthentication, userID, session)
	if err != nil {
		return model.PasskeyAuthOptions{}, err
	}

	return model.PasskeyAuthOptions{Options: assertion, SessionID: id}, nil
}

// VerifyAuth completes a login ceremony. The challenge is consumed before
// verification, so a session id works at most once.
func (s *PasskeyService) VerifyAuth(ctx context.Context, sessionID string, response json.RawMessage, dev model.DeviceInfo) (model.IssuedSession, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" || len(response) == 0 {
		return model.IssuedSession{}, errVerificationFailed
	}

	sd, challenge, err := s.takeChallenge(ctx, func() (model.Challenge, error) {
		return s.stores.Challenges.Take(ctx, sessionID, model.ChallengeAuthentication)
	})
	if err != nil {
		return model.IssuedSession{}, err
	}

	var (
		user model.User
		cred *webauthn.Credential
	)
	if challenge.UserID != "" {
		user, err = s.stores.Users.FindByID(ctx, challenge.UserID)
		if err != nil {
			return model.IssuedSession{}, s.failed(dev, challenge.UserID, err)
		}
		pu, loadErr := s.passkeyUser(ctx, user)
		if loadErr != nil {
			return model.IssuedSession{}, loadErr
		}
		cred, err = s.rp.FinishLogin(pu, sd, response)
	} else {
		lookup := func(_ []byte, userHandle []byte) (webauthn.User, error) {
			found, findErr := s.stores.Users.FindByID(ctx, string(userHandle))
			if findErr != nil {
				return nil, findErr
			}
			user = found
			return s.passkeyUser(ctx, found)
		}
		cred, err = s.rp.FinishDiscoverableLogin(lookup, sd, response)
	}
	if err != nil {
		return model.IssuedSession{}, s.failed(dev, user.ID, err)
	}

	id := credentialID(cred.ID)
	stored, err := s.stores.Passkeys.FindByID(ctx, id)
	if err != nil || stored.UserID != user.ID {
		return model.IssuedSession{}, s.failed(dev, user.ID, fmt.Errorf("credential %s not registered to user", id))
	}

	raw, err := json.Marshal(cred)
	if err != nil {
		return model.IssuedSession{}, err
	}
	if err := s.stores.Passkeys.RecordUse(ctx, id, raw, s.now().UTC()); err != nil {
		return model.IssuedSession{}, err
	}

	return s.auth.startSession(ctx, user, dev)
}

func (s *PasskeyService) GenerateRegOptions(ctx context.Context, claims *model.AuthClaims) (model.PasskeyRegOptions, error) {
	user, err := s.stores.Users.FindByID(ctx, claims.UserID)
	if err != nil {
		return model.PasskeyRegOptions{}, err
	}

	pu, err := s.passkeyUser(ctx, user)
	if err != nil {
		return model.PasskeyRegOptions{}, err
	}

	exclude := make([]protocol.CredentialDescriptor, 0, len(pu.Credentials))
	for _, c := range pu.Credentials {
		exclude = append(exclude, c.Descriptor())
	}

	creation, session, err := s.rp.BeginRegistration(pu, exclude)
	if err != nil {
		return model.PasskeyRegOptions{}, fmt.Errorf("begin passkey registration: %w", err)
	}

	if _, err := s.putChallenge(ctx, model.ChallengeRegistration, user.ID, session); err != nil {
		return model.PasskeyRegOptions{}, err
	}

	return model.PasskeyRegOptions{Options: creation}, nil
}

func (s *PasskeyService) VerifyReg(ctx context.Context, claims *model.AuthClaims, req model.PasskeyVerifyRegRequest, dev model.DeviceInfo) (model.PasskeySummary, error) {
	if len(req.Response) == 0 {
		return model.PasskeySummary{}, errVerificationFailed
	}

	sd, _, err := s.takeChallenge(ctx, func() (model.Challenge, error) {
		return s.stores.Challenges.TakeForUser(ctx, claims.UserID, model.ChallengeRegistration)
	})
	if err != nil {
		return model.PasskeySummary{}, err
	}

	user, err := s.stores.Users.FindByID(ctx, claims.UserID)
	if err != nil {
		return model.PasskeySummary{}, err
	}
	pu, err := s.passkeyUser(ctx, user)
	if err != nil {
		return model.PasskeySummary{}, err
	}

	cred, err := s.rp.FinishRegistration(pu, sd, req.Response)
	if err != nil {
		return model.PasskeySummary{}, s.failed(dev, user.ID, err)
	}

	raw, err := json.Marshal(cred)
	if err != nil {
		return model.PasskeySummary{}, err
	}

	stored := model.PasskeyCredential{
		ID:         credentialID(cred.ID),
		UserID:     user.ID,
		Credential: raw,
		DeviceName: util.CleanLabel(req.DeviceName, maxLabelRunes),
		CreatedAt:  s.now().UTC(),
	}
	if err := s.stores.Passkeys.Create(ctx, stored); err != nil {
		return model.PasskeySummary{}, err
	}

	s.auth.publish(event.Event{Type: event.TypePasskeyRegistered, ActorID: user.ID, HiveID: claims.HiveID, SessionID: claims.SessionID, IP: dev.IP,
		Payload: map[string]any{"passkey_id": stored.ID}})

	return stored.Summary(), nil
}

func (s *PasskeyService) List(ctx context.Context, claims *model.AuthClaims) ([]model.PasskeySummary, error) {
	creds, err := s.stores.Passkeys.ListForUser(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}

	out := make([]model.PasskeySummary, 0, len(creds))
	for _, c := range creds {
		out = append(out, c.Summary())
	}
	return out, nil
}

func (s *PasskeyService) Remove(ctx context.Context, claims *model.AuthClaims, id string) error {
	err := s.stores.Passkeys.Delete(ctx, claims.UserID, id)
	if errors.Is(err, model.ErrPasskeyNotFound) {
		return apierror.NotFound("passkey not found", id)
	}
	if err != nil {
		return err
	}

	s.auth.publish(event.Event{Type: event.TypePasskeyRemoved, ActorID: claims.UserID, HiveID: claims.HiveID, SessionID: claims.SessionID,
		Payload: map[string]any{"passkey_id": id}})
	return nil
}

func (s *PasskeyService) putChallenge(ctx context.Context, purpose model.ChallengePurpose, userID string, session *webauthn.SessionData) (string, error) {
	data, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("encode ceremony session: %w", err)
	}

	now := s.now().UTC()
	challenge := model.Challenge{
		ID:          ulid.Make().String(),
		Purpose:     purpose,
		UserID:      userID,
		SessionData: data,
		ExpiresAt:   now.Add(s.challengeTTL),
		CreatedAt:   now,
	}
	if err := s.stores.Challenges.Put(ctx, challenge); err != nil {
		return "", err
	}
	return challenge.ID, nil
}

func (s *PasskeyService) takeChallenge(ctx context.Context, take func() (model.Challenge, error)) (webauthn.SessionData, model.Challenge, error) {
	challenge, err := take()
	if errors.Is(err, model.ErrChallengeNotFound) {
		return webauthn.SessionData{}, model.Challenge{}, errVerificationFailed
	}
	if err != nil {
		return webauthn.SessionData{}, model.Challenge{}, err
	}
	if !s.now().UTC().Before(challenge.ExpiresAt) {
		return webauthn.SessionData{}, model.Challenge{}, errVerificationFailed
	}

	var sd webauthn.SessionData
	if err := json.Unmarshal(challenge.SessionData, &sd); err != nil {
		slog.Warn("passkey.challenge.decode_failed", "challenge_id", challenge.ID, "error", err)
		return webauthn.SessionData{}, model.Challenge{}, errVerificationFailed
	}
	return sd, challenge, nil
}

func (s *PasskeyService) passkeyUser(ctx context.Context, user model.User) (*security.PasskeyUser, error) {
	stored, err := s.stores.Passkeys.ListForUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	pu := &security.PasskeyUser{ID: user.ID, Name: user.Email, DisplayName: user.DisplayName}
	for _, p := range stored {
		var cred webauthn.Credential
		if err := json.Unmarshal(p.Credential, &cred); err != nil {
			slog.Warn("passkey.credential.decode_failed", "passkey_id", p.ID, "error", err)
			continue
		}
		pu.Credentials = append(pu.Credentials, cred)
	}
	return pu, nil
}

func (s *PasskeyService) failed(dev model.DeviceInfo, userID string, cause error) error {
	slog.Info("passkey.verify.failed", "user_id", userID, "error", cause)
	s.auth.publish(event.Event{Type: event.TypePasskeyFailed, ActorID: userID, IP: dev.IP})
	return errVerificationFailed
}

func credentialID(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}
