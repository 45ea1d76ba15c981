package security

import (
	"bytes"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
)

// PasskeyUser adapts an account to the webauthn.User interface. The user
// handle is the account id.
type PasskeyUser struct {
	ID          string
	Name        string
	DisplayName string
	Credentials []webauthn.Credential
}

func (u *PasskeyUser) WebAuthnID() []byte                         { return []byte(u.ID) }
func (u *PasskeyUser) WebAuthnName() string                       { return u.Name }
func (u *PasskeyUser) WebAuthnDisplayName() string                { return u.DisplayName }
func (u *PasskeyUser) WebAuthnCredentials() []webauthn.Credential { return u.Credentials }

type RelyingPartyConfig struct {
	ID          string
	DisplayName string
	Origins     []string
}

// RelyingParty wraps go-webauthn so callers deal in raw client JSON instead
// of parsed protocol structures.
type RelyingParty struct {
	wa *webauthn.WebAuthn
}

func NewRelyingParty(cfg RelyingPartyConfig) (*RelyingParty, error) {
	wa, err := webauthn.New(&webauthn.Config{
		RPID:          cfg.ID,
		RPDisplayName: cfg.DisplayName,
		RPOrigins:     cfg.Origins,
	})
	if err != nil {
		return nil, fmt.Errorf("configure webauthn: %w", err)
	}

	return &RelyingParty{wa: wa}, nil
}

func (rp *RelyingParty) BeginLogin(user webauthn.User) (*protocol.CredentialAssertion, *webauthn.SessionData, error) {
	return rp.wa.BeginLogin(user, webauthn.WithUserVerification(protocol.VerificationPreferred))
}

func (rp *RelyingParty) BeginDiscoverableLogin() (*protocol.CredentialAssertion, *webauthn.SessionData, error) {
	return rp.wa.BeginDiscoverableLogin(webauthn.WithUserVerification(protocol.VerificationPreferred))
}

func (rp *RelyingParty) FinishLogin(user webauthn.User, session webauthn.SessionData, response []byte) (*webauthn.Credential, error) {
	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(response))
	if err != nil {
		return nil, fmt.Errorf("parse assertion: %w", err)
	}
	return rp.wa.ValidateLogin(user, session, parsed)
}

func (rp *RelyingParty) FinishDiscoverableLogin(lookup webauthn.DiscoverableUserHandler, session webauthn.SessionData, response []byte) (*webauthn.Credential, error) {
	parsed, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(response))
	if err != nil {
		return nil, fmt.Errorf("parse assertion: %w", err)
	}
	return rp.wa.ValidateDiscoverableLogin(lookup, session, parsed)
}

func (rp *RelyingParty) BeginRegistration(user webauthn.User, exclude []protocol.CredentialDescriptor) (*protocol.CredentialCreation, *webauthn.SessionData, error) {
	return rp.wa.BeginRegistration(user,
		webauthn.WithExclusions(exclude),
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementPreferred),
	)
}

func (rp *RelyingParty) FinishRegistration(user webauthn.User, session webauthn.SessionData, response []byte) (*webauthn.Credential, error) {
	parsed, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(response))
	if err != nil {
		return nil, fmt.Errorf("parse attestation: %w", err)
	}
	return rp.wa.CreateCredential(user, session, parsed)
}
