package hiveclient

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotAllowed is what an Authenticator returns when the user dismisses
// or times out the platform prompt.
var ErrNotAllowed = errors.New("hiveclient: authenticator interaction not allowed")

// Authenticator is the platform side of a WebAuthn ceremony. Options and
// results are the JSON forms exchanged with the server.
type Authenticator interface {
	GetAssertion(ctx context.Context, options json.RawMessage) (json.RawMessage, error)
	CreateCredential(ctx context.Context, options json.RawMessage) (json.RawMessage, error)
}

type PasskeyAPI interface {
	PasskeyAuthOptions(ctx context.Context, email string) (PasskeyAuthOptions, error)
	PasskeyVerifyAuth(ctx context.Context, sessionID string, response json.RawMessage) (AuthPayload, error)
	PasskeyRegOptions(ctx context.Context) (json.RawMessage, error)
	PasskeyVerifyReg(ctx context.Context, response json.RawMessage, deviceName string) (PasskeySummary, error)
}

type PasskeyOption func(*PasskeyCoordinator)

// WithCredentialsChanged is called after a passkey is registered so the
// caller can refetch its credential list.
func WithCredentialsChanged(fn func()) PasskeyOption {
	return func(p *PasskeyCoordinator) { p.onCredentialsChanged = fn }
}

// PasskeyCoordinator runs the two-step passkey ceremonies. It keeps no
// state between calls; every attempt starts from fresh server options.
type PasskeyCoordinator struct {
	api                  PasskeyAPI
	platform             Authenticator
	sessions             *Controller
	onCredentialsChanged func()
}

func NewPasskeyCoordinator(api PasskeyAPI, platform Authenticator, sessions *Controller, opts ...PasskeyOption) *PasskeyCoordinator {
	p := &PasskeyCoordinator{api: api, platform: platform, sessions: sessions}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Authenticate signs in with a passkey. email may be empty for a
// discoverable credential.
func (p *PasskeyCoordinator) Authenticate(ctx context.Context, email string) error {
	options, err := p.api.PasskeyAuthOptions(ctx, email)
	if err != nil {
		return serverError(err)
	}

	assertion, err := p.platform.GetAssertion(ctx, options.Options)
	if err != nil {
		return platformError(err)
	}

	err = p.sessions.Establish(ctx, func(ctx context.Context) (AuthPayload, error) {
		return p.api.PasskeyVerifyAuth(ctx, options.SessionID, assertion)
	})
	if err != nil {
		return serverError(err)
	}
	return nil
}

// Register adds a passkey to the signed-in account.
func (p *PasskeyCoordinator) Register(ctx context.Context, deviceName string) (PasskeySummary, error) {
	options, err := p.api.PasskeyRegOptions(ctx)
	if err != nil {
		return PasskeySummary{}, serverError(err)
	}

	attestation, err := p.platform.CreateCredential(ctx, options)
	if err != nil {
		return PasskeySummary{}, platformError(err)
	}

	summary, err := p.api.PasskeyVerifyReg(ctx, attestation, deviceName)
	if err != nil {
		return PasskeySummary{}, serverError(err)
	}

	if p.onCredentialsChanged != nil {
		p.onCredentialsChanged()
	}
	return summary, nil
}

func platformError(err error) *CeremonyError {
	if errors.Is(err, ErrNotAllowed) || errors.Is(err, context.Canceled) {
		return &CeremonyError{Kind: CeremonyCancelled, Err: err}
	}
	return &CeremonyError{Kind: CeremonyFailed, Message: err.Error(), Err: err}
}

func serverError(err error) *CeremonyError {
	if apiErr, ok := asAPIError(err); ok {
		return &CeremonyError{Kind: ServerRejected, Message: apiErr.Message, Err: err}
	}
	return &CeremonyError{Kind: CeremonyFailed, Message: err.Error(), Err: err}
}
