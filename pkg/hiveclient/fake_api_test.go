package hiveclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

func fakeToken(claims map[string]any) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	raw, _ := json.Marshal(claims)
	return header + "." + base64.RawURLEncoding.EncodeToString(raw) + ".c2ln"
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var errUnauthorized = &APIError{Status: http.StatusUnauthorized, Code: "UNAUTHORIZED", Message: "Session is not active"}

// fakeAPI issues tokens that expire 15 minutes after the fake clock's now.
type fakeAPI struct {
	clock clockwork.Clock

	mu           sync.Mutex
	issued       int
	refreshCalls int
	loginCalls   int
	logoutTokens []string
	loginToken   string
	loginErr     error
	refreshErr   error
	switchErr    error
	refreshGate  chan struct{}
	logoutGate   chan struct{}

	authOptionCalls int
	verifiedIDs     []string
	verifyErr       error
	regOptionsCalls int
	verifyRegErr    error
}

func newFakeAPI(clock clockwork.Clock) *fakeAPI {
	return &fakeAPI{clock: clock}
}

func (f *fakeAPI) tokenLocked() string {
	f.issued++
	return fakeToken(map[string]any{
		"sub": "user-1",
		"jti": fmt.Sprintf("tok-%d", f.issued),
		"exp": f.clock.Now().Add(15 * time.Minute).Unix(),
	})
}

func (f *fakeAPI) payloadLocked(hiveID string) AuthPayload {
	var p AuthPayload
	p.User.ID = "user-1"
	p.User.Email = "a@b.com"
	p.User.DisplayName = "A"
	p.Hive.ID = hiveID
	p.Hive.Name = "Hive " + hiveID
	p.Hive.Type = "family"
	p.PersonID = "person-" + hiveID
	p.Locale = "en"
	p.AccessToken = f.tokenLocked()
	return p
}

func (f *fakeAPI) Login(_ context.Context, _ string, _ string) (AuthPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.loginCalls++
	if f.loginErr != nil {
		return AuthPayload{}, f.loginErr
	}
	p := f.payloadLocked("h1")
	if f.loginToken != "" {
		p.AccessToken = f.loginToken
	}
	return p, nil
}

func (f *fakeAPI) Register(ctx context.Context, in RegisterInput) (AuthPayload, error) {
	return f.Login(ctx, in.Email, in.Password)
}

func (f *fakeAPI) RegisterWithInvitation(ctx context.Context, in RegisterInput) (AuthPayload, error) {
	return f.Login(ctx, in.Email, in.Password)
}

func (f *fakeAPI) Refresh(ctx context.Context) (AuthPayload, error) {
	f.mu.Lock()
	f.refreshCalls++
	gate := f.refreshGate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err := ctx.Err(); err != nil {
		return AuthPayload{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refreshErr != nil {
		return AuthPayload{}, f.refreshErr
	}
	return f.payloadLocked("h1"), nil
}

func (f *fakeAPI) SwitchHive(_ context.Context, hiveID string) (SwitchPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.switchErr != nil {
		return SwitchPayload{}, f.switchErr
	}
	return SwitchPayload{
		AccessToken: f.tokenLocked(),
		HiveID:      hiveID,
		HiveName:    "Hive " + hiveID,
		PersonID:    "person-" + hiveID,
		Locale:      "de",
	}, nil
}

func (f *fakeAPI) Logout(_ context.Context, accessToken string) error {
	f.mu.Lock()
	gate := f.logoutGate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutTokens = append(f.logoutTokens, accessToken)
	return nil
}

func (f *fakeAPI) PasskeyAuthOptions(_ context.Context, _ string) (PasskeyAuthOptions, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.authOptionCalls++
	return PasskeyAuthOptions{
		Options:   json.RawMessage(`{"publicKey":{"challenge":"abc"}}`),
		SessionID: fmt.Sprintf("ceremony-%d", f.authOptionCalls),
	}, nil
}

func (f *fakeAPI) PasskeyVerifyAuth(_ context.Context, sessionID string, _ json.RawMessage) (AuthPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.verifiedIDs = append(f.verifiedIDs, sessionID)
	if f.verifyErr != nil {
		return AuthPayload{}, f.verifyErr
	}
	return f.payloadLocked("h1"), nil
}

func (f *fakeAPI) PasskeyRegOptions(_ context.Context) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.regOptionsCalls++
	return json.RawMessage(`{"publicKey":{"challenge":"reg"}}`), nil
}

func (f *fakeAPI) PasskeyVerifyReg(_ context.Context, _ json.RawMessage, deviceName string) (PasskeySummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.verifyRegErr != nil {
		return PasskeySummary{}, f.verifyRegErr
	}
	return PasskeySummary{ID: "cred-1", DeviceName: deviceName, CreatedAt: f.clock.Now()}, nil
}

func (f *fakeAPI) refreshes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls
}

func (f *fakeAPI) logins() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginCalls
}

func (f *fakeAPI) loggedOut() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.logoutTokens...)
}

func (f *fakeAPI) verified() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.verifiedIDs...)
}

func (f *fakeAPI) set(fn func(f *fakeAPI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}
