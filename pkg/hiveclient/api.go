// Package hiveclient is the client half of hive authentication: it keeps
// the access token in memory, lets the cookie jar carry the refresh cookie,
// and renews the session before the access token expires.
package hiveclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	pathCSRF            = "/api/v1/auth/csrf"
	pathLogin           = "/api/v1/auth/login"
	pathRegister        = "/api/v1/auth/register"
	pathRegisterInvite  = "/api/v1/auth/register-invite"
	pathRefresh         = "/api/v1/auth/refresh"
	pathSwitchHive      = "/api/v1/auth/switch-hive"
	pathLogout          = "/api/v1/auth/logout"
	pathPasskeys        = "/api/v1/auth/passkeys"
	pathPasskeyAuthOpts = "/api/v1/auth/passkey/auth/options"
	pathPasskeyAuth     = "/api/v1/auth/passkey/auth/verify"
	pathPasskeyRegOpts  = "/api/v1/auth/passkey/register/options"
	pathPasskeyReg      = "/api/v1/auth/passkey/register/verify"
)

// Client speaks the auth RPC API. Credentials travel two ways: the refresh
// cookie through the jar, the access token through Transport.
type Client struct {
	base       *url.URL
	httpClient *http.Client
	tokens     *CredentialStore
	csrf       *CSRFReader

	primeMu sync.Mutex
}

type Option func(*clientOptions)

type clientOptions struct {
	jar        http.CookieJar
	tokens     *CredentialStore
	base       http.RoundTripper
	timeout    time.Duration
	csrfCookie string
	csrfHeader string
}

func WithCookieJar(jar http.CookieJar) Option {
	return func(o *clientOptions) { o.jar = jar }
}

func WithCredentialStore(store *CredentialStore) Option {
	return func(o *clientOptions) { o.tokens = store }
}

// WithRoundTripper sets the transport underneath the credential layer.
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(o *clientOptions) { o.base = rt }
}

func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.timeout = d }
}

func WithCSRFNames(cookieName string, headerName string) Option {
	return func(o *clientOptions) {
		o.csrfCookie = cookieName
		o.csrfHeader = headerName
	}
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("parse base url: %q is not absolute", baseURL)
	}

	o := clientOptions{timeout: 15 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	if o.jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		o.jar = jar
	}
	if o.tokens == nil {
		o.tokens = NewCredentialStore()
	}

	csrf := NewCSRFReader(o.jar, base, o.csrfCookie)
	return &Client{
		base: base,
		httpClient: &http.Client{
			Jar:     o.jar,
			Timeout: o.timeout,
			Transport: &Transport{
				Base:       o.base,
				Tokens:     o.tokens,
				CSRF:       csrf,
				CSRFHeader: o.csrfHeader,
			},
		},
		tokens: o.tokens,
		csrf:   csrf,
	}, nil
}

func (c *Client) Credentials() *CredentialStore { return c.tokens }

func (c *Client) CSRF() *CSRFReader { return c.csrf }

func (c *Client) Jar() http.CookieJar { return c.httpClient.Jar }

func (c *Client) Login(ctx context.Context, email string, password string) (AuthPayload, error) {
	var out AuthPayload
	err := c.call(ctx, http.MethodPost, pathLogin, map[string]string{"email": email, "password": password}, &out)
	return out, err
}

func (c *Client) Register(ctx context.Context, in RegisterInput) (AuthPayload, error) {
	var out AuthPayload
	err := c.call(ctx, http.MethodPost, pathRegister, in, &out)
	return out, err
}

func (c *Client) RegisterWithInvitation(ctx context.Context, in RegisterInput) (AuthPayload, error) {
	var out AuthPayload
	err := c.call(ctx, http.MethodPost, pathRegisterInvite, in, &out)
	return out, err
}

// Refresh presents only the refresh cookie; the server rotates it.
func (c *Client) Refresh(ctx context.Context) (AuthPayload, error) {
	var out AuthPayload
	err := c.call(ctx, http.MethodPost, pathRefresh, nil, &out)
	return out, err
}

func (c *Client) SwitchHive(ctx context.Context, hiveID string) (SwitchPayload, error) {
	var out SwitchPayload
	err := c.call(ctx, http.MethodPost, pathSwitchHive, map[string]string{"hive_id": hiveID}, &out)
	return out, err
}

// Logout takes the token explicitly because the caller has usually cleared
// the credential store already.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	header := http.Header{}
	if accessToken != "" {
		header.Set("Authorization", "Bearer "+accessToken)
	}
	return c.do(ctx, http.MethodPost, pathLogout, nil, nil, header)
}

func (c *Client) PasskeyAuthOptions(ctx context.Context, email string) (PasskeyAuthOptions, error) {
	var out PasskeyAuthOptions
	err := c.call(ctx, http.MethodPost, pathPasskeyAuthOpts, map[string]string{"email": email}, &out)
	return out, err
}

func (c *Client) PasskeyVerifyAuth(ctx context.Context, sessionID string, response json.RawMessage) (AuthPayload, error) {
	var out AuthPayload
	body := map[string]any{"session_id": sessionID, "response": response}
	err := c.call(ctx, http.MethodPost, pathPasskeyAuth, body, &out)
	return out, err
}

func (c *Client) PasskeyRegOptions(ctx context.Context) (json.RawMessage, error) {
	var out struct {
		Options json.RawMessage `json:"options"`
	}
	err := c.call(ctx, http.MethodPost, pathPasskeyRegOpts, nil, &out)
	return out.Options, err
}

func (c *Client) PasskeyVerifyReg(ctx context.Context, response json.RawMessage, deviceName string) (PasskeySummary, error) {
	var out struct {
		Verified bool           `json:"verified"`
		Passkey  PasskeySummary `json:"passkey"`
	}
	body := map[string]any{"response": response, "device_name": deviceName}
	err := c.call(ctx, http.MethodPost, pathPasskeyReg, body, &out)
	return out.Passkey, err
}

func (c *Client) Passkeys(ctx context.Context) ([]PasskeySummary, error) {
	var out []PasskeySummary
	err := c.call(ctx, http.MethodGet, pathPasskeys, nil, &out)
	return out, err
}

func (c *Client) RemovePasskey(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, pathPasskeys+"/"+url.PathEscape(id), nil, nil)
}

func (c *Client) call(ctx context.Context, method string, path string, in any, out any) error {
	return c.do(ctx, method, path, in, out, nil)
}

func (c *Client) do(ctx context.Context, method string, path string, in any, out any, header http.Header) error {
	if isMutation(method) {
		if err := c.primeCSRF(ctx); err != nil {
			return err
		}
	}

	var body io.Reader = http.NoBody
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for key, values := range header {
		req.Header[key] = values
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	return decodeEnvelope(resp, out)
}

// primeCSRF fetches the CSRF cookie once, before the first mutation.
func (c *Client) primeCSRF(ctx context.Context) error {
	if c.csrf.Read() != "" {
		return nil
	}

	c.primeMu.Lock()
	defer c.primeMu.Unlock()
	if c.csrf.Read() != "" {
		return nil
	}

	return c.do(ctx, http.MethodGet, pathCSRF, nil, nil, nil)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details string `json:"details"`
	} `json:"error"`
}

func decodeEnvelope(resp *http.Response, out any) error {
	var env envelope
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		if decodeErr == nil && env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Details = env.Error.Details
		}
		return apiErr
	}

	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}
