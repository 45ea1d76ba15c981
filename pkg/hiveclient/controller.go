package hiveclient

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

// LegacyRefreshTokenKey is where older clients persisted the refresh token.
const LegacyRefreshTokenKey = "refreshToken"

type State int

const (
	StateUnauthenticated State = iota
	StateLoading
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateLoading:
		return "loading"
	case StateAuthenticated:
		return "authenticated"
	}
	return "unknown"
}

type action int

const (
	actionStart action = iota
	actionSessionEstablished
	actionRefreshSucceeded
	actionRefreshFailed
	actionHiveSwitched
	actionLoggedOut
)

func (a action) String() string {
	return [...]string{"start", "session_established", "refresh_succeeded", "refresh_failed", "hive_switched", "logged_out"}[a]
}

var transitions = map[State]map[action]State{
	StateUnauthenticated: {
		actionStart:              StateLoading,
		actionSessionEstablished: StateAuthenticated,
		actionLoggedOut:          StateUnauthenticated,
	},
	StateLoading: {
		actionSessionEstablished: StateAuthenticated,
		actionRefreshSucceeded:   StateAuthenticated,
		actionRefreshFailed:      StateUnauthenticated,
		actionLoggedOut:          StateUnauthenticated,
	},
	StateAuthenticated: {
		actionSessionEstablished: StateAuthenticated,
		actionRefreshSucceeded:   StateAuthenticated,
		actionRefreshFailed:      StateUnauthenticated,
		actionHiveSwitched:       StateAuthenticated,
		actionLoggedOut:          StateUnauthenticated,
	},
}

// SessionAPI is the part of Client the controller drives.
type SessionAPI interface {
	Login(ctx context.Context, email string, password string) (AuthPayload, error)
	Register(ctx context.Context, in RegisterInput) (AuthPayload, error)
	RegisterWithInvitation(ctx context.Context, in RegisterInput) (AuthPayload, error)
	Refresh(ctx context.Context) (AuthPayload, error)
	SwitchHive(ctx context.Context, hiveID string) (SwitchPayload, error)
	Logout(ctx context.Context, accessToken string) error
}

// LegacyStorage is cleared on start and never read.
type LegacyStorage interface {
	Remove(key string) error
}

type Snapshot struct {
	State State
	User  *AuthUser
}

type ControllerOption func(*Controller)

func WithClock(clock clockwork.Clock) ControllerOption {
	return func(c *Controller) { c.clock = clock }
}

func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) { c.logger = logger }
}

func WithLegacyStorage(storage LegacyStorage) ControllerOption {
	return func(c *Controller) { c.legacy = storage }
}

// WithLocaleHook is called with the locale of every applied session result.
func WithLocaleHook(fn func(locale string)) ControllerOption {
	return func(c *Controller) { c.onLocale = fn }
}

// WithStateListener is called after every applied transition.
func WithStateListener(fn func(Snapshot)) ControllerOption {
	return func(c *Controller) { c.onState = fn }
}

func WithLogoutTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) { c.logoutTimeout = d }
}

// Controller owns the client session: it moves between the three states,
// writes the credential store and keeps one renewal timer armed while
// authenticated.
type Controller struct {
	api           SessionAPI
	tokens        *CredentialStore
	clock         clockwork.Clock
	logger        *slog.Logger
	legacy        LegacyStorage
	onLocale      func(string)
	onState       func(Snapshot)
	logoutTimeout time.Duration

	mu       sync.Mutex
	state    State
	user     *AuthUser
	issued   uint64
	applied  uint64
	timer    clockwork.Timer
	timerGen uint64
	closed   bool
	revoking chan struct{}

	refreshes  singleflight.Group
	background sync.WaitGroup
}

func NewController(api SessionAPI, tokens *CredentialStore, opts ...ControllerOption) *Controller {
	c := &Controller{
		api:           api,
		tokens:        tokens,
		clock:         clockwork.NewRealClock(),
		logger:        slog.Default(),
		logoutTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tokens == nil {
		c.tokens = NewCredentialStore()
	}
	return c
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start clears any legacy persisted token and resumes the session from the
// refresh cookie. A missing or dead cookie simply ends in Unauthenticated.
func (c *Controller) Start(ctx context.Context) {
	if c.legacy != nil {
		if err := c.legacy.Remove(LegacyRefreshTokenKey); err != nil {
			c.logger.Warn("session.legacy.clear.fail", "error", err)
		}
	}

	c.mu.Lock()
	next, ok := c.transitionLocked(actionStart)
	if !ok {
		c.mu.Unlock()
		return
	}
	c.state = next
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap, "")

	if err := c.awaitRevoke(ctx); err != nil {
		c.logger.Debug("session.revoke.wait", "error", err)
	}
	if err := c.refresh(ctx); err != nil {
		c.logger.Debug("session.resume.none", "error", err)
	}
}

func (c *Controller) Login(ctx context.Context, email string, password string) error {
	return c.Establish(ctx, func(ctx context.Context) (AuthPayload, error) {
		return c.api.Login(ctx, email, password)
	})
}

func (c *Controller) Register(ctx context.Context, in RegisterInput) error {
	return c.Establish(ctx, func(ctx context.Context) (AuthPayload, error) {
		return c.api.Register(ctx, in)
	})
}

func (c *Controller) RegisterWithInvitation(ctx context.Context, in RegisterInput) error {
	return c.Establish(ctx, func(ctx context.Context) (AuthPayload, error) {
		return c.api.RegisterWithInvitation(ctx, in)
	})
}

// Establish runs a session-creating call and applies its result. A failure
// is returned and leaves the current state alone. The call is held back
// until earlier logouts have been answered.
func (c *Controller) Establish(ctx context.Context, call func(context.Context) (AuthPayload, error)) error {
	seq := c.begin()
	if err := c.awaitRevoke(ctx); err != nil {
		return err
	}
	payload, err := call(ctx)
	if err != nil {
		return err
	}
	if !c.applyPayload(seq, actionSessionEstablished, payload) {
		return ErrSuperseded
	}
	return nil
}

// Refresh renews the access token now. Concurrent callers, including the
// renewal timer, share a single request. Cancelling ctx only stops this
// caller from waiting; the shared request runs to completion.
func (c *Controller) Refresh(ctx context.Context) error {
	if c.State() == StateUnauthenticated {
		return ErrNotAuthenticated
	}
	return c.refresh(ctx)
}

func (c *Controller) refresh(ctx context.Context) error {
	shared := context.WithoutCancel(ctx)
	ch := c.refreshes.DoChan("refresh", func() (any, error) {
		seq := c.begin()
		payload, err := c.api.Refresh(shared)
		if err != nil {
			c.applyRefreshFailure(seq, err)
			return nil, err
		}
		if !c.applyPayload(seq, actionRefreshSucceeded, payload) {
			return nil, ErrSuperseded
		}
		return nil, nil
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) SwitchHive(ctx context.Context, hiveID string) error {
	c.mu.Lock()
	if c.state != StateAuthenticated {
		c.mu.Unlock()
		return ErrNotAuthenticated
	}
	c.issued++
	seq := c.issued
	c.mu.Unlock()

	switched, err := c.api.SwitchHive(ctx, hiveID)
	if err != nil {
		return err
	}

	applied := c.apply(seq, actionHiveSwitched, func() {
		user := *c.user
		user.HiveID = switched.HiveID
		user.HiveName = switched.HiveName
		user.PersonID = switched.PersonID
		if switched.Locale != "" {
			user.Locale = switched.Locale
		}
		c.user = &user
		c.setTokenLocked(switched.AccessToken)
	}, switched.Locale)
	if !applied {
		return ErrSuperseded
	}
	return nil
}

// Logout clears local state before returning and revokes the server session
// in the background. It never fails and may be called repeatedly.
func (c *Controller) Logout(ctx context.Context) {
	c.mu.Lock()
	prev := c.state
	token := c.tokens.Get()

	// Drop whatever is still in flight.
	c.issued++
	c.applied = c.issued

	if next, ok := c.transitionLocked(actionLoggedOut); ok {
		c.state = next
	}
	c.user = nil
	c.tokens.Clear()
	c.stopTimerLocked()

	revoke := prev != StateUnauthenticated && !c.closed
	var prior, done chan struct{}
	if revoke {
		c.background.Add(1)
		prior = c.revoking
		done = make(chan struct{})
		c.revoking = done
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap, "")
	if !revoke {
		return
	}

	go func() {
		defer c.background.Done()
		defer close(done)
		if prior != nil {
			<-prior
		}

		revokeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.logoutTimeout)
		defer cancel()
		if err := c.api.Logout(revokeCtx, token); err != nil {
			c.logger.Warn("session.logout.remote.fail", "error", err)
		}
	}()
}

// Close stops the renewal timer and waits for background revocations.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.stopTimerLocked()
	c.mu.Unlock()

	c.background.Wait()
}

// awaitRevoke blocks until every background revoke has been answered, so a
// late logout response cannot expire a newer session's refresh cookie.
func (c *Controller) awaitRevoke(ctx context.Context) error {
	c.mu.Lock()
	pending := c.revoking
	c.mu.Unlock()

	if pending == nil {
		return nil
	}
	select {
	case <-pending:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) begin() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issued++
	return c.issued
}

func (c *Controller) applyPayload(seq uint64, act action, payload AuthPayload) bool {
	return c.apply(seq, act, func() {
		c.user = payload.authUser()
		c.setTokenLocked(payload.AccessToken)
	}, payload.Locale)
}

func (c *Controller) applyRefreshFailure(seq uint64, cause error) {
	applied := c.apply(seq, actionRefreshFailed, func() {
		c.user = nil
		c.tokens.Clear()
		c.stopTimerLocked()
	}, "")
	if applied {
		c.logger.Info("session.refresh.fail", "error", cause)
	}
}

// apply runs mutate under the lock if seq is the newest result seen and the
// transition is legal.
func (c *Controller) apply(seq uint64, act action, mutate func(), locale string) bool {
	c.mu.Lock()
	if seq <= c.applied {
		c.mu.Unlock()
		c.logger.Debug("session.result.stale", "action", act.String())
		return false
	}
	next, ok := c.transitionLocked(act)
	if !ok {
		c.mu.Unlock()
		return false
	}

	c.applied = seq
	c.state = next
	mutate()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap, locale)
	return true
}

func (c *Controller) transitionLocked(act action) (State, bool) {
	next, ok := transitions[c.state][act]
	if !ok {
		c.logger.Error("session.transition.illegal", "state", c.state.String(), "action", act.String())
	}
	return next, ok
}

func (c *Controller) setTokenLocked(token string) {
	c.tokens.Set(token)
	c.armLocked(token)
}

// armLocked replaces the renewal timer. A token without a readable exp
// leaves no timer at all.
func (c *Controller) armLocked(token string) {
	c.stopTimerLocked()
	if c.closed {
		return
	}

	exp, err := DecodeExpiry(token)
	if err != nil {
		c.logger.Warn("session.renewal.unscheduled", "error", err)
		return
	}

	gen := c.timerGen
	delay := RenewDelay(exp, c.clock.Now())
	c.timer = c.clock.AfterFunc(delay, func() { c.renew(gen) })
	c.logger.Debug("session.renewal.armed", "in", delay)
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerGen++
}

func (c *Controller) renew(gen uint64) {
	c.mu.Lock()
	if gen != c.timerGen || c.closed || c.state != StateAuthenticated {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.background.Add(1)
	c.mu.Unlock()
	defer c.background.Done()

	if err := c.refresh(context.Background()); err != nil {
		c.logger.Debug("session.renewal.done", "error", err)
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{State: c.state}
	if c.user != nil {
		user := *c.user
		snap.User = &user
	}
	return snap
}

func (c *Controller) notify(snap Snapshot, locale string) {
	if locale != "" && c.onLocale != nil {
		c.onLocale(locale)
	}
	if c.onState != nil {
		c.onState(snap)
	}
}
