package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/lachlan2k/gatekeep/internal/backend"
	"github.com/lachlan2k/gatekeep/internal/credstore"
	"github.com/lachlan2k/gatekeep/internal/gateway"
	"github.com/lachlan2k/gatekeep/internal/identity"
)

// Authenticator is the slice of the admin backend the session gate calls.
type Authenticator interface {
	Login(ctx context.Context, req backend.LoginRequest) (*backend.LoginResponse, error)
	SetupTwoFactor(ctx context.Context, email string) (*backend.Enrollment, error)
	VerifyTwoFactor(ctx context.Context, email, code string) error
	Logout(ctx context.Context) error
}

type CredentialStore interface {
	Save(token string, user *identity.Profile, access identity.FeatureAccess) error
	Load() credstore.Record
	Clear() error
}

// Navigator performs the hard redirect to the login entry point after an eviction. It is only
// used on that path; ordinary transitions hand back Snapshot.Route for client-side navigation.
type Navigator interface {
	HardRedirect(path string)
}

var (
	// ErrRejected wraps the backend's verdict on bad credentials or a bad code.
	ErrRejected = errors.New("sign-in rejected")

	// ErrNotPersisted means the backend accepted the sign-in but the credential store refused it.
	ErrNotPersisted = errors.New("session couldn't be saved")
)

// Machine owns the session. Every change is dispatched through reduce under mu, and the
// credential store is written in that same locked step, so the store and the in-memory state
// never disagree once dispatch returns.
type Machine struct {
	store  CredentialStore
	auth   Authenticator
	nav    Navigator
	logger *log.Logger

	// Logout shouldn't stall the operator behind a slow backend
	logoutTimeout time.Duration

	mu    sync.Mutex
	state state
}

type Options struct {
	Logger *log.Logger

	// LogoutTimeout bounds the best-effort server-side logout. Defaults to 5 seconds.
	LogoutTimeout time.Duration
}

// New starts from whatever the store holds. A complete record is trusted optimistically; a
// stale token is discovered by the gateway on the first request that fails.
func New(store CredentialStore, auth Authenticator, nav Navigator, opts Options) *Machine {
	logger := opts.Logger
	if logger == nil {
		logger = log.New("session")
	}

	m := &Machine{
		store:         store,
		auth:          auth,
		nav:           nav,
		logger:        logger,
		logoutTimeout: opts.LogoutTimeout,
	}
	if m.logoutTimeout == 0 {
		m.logoutTimeout = 5 * time.Second
	}

	rec := store.Load()

	switch {
	case rec.Complete():
		m.state = state{
			status: Authenticated,
			token:  rec.Token,
			user:   rec.User,
			access: rec.FeatureAccess,
			expiry: tokenExpiry(rec.Token),
		}
		if exp := m.state.expiry; exp != nil && exp.Before(time.Now()) {
			logger.Infof("Restored session for %s has a token that expired at %s", rec.User.Email, exp.Format(time.RFC3339))
		} else {
			logger.Debugf("Restored session for %s", rec.User.Email)
		}

	case !rec.Empty():
		// Never run on half a record
		logger.Warnf("Credential store held an incomplete record, clearing it")
		if err := store.Clear(); err != nil {
			logger.Errorf("Couldn't clear incomplete credential record: %v", err)
		}
	}

	return m
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.snapshot()
}

// dispatch applies one action and its store effect atomically and reports the state before and after.
func (m *Machine) dispatch(a action) (prev, next state, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev = m.state

	if r, ok := a.(result); ok && r.generation() != prev.gen {
		m.logger.Debugf("Dropping result of superseded attempt (%T)", a)
		return prev, prev, ErrSuperseded
	}

	next, err = reduce(prev, a)
	if err != nil {
		return prev, prev, err
	}

	next, err = m.commit(prev, next, a)
	m.state = next

	return prev, next, err
}

// commit performs the store write a transition implies. Called with mu held. A failed save
// yields the Failed state together with the error; the caller installs both.
func (m *Machine) commit(prev, next state, a action) (state, error) {
	enteringSession := next.status == Authenticated && (prev.status != Authenticated || prev.token != next.token)
	leavingSession := prev.status == Authenticated && next.status != Authenticated

	switch {
	case enteringSession:
		// The profile saved is the very one held in memory
		if err := m.store.Save(next.token, next.user, next.access); err != nil {
			m.logger.Errorf("Couldn't persist session for %s: %v", next.user.Email, err)
			failed, _ := reduce(prev, persistFailed{msg: "Signed in, but the session couldn't be saved on this device. Please try again."})
			return failed, fmt.Errorf("%w: %v", ErrNotPersisted, err)
		}

	case leavingSession:
		m.clearStore()

	default:
		switch a.(type) {
		case loggedOut, evicted:
			// The store may hold a record this process never loaded
			m.clearStore()
		}
	}

	return next, nil
}

// clearStore tries twice. A store that still refuses keeps masking the stale record from
// this process, so the gateway has no token to attach either way.
func (m *Machine) clearStore() {
	err := m.store.Clear()
	if err == nil {
		return
	}

	m.logger.Warnf("Couldn't clear credential store, retrying: %v", err)
	if err = m.store.Clear(); err != nil {
		m.logger.Errorf("Couldn't clear credential store: %v", err)
	}
}

// Login submits primary credentials. Input is validated before anything else happens: an
// invalid PIN never enters Authenticating and never reaches the network.
func (m *Machine) Login(ctx context.Context, email, pin string) (Snapshot, error) {
	email = strings.TrimSpace(email)

	if err := ValidateEmail(email); err != nil {
		return m.Snapshot(), err
	}
	if err := ValidatePIN(pin); err != nil {
		return m.Snapshot(), err
	}

	_, started, err := m.dispatch(loginStarted{email: email, pin: pin})
	if err != nil {
		return started.snapshot(), err
	}

	m.logger.Infof("Signing in %s", email)

	resp, err := m.auth.Login(ctx, backend.LoginRequest{Email: email, PasswordPin: pin})
	return m.settle(m.loginOutcome(started.gen, resp, err, false))
}

// VerifyTwoFactor completes a TwoFactorPending login with the one-time code.
func (m *Machine) VerifyTwoFactor(ctx context.Context, code string) (Snapshot, error) {
	if err := ValidateCode(code); err != nil {
		return m.Snapshot(), err
	}

	_, started, err := m.dispatch(verifyStarted{})
	if err != nil {
		return started.snapshot(), err
	}

	resp, err := m.auth.Login(ctx, backend.LoginRequest{
		Email:       started.email,
		PasswordPin: started.pin,
		TwoFAToken:  code,
	})
	return m.settle(m.loginOutcome(started.gen, resp, err, true))
}

// BeginEnrollment fetches the QR payload and manual key for an account without a second factor.
func (m *Machine) BeginEnrollment(ctx context.Context) (Snapshot, error) {
	_, started, err := m.dispatch(enrollmentStarted{})
	if err != nil {
		return started.snapshot(), err
	}

	enrollment, err := m.auth.SetupTwoFactor(ctx, started.email)
	if err != nil {
		return m.settle(enrollmentFailed{gen: started.gen, msg: failureMessage(err, "Couldn't start two-factor setup.")}, err)
	}

	return m.settle(enrollmentIssued{gen: started.gen, enrollment: enrollment}, nil)
}

// ConfirmEnrollment proves the authenticator app works. Success sends the operator back to
// the login entry point: enrollment never signs anyone in by itself.
func (m *Machine) ConfirmEnrollment(ctx context.Context, code string) (Snapshot, error) {
	if err := ValidateCode(code); err != nil {
		return m.Snapshot(), err
	}

	_, started, err := m.dispatch(confirmStarted{})
	if err != nil {
		return started.snapshot(), err
	}

	if err := m.auth.VerifyTwoFactor(ctx, started.email, code); err != nil {
		return m.settle(enrollmentFailed{gen: started.gen, msg: failureMessage(err, "Invalid two-factor code.")}, err)
	}

	m.logger.Infof("Two-factor enrollment completed for %s", started.email)
	return m.settle(enrollmentConfirmed{gen: started.gen}, nil)
}

// Cancel abandons a second-factor step, an enrollment, a failed attempt or an attempt still
// in flight, and returns to Anonymous.
func (m *Machine) Cancel() (Snapshot, error) {
	_, next, err := m.dispatch(cancelled{})
	return next.snapshot(), err
}

// Logout invalidates the token server-side when possible, then clears everything locally.
// The local clear happens whatever the backend says.
func (m *Machine) Logout(ctx context.Context) Snapshot {
	if m.Snapshot().Authenticated() {
		ctx, cancel := context.WithTimeout(ctx, m.logoutTimeout)
		err := m.auth.Logout(ctx)
		cancel()

		if err != nil && !errors.Is(err, gateway.ErrSessionEvicted) {
			m.logger.Warnf("Server-side logout failed, clearing local session anyway: %v", err)
		}
	}

	prev, next, _ := m.dispatch(loggedOut{})
	if prev.status == Authenticated {
		m.logger.Infof("Signed out %s", prev.user.Email)
	}

	return next.snapshot()
}

// Evict is the gateway's forced logout. Any number of concurrent calls produce one transition
// and one hard redirect; calls while not signed in only clear the store.
func (m *Machine) Evict() {
	prev, _, _ := m.dispatch(evicted{})

	if prev.status != Authenticated {
		return
	}

	m.logger.Warnf("Session for %s was invalidated by the server", prev.user.Email)

	if m.nav != nil {
		m.nav.HardRedirect(LoginPath)
	}
}

func (m *Machine) settle(a action, cause error) (Snapshot, error) {
	_, next, err := m.dispatch(a)
	if err != nil {
		return next.snapshot(), err
	}
	return next.snapshot(), cause
}

// loginOutcome maps the backend's answer onto a result action plus the error to hand the caller.
func (m *Machine) loginOutcome(gen uint64, resp *backend.LoginResponse, err error, verifying bool) (action, error) {
	rejectedMsg := "Invalid email or PIN."
	if verifying {
		rejectedMsg = "Invalid two-factor code."
	}

	if err != nil {
		msg := failureMessage(err, rejectedMsg)
		if gateway.IsTransient(err) || errors.Is(err, context.Canceled) {
			return attemptInterrupted{gen: gen, msg: msg}, err
		}
		return attemptRejected{gen: gen, msg: msg}, fmt.Errorf("%w: %s", ErrRejected, msg)
	}

	switch {
	case resp.Requires2FASetup:
		return setupRequired{gen: gen}, nil

	case resp.Requires2FA && !verifying:
		return twoFactorRequired{gen: gen}, nil

	case resp.AccessToken != "" && resp.Admin != nil:
		return loginSucceeded{
			gen:    gen,
			token:  resp.AccessToken,
			user:   resp.Admin.Clone(),
			access: resp.FeatureAccess.Clone(),
			expiry: tokenExpiry(resp.AccessToken),
		}, nil
	}

	if resp.Message != "" {
		rejectedMsg = resp.Message
	}
	return attemptRejected{gen: gen, msg: rejectedMsg}, fmt.Errorf("%w: %s", ErrRejected, rejectedMsg)
}

// failureMessage is the operator-facing text for a failed call.
func failureMessage(err error, rejected string) string {
	switch {
	case errors.Is(err, gateway.ErrTimeout):
		return "The server took too long to respond. Please try again."
	case errors.Is(err, gateway.ErrUnavailable):
		return "Couldn't reach the server. Check your connection and try again."
	case errors.Is(err, context.Canceled):
		return "The request was cancelled."
	}

	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode >= 500 {
			return "The server ran into a problem. Please try again."
		}
		if apiErr.Message != "" {
			return apiErr.Message
		}
	}

	return rejected
}
