package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
	"github.com/labstack/gommon/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lachlan2k/gatekeep/internal/backend"
	"github.com/lachlan2k/gatekeep/internal/credstore"
	"github.com/lachlan2k/gatekeep/internal/gateway"
	"github.com/lachlan2k/gatekeep/internal/identity"
)

type fakeAuth struct {
	mu sync.Mutex

	loginFn  func(req backend.LoginRequest) (*backend.LoginResponse, error)
	setupFn  func(email string) (*backend.Enrollment, error)
	verifyFn func(email, code string) error
	logoutFn func() error

	logins  []backend.LoginRequest
	logouts int
}

func (f *fakeAuth) Login(ctx context.Context, req backend.LoginRequest) (*backend.LoginResponse, error) {
	f.mu.Lock()
	f.logins = append(f.logins, req)
	fn := f.loginFn
	f.mu.Unlock()
	return fn(req)
}

func (f *fakeAuth) SetupTwoFactor(ctx context.Context, email string) (*backend.Enrollment, error) {
	return f.setupFn(email)
}

func (f *fakeAuth) VerifyTwoFactor(ctx context.Context, email, code string) error {
	return f.verifyFn(email, code)
}

func (f *fakeAuth) Logout(ctx context.Context) error {
	f.mu.Lock()
	f.logouts++
	f.mu.Unlock()
	if f.logoutFn != nil {
		return f.logoutFn()
	}
	return nil
}

func (f *fakeAuth) loginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.logins)
}

type countingNavigator struct {
	redirects int32
	lastPath  atomic.Value
}

func (n *countingNavigator) HardRedirect(path string) {
	atomic.AddInt32(&n.redirects, 1)
	n.lastPath.Store(path)
}

func (n *countingNavigator) count() int {
	return int(atomic.LoadInt32(&n.redirects))
}

func quietLogger() *log.Logger {
	l := log.New("test")
	l.SetOutput(io.Discard)
	return l
}

var testAdmin = &identity.Profile{ID: "adm-1", Email: "a@b.com", DisplayName: "Ada", Role: "operator"}

func sessionResponse(token string) *backend.LoginResponse {
	return &backend.LoginResponse{
		AccessToken:   token,
		Admin:         testAdmin.Clone(),
		FeatureAccess: identity.FeatureAccess{identity.FeatureKYC: true},
	}
}

type fixture struct {
	backend *credstore.MemoryBackend
	store   *credstore.Store
	auth    *fakeAuth
	nav     *countingNavigator
	machine *Machine
}

func newFixture(t *testing.T, auth *fakeAuth) *fixture {
	t.Helper()
	b := credstore.NewMemoryBackend()
	f := &fixture{
		backend: b,
		store:   credstore.New(b, quietLogger()),
		auth:    auth,
		nav:     &countingNavigator{},
	}
	f.machine = New(f.store, f.auth, f.nav, Options{Logger: quietLogger()})
	return f
}

func (f *fixture) signIn(t *testing.T) {
	t.Helper()
	f.auth.loginFn = func(backend.LoginRequest) (*backend.LoginResponse, error) {
		return sessionResponse("tok"), nil
	}
	snap, err := f.machine.Login(context.Background(), "a@b.com", "123456")
	require.NoError(t, err)
	require.True(t, snap.Authenticated())
}

func TestLogin_Success(t *testing.T) {
	f := newFixture(t, &fakeAuth{})
	f.auth.loginFn = func(req backend.LoginRequest) (*backend.LoginResponse, error) {
		assert.Equal(t, "a@b.com", req.Email)
		assert.Equal(t, "123456", req.PasswordPin)
		assert.Empty(t, req.TwoFAToken)
		return sessionResponse("tok"), nil
	}

	snap, err := f.machine.Login(context.Background(), "a@b.com", "123456")
	require.NoError(t, err)

	assert.Equal(t, Authenticated, snap.Status)
	assert.Equal(t, testAdmin, snap.User)
	assert.False(t, snap.Loading)
	assert.Equal(t, HomePath, snap.Route())

	rec := f.store.Load()
	assert.Equal(t, "tok", rec.Token)
	assert.Equal(t, snap.User, rec.User)
	assert.Equal(t, snap.FeatureAccess, rec.FeatureAccess)
}

func TestLogin_SnapshotIsACopy(t *testing.T) {
	f := newFixture(t, &fakeAuth{})
	f.signIn(t)

	snap := f.machine.Snapshot()
	snap.User.Role = identity.RoleSuperAdmin
	snap.FeatureAccess[identity.FeatureAdmins] = true

	fresh := f.machine.Snapshot()
	assert.Equal(t, "operator", fresh.User.Role)
	assert.False(t, fresh.HasFeatureAccess(identity.FeatureAdmins))
}

func TestLogin_TwoFactorRequired(t *testing.T) {
	f := newFixture(t, &fakeAuth{})
	f.auth.loginFn = func(req backend.LoginRequest) (*backend.LoginResponse, error) {
		if req.TwoFAToken == "" {
			return &backend.LoginResponse{Requires2FA: true}, nil
		}
		assert.Equal(t, "654321", req.TwoFAToken)
		assert.Equal(t, "123456", req.PasswordPin)
		return sessionResponse("tok-2fa"), nil
	}

	snap, err := f.machine.Login(context.Background(), "a@b.com", "123456")
	require.NoError(t, err)

	assert.Equal(t, TwoFactorPending, snap.Status)
	assert.Equal(t, "a@b.com", snap.Email)
	assert.Equal(t, TwoFactorPath, snap.Route())
	assert.False(t, snap.Authenticated())
	assert.True(t, f.store.Load().Empty())

	snap, err = f.machine.VerifyTwoFactor(context.Background(), "654321")
	require.NoError(t, err)
	assert.Equal(t, Authenticated, snap.Status)
	assert.Equal(t, "tok-2fa", f.store.Token())
	assert.Empty(t, snap.Email)
}

func TestVerifyTwoFactor_RejectedFails(t *testing.T) {
	f := newFixture(t, &fakeAuth{})
	f.auth.loginFn = func(req backend.LoginRequest) (*backend.LoginResponse, error) {
		if req.TwoFAToken == "" {
			return &backend.LoginResponse{Requires2FA: true}, nil
		}
		return nil, &gateway.APIError{StatusCode: 401, Message: "Invalid 2FA token"}
	}

	_, err := f.machine.Login(context.Background(), "a@b.com", "123456")
	require.NoError(t, err)

	snap, err := f.machine.VerifyTwoFactor(context.Background(), "000000")
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, Failed, snap.Status)
	assert.Equal(t, "Invalid 2FA token", snap.Error)
	assert.False(t, snap.Authenticated())
	assert.True(t, f.store.Load().Empty())

	// The pending credentials are gone with the failed state
	_, err = f.machine.VerifyTwoFactor(context.Background(), "000000")
	assert.ErrorIs(t, err, ErrWrongState)
}

func TestVerifyTwoFactor_RepeatedChallengeIsRejection(t *testing.T) {
	f := newFixture(t, &fakeAuth{})
	f.auth.loginFn = func(req backend.LoginRequest) (*backend.LoginResponse, error) {
		return &backend.LoginResponse{Requires2FA: true}, nil
	}

	_, err := f.machine.Login(context.Background(), "a@b.com", "123456")
	require.NoError(t, err)

	snap, err := f.machine.VerifyTwoFactor(context.Background(), "111111")
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, Failed, snap.Status)
	assert.Equal(t, "Invalid two-factor code.", snap.Error)
}

func TestVerifyTwoFactor_TransientKeepsPending(t *testing.T) {
	f := newFixture(t, &fakeAuth{})
	calls := 0
	f.auth.loginFn = func(req backend.LoginRequest) (*backend.LoginResponse, error) {
		calls++
		switch calls {
		case 1:
			return &backend.LoginResponse{Requires2FA: true}, nil
		case 2:
			return nil, fmt.Errorf("%w: dial tcp: connection refused", gateway.ErrUnavailable)
		}
		assert.Equal(t, "123456", req.PasswordPin)
		return sessionResponse("tok"), nil
	}

	_, err := f.machine.Login(context.Background(), "a@b.com", "123456")
	require.NoError(t, err)

	snap, err := f.machine.VerifyTwoFactor(context.Background(), "111111")
	assert.ErrorIs(t, err, gateway.ErrUnavailable)
	assert.Equal(t, TwoFactorPending, snap.Status)
	assert.Equal(t, "a@b.com", snap.Email)
	assert.NotEmpty(t, snap.Error)

	snap, err = f.machine.VerifyTwoFactor(context.Background(), "111111")
	require.NoError(t, err)
	assert.Equal(t, Authenticated, snap.Status)
}

func TestLogin_SetupRequiredAndEnrollment(t *testing.T) {
	f := newFixture(t, &fakeAuth{})
	f.auth.loginFn = func(req backend.LoginRequest) (*backend.LoginResponse, error) {
		return &backend.LoginResponse{Requires2FASetup: true}, nil
	}
	f.auth.setupFn = func(email string) (*backend.Enrollment, error) {
		assert.Equal(t, "a@b.com", email)
		return &backend.Enrollment{QRCode: "otpauth-qr", ManualEntryKey: "JBSWY3DP"}, nil
	}
	f.auth.verifyFn = func(email, code string) error {
		if code != "222222" {
			return backend.ErrEnrollmentRejected
		}
		return nil
	}

	snap, err := f.machine.Login(context.Background(), "a@b.com", "123456")
	require.NoError(t, err)
	assert.Equal(t, TwoFactorSetupRequired, snap.Status)
	assert.Equal(t, "a@b.com", snap.Email)
	assert.Equal(t, OriginLogin, snap.Origin)
	assert.Equal(t, EnrollmentPath+"?email=a%40b.com&from=login", snap.Route())
	assert.True(t, f.store.Load().Empty())

	// Confirming before a secret was issued makes no sense
	_, err = f.machine.ConfirmEnrollment(context.Background(), "222222")
	assert.ErrorIs(t, err, ErrWrongState)

	snap, err = f.machine.BeginEnrollment(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap.Enrollment)
	assert.Equal(t, "JBSWY3DP", snap.Enrollment.ManualEntryKey)

	snap, err = f.machine.ConfirmEnrollment(context.Background(), "999999")
	assert.Error(t, err)
	assert.Equal(t, TwoFactorSetupRequired, snap.Status)
	assert.Equal(t, "Invalid two-factor code.", snap.Error)
	assert.NotNil(t, snap.Enrollment)

	snap, err = f.machine.ConfirmEnrollment(context.Background(), "222222")
	require.NoError(t, err)
	assert.Equal(t, Anonymous, snap.Status)
	assert.Equal(t, LoginPath, snap.Route())
	assert.Equal(t, msgEnrollmentComplete, snap.Notice)
	assert.True(t, f.store.Load().Empty())
}

func TestLogin_PINFormatRejectedBeforeNetwork(t *testing.T) {
	f := newFixture(t, &fakeAuth{loginFn: func(backend.LoginRequest) (*backend.LoginResponse, error) {
		t.Fatal("login must not reach the backend")
		return nil, nil
	}})

	for _, pin := range []string{"12345", "1234567", "12a456", "", "12 456"} {
		snap, err := f.machine.Login(context.Background(), "a@b.com", pin)
		assert.ErrorIs(t, err, ErrInvalidPIN, "pin %q", pin)
		assert.Equal(t, Anonymous, snap.Status)
		assert.False(t, snap.Loading)
	}

	_, err := f.machine.Login(context.Background(), "not-an-email", "123456")
	assert.ErrorIs(t, err, ErrInvalidEmail)

	_, err = f.machine.Login(context.Background(), "Ada <a@b.com>", "123456")
	assert.ErrorIs(t, err, ErrInvalidEmail)

	assert.Equal(t, 0, f.auth.loginCount())
}

func TestLogin_RejectedThenRetryClearsError(t *testing.T) {
	f := newFixture(t, &fakeAuth{})
	f.auth.loginFn = func(req backend.LoginRequest) (*backend.LoginResponse, error) {
		if req.PasswordPin == "000000" {
			return nil, &gateway.APIError{StatusCode: 400, Message: "Invalid credentials"}
		}
		return sessionResponse("tok"), nil
	}

	snap, err := f.machine.Login(context.Background(), "a@b.com", "000000")
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, Failed, snap.Status)
	assert.Equal(t, "Invalid credentials", snap.Error)
	assert.False(t, snap.Authenticated())
	assert.False(t, snap.HasFeatureAccess(identity.FeatureKYC))
	assert.Equal(t, LoginPath, snap.Route())
	assert.True(t, f.store.Load().Empty())

	snap, err = f.machine.Login(context.Background(), "a@b.com", "123456")
	require.NoError(t, err)
	assert.Equal(t, Authenticated, snap.Status)
	assert.Empty(t, snap.Error)
}

func TestLogin_UnexpectedResponseFails(t *testing.T) {
	f := newFixture(t, &fakeAuth{loginFn: func(backend.LoginRequest) (*backend.LoginResponse, error) {
		return &backend.LoginResponse{AccessToken: "tok"}, nil
	}})

	snap, err := f.machine.Login(context.Background(), "a@b.com", "123456")
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, Failed, snap.Status)
	assert.True(t, f.store.Load().Empty())
}

func TestLogin_TransientFailureLeavesStateAlone(t *testing.T) {
	f := newFixture(t, &fakeAuth{loginFn: func(backend.LoginRequest) (*backend.LoginResponse, error) {
		return nil, fmt.Errorf("%w: context deadline exceeded", gateway.ErrTimeout)
	}})

	snap, err := f.machine.Login(context.Background(), "a@b.com", "123456")
	assert.ErrorIs(t, err, gateway.ErrTimeout)
	assert.Equal(t, Anonymous, snap.Status)
	assert.Contains(t, snap.Error, "too long")
	assert.Empty(t, snap.Email)
	assert.True(t, f.store.Load().Empty())
}

func TestLogin_DoubleSubmitRefused(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})

	f := newFixture(t, &fakeAuth{loginFn: func(backend.LoginRequest) (*backend.LoginResponse, error) {
		close(entered)
		<-release
		return sessionResponse("tok"), nil
	}})

	done := make(chan error, 1)
	go func() {
		_, err := f.machine.Login(context.Background(), "a@b.com", "123456")
		done <- err
	}()
	<-entered

	snap := f.machine.Snapshot()
	assert.Equal(t, Authenticating, snap.Status)
	assert.True(t, snap.Loading)

	_, err := f.machine.Login(context.Background(), "a@b.com", "123456")
	assert.ErrorIs(t, err, ErrAttemptInFlight)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, f.auth.loginCount())
	assert.Equal(t, Authenticated, f.machine.Snapshot().Status)

	_, err = f.machine.Login(context.Background(), "a@b.com", "123456")
	assert.ErrorIs(t, err, ErrAlreadyAuthenticated)
}

func TestLogin_SupersededResultIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})

	f := newFixture(t, &fakeAuth{loginFn: func(backend.LoginRequest) (*backend.LoginResponse, error) {
		close(entered)
		<-release
		return sessionResponse("late"), nil
	}})

	done := make(chan error, 1)
	go func() {
		_, err := f.machine.Login(context.Background(), "a@b.com", "123456")
		done <- err
	}()
	<-entered

	snap, err := f.machine.Cancel()
	require.NoError(t, err)
	assert.Equal(t, Anonymous, snap.Status)

	close(release)
	assert.ErrorIs(t, <-done, ErrSuperseded)

	assert.Equal(t, Anonymous, f.machine.Snapshot().Status)
	assert.True(t, f.store.Load().Empty())
}

func TestLogin_PersistFailureFails(t *testing.T) {
	f := newFixture(t, &fakeAuth{loginFn: func(backend.LoginRequest) (*backend.LoginResponse, error) {
		return sessionResponse("tok"), nil
	}})
	f.backend.SetFailWrites(true)

	snap, err := f.machine.Login(context.Background(), "a@b.com", "123456")
	require.ErrorIs(t, err, ErrNotPersisted)
	assert.ErrorIs(t, err, credstore.ErrStorageUnavailable)

	assert.Equal(t, Failed, snap.Status)
	assert.Nil(t, snap.User)
	assert.NotEmpty(t, snap.Error)
	assert.True(t, f.store.Load().Empty())
}

func TestLogin_StoreAlwaysMatchesSession(t *testing.T) {
	f := newFixture(t, &fakeAuth{})

	for i := 0; i < 5; i++ {
		token := fmt.Sprintf("tok-%d", i)
		user := &identity.Profile{ID: fmt.Sprintf("adm-%d", i), Email: "a@b.com", Role: "operator"}
		access := identity.FeatureAccess{identity.Feature(fmt.Sprintf("f%d", i)): true}

		f.auth.loginFn = func(backend.LoginRequest) (*backend.LoginResponse, error) {
			return &backend.LoginResponse{AccessToken: token, Admin: user, FeatureAccess: access}, nil
		}

		snap, err := f.machine.Login(context.Background(), "a@b.com", "123456")
		require.NoError(t, err)

		rec := f.store.Load()
		assert.Equal(t, token, rec.Token)
		assert.Equal(t, user, rec.User)
		assert.Equal(t, access, rec.FeatureAccess)
		assert.Equal(t, rec.User, snap.User)

		f.machine.Logout(context.Background())
		assert.True(t, f.store.Load().Empty())
	}
}

func TestLogout(t *testing.T) {
	f := newFixture(t, &fakeAuth{})
	f.signIn(t)

	snap := f.machine.Logout(context.Background())
	assert.Equal(t, Anonymous, snap.Status)
	assert.Nil(t, snap.User)
	assert.Equal(t, 1, f.auth.logouts)
	assert.True(t, f.store.Load().Empty())

	// Logging out again neither calls the backend nor fails
	f.machine.Logout(context.Background())
	assert.Equal(t, 1, f.auth.logouts)
	assert.Equal(t, 0, f.nav.count())
}

func TestLogout_BackendFailureStillClears(t *testing.T) {
	f := newFixture(t, &fakeAuth{logoutFn: func() error {
		return &gateway.APIError{StatusCode: 500}
	}})
	f.signIn(t)

	snap := f.machine.Logout(context.Background())
	assert.Equal(t, Anonymous, snap.Status)
	assert.True(t, f.store.Load().Empty())
}

func TestLogout_StoreRefusingClearStillDropsToken(t *testing.T) {
	f := newFixture(t, &fakeAuth{})
	f.signIn(t)
	f.backend.SetFailDeletes(true)

	snap := f.machine.Logout(context.Background())
	assert.Equal(t, Anonymous, snap.Status)

	// The gateway reads its bearer token through the store
	assert.Equal(t, "", f.store.Token())
	assert.True(t, f.store.Load().Empty())

	f.backend.SetFailDeletes(false)
	assert.True(t, f.store.Load().Empty())
	entries, err := f.backend.ReadAll()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEvict_StoreRefusingClearStillDropsToken(t *testing.T) {
	f := newFixture(t, &fakeAuth{})
	f.signIn(t)
	f.backend.SetFailDeletes(true)

	f.machine.Evict()

	assert.Equal(t, Anonymous, f.machine.Snapshot().Status)
	assert.Equal(t, "", f.store.Token())
	assert.Equal(t, 1, f.nav.count())
}

func TestEvict_ConcurrentCallsRedirectOnce(t *testing.T) {
	f := newFixture(t, &fakeAuth{})
	f.signIn(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.machine.Evict()
		}()
	}
	wg.Wait()

	snap := f.machine.Snapshot()
	assert.Equal(t, Anonymous, snap.Status)
	assert.Equal(t, msgSessionExpired, snap.Notice)
	assert.True(t, f.store.Load().Empty())
	assert.Equal(t, 1, f.nav.count())
	assert.Equal(t, LoginPath, f.nav.lastPath.Load())
}

func TestEvict_WhenSignedOutOnlyClears(t *testing.T) {
	f := newFixture(t, &fakeAuth{})

	// A record written behind this process's back
	require.NoError(t, f.store.Save("other", testAdmin, nil))

	f.machine.Evict()
	f.machine.Evict()

	assert.Equal(t, 0, f.nav.count())
	assert.True(t, f.store.Load().Empty())
	assert.Equal(t, Anonymous, f.machine.Snapshot().Status)
}

func TestNew_RestoresOptimistically(t *testing.T) {
	b := credstore.NewMemoryBackend()
	store := credstore.New(b, quietLogger())
	require.NoError(t, store.Save("tok", testAdmin, identity.FeatureAccess{identity.FeatureRates: true}))

	auth := &fakeAuth{loginFn: func(backend.LoginRequest) (*backend.LoginResponse, error) {
		t.Fatal("restoring must not revalidate")
		return nil, nil
	}}
	m := New(store, auth, &countingNavigator{}, Options{Logger: quietLogger()})

	snap := m.Snapshot()
	assert.Equal(t, Authenticated, snap.Status)
	assert.Equal(t, testAdmin, snap.User)
	assert.True(t, snap.HasFeatureAccess(identity.FeatureRates))
	assert.False(t, snap.HasFeatureAccess(identity.FeatureKYC))
}

func TestNew_PartialRecordIsCleared(t *testing.T) {
	b := credstore.NewMemoryBackend()
	b.Set(credstore.KeyToken, "tok")
	store := credstore.New(b, quietLogger())

	m := New(store, &fakeAuth{}, &countingNavigator{}, Options{Logger: quietLogger()})

	assert.Equal(t, Anonymous, m.Snapshot().Status)
	assert.True(t, store.Load().Empty())
}

func TestCancel(t *testing.T) {
	f := newFixture(t, &fakeAuth{loginFn: func(backend.LoginRequest) (*backend.LoginResponse, error) {
		return &backend.LoginResponse{Requires2FA: true}, nil
	}})

	_, err := f.machine.Login(context.Background(), "a@b.com", "123456")
	require.NoError(t, err)

	snap, err := f.machine.Cancel()
	require.NoError(t, err)
	assert.Equal(t, Anonymous, snap.Status)
	assert.Empty(t, snap.Email)

	// Cancelling from Anonymous is a no-op
	_, err = f.machine.Cancel()
	require.NoError(t, err)

	f.signIn(t)
	_, err = f.machine.Cancel()
	assert.ErrorIs(t, err, ErrWrongState)
	assert.True(t, f.machine.Snapshot().Authenticated())
}

func TestSuperAdminSeesEverything(t *testing.T) {
	f := newFixture(t, &fakeAuth{loginFn: func(backend.LoginRequest) (*backend.LoginResponse, error) {
		return &backend.LoginResponse{
			AccessToken: "tok",
			Admin:       &identity.Profile{ID: "root", Email: "root@b.com", Role: identity.RoleSuperAdmin},
		}, nil
	}})

	snap, err := f.machine.Login(context.Background(), "root@b.com", "123456")
	require.NoError(t, err)

	assert.Equal(t, identity.AllFeatures(), snap.VisibleFeatures())
	assert.True(t, snap.HasFeatureAccess(identity.Feature("anything")))
}

func TestTokenExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("backend-secret"))
	require.NoError(t, err)

	f := newFixture(t, &fakeAuth{loginFn: func(backend.LoginRequest) (*backend.LoginResponse, error) {
		return sessionResponse(signed), nil
	}})

	snap, err := f.machine.Login(context.Background(), "a@b.com", "123456")
	require.NoError(t, err)
	require.NotNil(t, snap.TokenExpiry)
	assert.True(t, exp.Equal(*snap.TokenExpiry))

	assert.Nil(t, tokenExpiry("opaque-token"))
}

func TestStatusStrings(t *testing.T) {
	assert.Equal(t, "two_factor_pending", TwoFactorPending.String())
	text, err := Failed.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "failed", string(text))
	assert.True(t, errors.Is(fmt.Errorf("wrap: %w", ErrInvalidPIN), ErrInvalidPIN))
}
