package session

import (
	"net/url"
	"time"

	"github.com/lachlan2k/gatekeep/internal/accesscontrol"
	"github.com/lachlan2k/gatekeep/internal/backend"
	"github.com/lachlan2k/gatekeep/internal/identity"
)

type Status int

const (
	Anonymous Status = iota
	Authenticating
	TwoFactorPending
	TwoFactorSetupRequired
	Authenticated
	Failed
)

func (s Status) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticating:
		return "authenticating"
	case TwoFactorPending:
		return "two_factor_pending"
	case TwoFactorSetupRequired:
		return "two_factor_setup_required"
	case Authenticated:
		return "authenticated"
	case Failed:
		return "failed"
	}
	return "unknown"
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Console routes the machine hands back for client-side navigation.
const (
	LoginPath      = "/login"
	TwoFactorPath  = "/login/2fa"
	EnrollmentPath = "/login/2fa/setup"
	HomePath       = "/"
)

// OriginLogin marks an enrollment flow entered from the login screen, which it returns to afterwards.
const OriginLogin = "login"

// state is owned by the Machine and only changed by reduce.
// Invariant: token != "" <=> user != nil <=> status == Authenticated.
type state struct {
	status Status

	token  string
	user   *identity.Profile
	access identity.FeatureAccess
	expiry *time.Time

	// Transient second-step context. Never persisted.
	email      string
	pin        string
	origin     string
	enrollment *backend.Enrollment

	// Enrollment request in flight. Login and verification use the Authenticating status instead.
	busy bool

	// Where a transient failure returns to.
	resume Status

	err    string
	notice string

	// Bumped by every action that starts or abandons an attempt. Results carrying an older
	// generation belong to a superseded attempt and are dropped.
	gen uint64
}

// Snapshot is a read-only copy of the session for rendering and gating.
type Snapshot struct {
	Status        Status                 `json:"status"`
	User          *identity.Profile      `json:"user,omitempty"`
	FeatureAccess identity.FeatureAccess `json:"featureAccess,omitempty"`
	TokenExpiry   *time.Time             `json:"tokenExpiry,omitempty"`

	// Email labels the second-factor and enrollment steps.
	Email      string              `json:"email,omitempty"`
	Origin     string              `json:"origin,omitempty"`
	Enrollment *backend.Enrollment `json:"enrollment,omitempty"`

	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
	Notice  string `json:"notice,omitempty"`
}

func (s state) snapshot() Snapshot {
	snap := Snapshot{
		Status:        s.status,
		User:          s.user.Clone(),
		FeatureAccess: s.access.Clone(),
		Email:         s.email,
		Origin:        s.origin,
		Loading:       s.status == Authenticating || s.busy,
		Error:         s.err,
		Notice:        s.notice,
	}

	if s.expiry != nil {
		exp := *s.expiry
		snap.TokenExpiry = &exp
	}

	if s.enrollment != nil {
		e := *s.enrollment
		snap.Enrollment = &e
	}

	return snap
}

// Authenticated is the route guard's whole decision.
func (s Snapshot) Authenticated() bool {
	return s.Status == Authenticated
}

// HasFeatureAccess applies the permission gate to this session. Anything short of a full session denies.
func (s Snapshot) HasFeatureAccess(feature identity.Feature) bool {
	if !s.Authenticated() {
		return false
	}
	return accesscontrol.HasFeatureAccess(s.User, s.FeatureAccess, feature)
}

// VisibleFeatures is the navigation menu for this session.
func (s Snapshot) VisibleFeatures() []identity.Feature {
	if !s.Authenticated() {
		return nil
	}
	return accesscontrol.VisibleFeatures(s.User, s.FeatureAccess, identity.AllFeatures())
}

// Route is where the UI should navigate (client-side) to present this state.
func (s Snapshot) Route() string {
	switch s.Status {
	case Authenticated:
		return HomePath
	case TwoFactorPending:
		return TwoFactorPath
	case TwoFactorSetupRequired:
		q := url.Values{}
		q.Set("email", s.Email)
		q.Set("from", s.Origin)
		return EnrollmentPath + "?" + q.Encode()
	}
	return LoginPath
}
