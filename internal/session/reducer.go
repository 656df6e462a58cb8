package session

import (
	"errors"
	"time"

	"github.com/lachlan2k/gatekeep/internal/backend"
	"github.com/lachlan2k/gatekeep/internal/identity"
)

var (
	ErrAttemptInFlight      = errors.New("a sign-in attempt is already in progress")
	ErrAlreadyAuthenticated = errors.New("already signed in")
	ErrWrongState           = errors.New("action not allowed in the current session state")
	ErrSuperseded           = errors.New("attempt was superseded")
)

type action interface {
	isAction()
}

// result is an action that completes an asynchronous attempt.
type result interface {
	action
	generation() uint64
}

type (
	loginStarted struct {
		email string
		pin   string
	}
	verifyStarted     struct{}
	enrollmentStarted struct{}
	confirmStarted    struct{}
	cancelled         struct{}
	loggedOut         struct{}
	evicted           struct{}
	persistFailed     struct{ msg string }

	loginSucceeded struct {
		gen    uint64
		token  string
		user   *identity.Profile
		access identity.FeatureAccess
		expiry *time.Time
	}
	twoFactorRequired struct{ gen uint64 }
	setupRequired     struct{ gen uint64 }
	attemptRejected   struct {
		gen uint64
		msg string
	}
	attemptInterrupted struct {
		gen uint64
		msg string
	}
	enrollmentIssued struct {
		gen        uint64
		enrollment *backend.Enrollment
	}
	enrollmentConfirmed struct{ gen uint64 }
	enrollmentFailed    struct {
		gen uint64
		msg string
	}
)

func (loginStarted) isAction()        {}
func (verifyStarted) isAction()       {}
func (enrollmentStarted) isAction()   {}
func (confirmStarted) isAction()      {}
func (cancelled) isAction()           {}
func (loggedOut) isAction()           {}
func (evicted) isAction()             {}
func (persistFailed) isAction()       {}
func (loginSucceeded) isAction()      {}
func (twoFactorRequired) isAction()   {}
func (setupRequired) isAction()       {}
func (attemptRejected) isAction()     {}
func (attemptInterrupted) isAction()  {}
func (enrollmentIssued) isAction()    {}
func (enrollmentConfirmed) isAction() {}
func (enrollmentFailed) isAction()    {}

func (a loginSucceeded) generation() uint64      { return a.gen }
func (a twoFactorRequired) generation() uint64   { return a.gen }
func (a setupRequired) generation() uint64       { return a.gen }
func (a attemptRejected) generation() uint64     { return a.gen }
func (a attemptInterrupted) generation() uint64  { return a.gen }
func (a enrollmentIssued) generation() uint64    { return a.gen }
func (a enrollmentConfirmed) generation() uint64 { return a.gen }
func (a enrollmentFailed) generation() uint64    { return a.gen }

// Messages shown to the operator.
const (
	msgSessionExpired     = "Your session has expired. Please sign in again."
	msgEnrollmentComplete = "Two-factor authentication is set up. Sign in again to continue."
)

// anonymous is the signed-out state carrying over only the attempt generation.
func anonymous(prev state) state {
	return state{status: Anonymous, gen: prev.gen + 1}
}

// reduce is the only place session state changes. It is pure: store writes implied by a
// transition are applied by the Machine in the same step.
func reduce(s state, a action) (state, error) {
	switch a := a.(type) {
	case loginStarted:
		switch s.status {
		case Authenticating:
			return s, ErrAttemptInFlight
		case Authenticated:
			return s, ErrAlreadyAuthenticated
		}
		if s.busy {
			return s, ErrAttemptInFlight
		}
		resume := s.status
		if resume != Failed {
			resume = Anonymous
		}
		return state{
			status: Authenticating,
			email:  a.email,
			pin:    a.pin,
			resume: resume,
			gen:    s.gen + 1,
		}, nil

	case verifyStarted:
		if s.status == Authenticating {
			return s, ErrAttemptInFlight
		}
		if s.status != TwoFactorPending {
			return s, ErrWrongState
		}
		next := s
		next.status = Authenticating
		next.resume = TwoFactorPending
		next.err = ""
		next.gen++
		return next, nil

	case loginSucceeded:
		return state{
			status: Authenticated,
			token:  a.token,
			user:   a.user,
			access: a.access,
			expiry: a.expiry,
			gen:    s.gen,
		}, nil

	case twoFactorRequired:
		next := s
		next.status = TwoFactorPending
		next.resume = Anonymous
		next.err = ""
		return next, nil

	case setupRequired:
		return state{
			status: TwoFactorSetupRequired,
			email:  s.email,
			origin: OriginLogin,
			gen:    s.gen,
		}, nil

	case attemptRejected:
		return state{
			status: Failed,
			err:    a.msg,
			gen:    s.gen,
		}, nil

	case attemptInterrupted:
		// Nothing was decided about the credentials; go back to where the attempt started
		next := s
		next.status = s.resume
		next.err = a.msg
		if next.status != TwoFactorPending {
			next.email = ""
			next.pin = ""
		}
		return next, nil

	case persistFailed:
		return state{status: Failed, err: a.msg, gen: s.gen}, nil

	case enrollmentStarted:
		if s.status != TwoFactorSetupRequired {
			return s, ErrWrongState
		}
		if s.busy {
			return s, ErrAttemptInFlight
		}
		next := s
		next.busy = true
		next.err = ""
		next.gen++
		return next, nil

	case confirmStarted:
		if s.status != TwoFactorSetupRequired || s.enrollment == nil {
			return s, ErrWrongState
		}
		if s.busy {
			return s, ErrAttemptInFlight
		}
		next := s
		next.busy = true
		next.err = ""
		next.gen++
		return next, nil

	case enrollmentIssued:
		next := s
		next.busy = false
		next.enrollment = a.enrollment
		return next, nil

	case enrollmentFailed:
		next := s
		next.busy = false
		next.err = a.msg
		return next, nil

	case enrollmentConfirmed:
		next := anonymous(s)
		next.gen = s.gen
		next.notice = msgEnrollmentComplete
		return next, nil

	case cancelled:
		switch s.status {
		case Authenticated:
			return s, ErrWrongState
		case Anonymous:
			return s, nil
		}
		return anonymous(s), nil

	case loggedOut:
		return anonymous(s), nil

	case evicted:
		if s.status != Authenticated {
			return s, nil
		}
		next := anonymous(s)
		next.notice = msgSessionExpired
		return next, nil
	}

	return s, ErrWrongState
}
