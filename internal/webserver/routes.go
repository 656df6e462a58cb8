package webserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/lachlan2k/gatekeep/internal/accesscontrol"
	"github.com/lachlan2k/gatekeep/internal/backend"
	"github.com/lachlan2k/gatekeep/internal/gateway"
	"github.com/lachlan2k/gatekeep/internal/identity"
	"github.com/lachlan2k/gatekeep/internal/session"
)

const (
	cancelPath  = "/login/cancel"
	logoutPath  = "/logout"
	sessionPath = "/api/session"
)

func (w *Webserver) registerRoutes(opts Options) {
	e := w.echo

	e.Use(w.evictionGuard)

	credentialLimiter := middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      opts.LoginRate,
			Burst:     opts.LoginBurst,
			ExpiresIn: 10 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			c.Logger().Warnf("Too many credential submissions from %s", identifier)
			return echo.NewHTTPError(http.StatusTooManyRequests, "Too many attempts. Wait a minute and try again.")
		},
	})

	e.GET("/ping", func(c echo.Context) error {
		return c.String(http.StatusOK, "pong")
	})

	e.GET(session.LoginPath, w.loginPageHandler)
	e.POST(session.LoginPath, w.loginSubmitHandler, credentialLimiter)
	e.GET(session.TwoFactorPath, w.twoFactorPageHandler)
	e.POST(session.TwoFactorPath, w.twoFactorSubmitHandler, credentialLimiter)
	e.GET(session.EnrollmentPath, w.setupPageHandler)
	e.POST(session.EnrollmentPath, w.setupSubmitHandler, credentialLimiter)
	e.POST(cancelPath, w.cancelHandler)
	e.POST(logoutPath, w.logoutHandler)
	e.GET(sessionPath, w.sessionInfoHandler)

	e.GET(session.HomePath, w.dashboardHandler, w.requireSession)
	e.GET(accesscontrol.FeaturePathPrefix+":feature", w.featureHandler, w.requireSession, w.requireFeature)
}

type loginPage struct {
	Email    string
	Error    string
	Notice   string
	Redirect string
	Loading  bool
}

type twoFactorPage struct {
	Email    string
	Error    string
	Redirect string
	Loading  bool
}

type setupPage struct {
	Email      string
	Error      string
	Enrollment *backend.Enrollment
	Loading    bool
}

type featureLink struct {
	Key   identity.Feature
	Title string
}

type dashboardPage struct {
	User     *identity.Profile
	Expiry   string
	Features []featureLink
}

type featurePage struct {
	Title string
	Data  string
	Error string
}

// redirectTo is the client-side navigation after a flow step: wherever the new state lives,
// or the originally requested screen once signed in.
func redirectTo(c echo.Context, snap session.Snapshot, redir string) error {
	target := snap.Route()

	if accesscontrol.VerifyRedirectPath(redir) {
		switch snap.Status {
		case session.Authenticated:
			target = redir
		case session.TwoFactorSetupRequired:
			// Enrollment ends back at the login page, not in a session
		default:
			target += "?redir=" + url.QueryEscape(redir)
		}
	}

	return c.Redirect(http.StatusSeeOther, target)
}

func (w *Webserver) loginPageHandler(c echo.Context) error {
	snap := w.session.Snapshot()
	redir := c.QueryParam("redir")

	switch snap.Status {
	case session.Authenticated, session.TwoFactorPending, session.TwoFactorSetupRequired:
		return redirectTo(c, snap, redir)
	}

	return c.Render(http.StatusOK, "login", loginPage{
		Email:    c.QueryParam("email"),
		Error:    snap.Error,
		Notice:   snap.Notice,
		Redirect: redir,
		Loading:  snap.Loading,
	})
}

func (w *Webserver) loginSubmitHandler(c echo.Context) error {
	email := c.FormValue("email")
	redir := c.FormValue("redir")

	snap, err := w.session.Login(c.Request().Context(), email, c.FormValue("pin"))

	switch {
	case errors.Is(err, session.ErrInvalidEmail), errors.Is(err, session.ErrInvalidPIN):
		return c.Render(http.StatusUnprocessableEntity, "login", loginPage{
			Email:    email,
			Error:    err.Error(),
			Redirect: redir,
		})

	case errors.Is(err, session.ErrAttemptInFlight):
		return c.Render(http.StatusConflict, "login", loginPage{
			Email:    email,
			Error:    "A sign-in attempt is already in progress.",
			Redirect: redir,
			Loading:  true,
		})

	case err != nil && !errors.Is(err, session.ErrAlreadyAuthenticated):
		c.Logger().Infof("Sign-in attempt for %s did not complete: %v", email, err)
	}

	return redirectTo(c, snap, redir)
}

func (w *Webserver) twoFactorPageHandler(c echo.Context) error {
	snap := w.session.Snapshot()
	redir := c.QueryParam("redir")

	if snap.Status != session.TwoFactorPending {
		return redirectTo(c, snap, redir)
	}

	return c.Render(http.StatusOK, "twofactor", twoFactorPage{
		Email:    snap.Email,
		Error:    snap.Error,
		Redirect: redir,
	})
}

func (w *Webserver) twoFactorSubmitHandler(c echo.Context) error {
	redir := c.FormValue("redir")

	snap, err := w.session.VerifyTwoFactor(c.Request().Context(), c.FormValue("code"))

	switch {
	case errors.Is(err, session.ErrInvalidCode):
		return c.Render(http.StatusUnprocessableEntity, "twofactor", twoFactorPage{
			Email:    snap.Email,
			Error:    err.Error(),
			Redirect: redir,
		})

	case errors.Is(err, session.ErrAttemptInFlight):
		return c.Render(http.StatusConflict, "twofactor", twoFactorPage{
			Email:    snap.Email,
			Error:    "Verification is already in progress.",
			Redirect: redir,
			Loading:  true,
		})
	}

	return redirectTo(c, snap, redir)
}

// setupPageHandler fetches the enrollment secret the first time the page is shown, and again
// on a retry after a failed fetch.
func (w *Webserver) setupPageHandler(c echo.Context) error {
	snap := w.session.Snapshot()

	if snap.Status != session.TwoFactorSetupRequired {
		return redirectTo(c, snap, "")
	}

	if snap.Enrollment == nil && !snap.Loading {
		var err error
		snap, err = w.session.BeginEnrollment(c.Request().Context())
		if err != nil {
			c.Logger().Warnf("Couldn't start two-factor enrollment for %s: %v", snap.Email, err)
		}
	}

	return c.Render(http.StatusOK, "setup", setupPage{
		Email:      snap.Email,
		Error:      snap.Error,
		Enrollment: snap.Enrollment,
		Loading:    snap.Loading,
	})
}

func (w *Webserver) setupSubmitHandler(c echo.Context) error {
	snap, err := w.session.ConfirmEnrollment(c.Request().Context(), c.FormValue("code"))

	if errors.Is(err, session.ErrInvalidCode) {
		return c.Render(http.StatusUnprocessableEntity, "setup", setupPage{
			Email:      snap.Email,
			Error:      err.Error(),
			Enrollment: snap.Enrollment,
		})
	}

	return redirectTo(c, snap, "")
}

func (w *Webserver) cancelHandler(c echo.Context) error {
	snap, err := w.session.Cancel()
	if err != nil && !errors.Is(err, session.ErrWrongState) {
		return err
	}
	return redirectTo(c, snap, "")
}

func (w *Webserver) logoutHandler(c echo.Context) error {
	w.session.Logout(c.Request().Context())
	return c.Redirect(http.StatusSeeOther, session.LoginPath)
}

type sessionInfo struct {
	session.Snapshot
	IsAuthenticated bool               `json:"authenticated"`
	Route           string             `json:"route"`
	VisibleFeatures []identity.Feature `json:"visibleFeatures"`
}

func (w *Webserver) sessionInfoHandler(c echo.Context) error {
	snap := w.session.Snapshot()

	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.JSON(http.StatusOK, sessionInfo{
		Snapshot:        snap,
		IsAuthenticated: snap.Authenticated(),
		Route:           snap.Route(),
		VisibleFeatures: w.navigation(snap),
	})
}

// navigation is the visible feature list restricted to screens the console can actually show.
func (w *Webserver) navigation(snap session.Snapshot) []identity.Feature {
	out := make([]identity.Feature, 0)
	for _, f := range snap.VisibleFeatures() {
		if _, ok := w.conf.FeatureEndpoint(f); ok {
			out = append(out, f)
		}
	}
	return out
}

func (w *Webserver) dashboardHandler(c echo.Context) error {
	snap := snapshotFrom(c)

	page := dashboardPage{User: snap.User}
	if snap.TokenExpiry != nil {
		page.Expiry = snap.TokenExpiry.Local().Format(time.RFC1123)
	}

	for _, f := range w.navigation(snap) {
		page.Features = append(page.Features, featureLink{Key: f, Title: f.Title()})
	}

	return c.Render(http.StatusOK, "dashboard", page)
}

func (w *Webserver) featureHandler(c echo.Context) error {
	feature, _ := c.Get(featureKey).(identity.Feature)

	endpoint, ok := w.conf.FeatureEndpoint(feature)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "This screen isn't configured")
	}

	page := featurePage{Title: feature.Title()}

	raw, err := w.fetcher.Fetch(c.Request().Context(), endpoint)
	if err != nil {
		if errors.Is(err, gateway.ErrSessionEvicted) {
			return err
		}

		c.Logger().Warnf("Couldn't load %s from %s: %v", feature, endpoint, err)

		status := http.StatusBadGateway
		page.Error = "Couldn't load this screen from the server."

		var apiErr *gateway.APIError
		switch {
		case errors.Is(err, gateway.ErrTimeout):
			status = http.StatusGatewayTimeout
			page.Error = "The server took too long to respond."
		case errors.As(err, &apiErr) && apiErr.StatusCode < 500:
			status = apiErr.StatusCode
			if apiErr.Message != "" {
				page.Error = apiErr.Message
			}
		}

		return c.Render(status, "feature", page)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		page.Data = string(raw)
	} else {
		page.Data = pretty.String()
	}

	return c.Render(http.StatusOK, "feature", page)
}
