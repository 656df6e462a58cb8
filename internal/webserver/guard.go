package webserver

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"github.com/lachlan2k/gatekeep/internal/accesscontrol"
	"github.com/lachlan2k/gatekeep/internal/gateway"
	"github.com/lachlan2k/gatekeep/internal/identity"
	"github.com/lachlan2k/gatekeep/internal/session"
)

const (
	snapshotKey = "gatekeep.session"
	featureKey  = "gatekeep.feature"
)

// evictionGuard delivers the hard redirect owed after the backend invalidated the session,
// either on the request that hit the invalid token or on the first one after it.
func (w *Webserver) evictionGuard(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if c.Path() == "/ping" {
			return next(c)
		}

		if w.nav.take() {
			return hardRedirect(c)
		}

		err := next(c)
		if errors.Is(err, gateway.ErrSessionEvicted) {
			w.nav.take()
			return hardRedirect(c)
		}

		return err
	}
}

// hardRedirect is a full navigation to the login page that also tells the browser to drop
// anything it cached for the console.
func hardRedirect(c echo.Context) error {
	h := c.Response().Header()
	h.Set("Clear-Site-Data", `"cache", "storage"`)
	h.Set(echo.HeaderCacheControl, "no-store")
	return c.Redirect(http.StatusFound, session.LoginPath)
}

// requireSession renders the route only for a fully authenticated session. It makes no
// network calls: a stale token is the gateway's problem, discovered on first use.
func (w *Webserver) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		snap := w.session.Snapshot()

		if !snap.Authenticated() {
			target := session.LoginPath
			if uri := c.Request().URL.RequestURI(); accesscontrol.VerifyRedirectPath(uri) {
				target += "?redir=" + url.QueryEscape(uri)
			}
			return c.Redirect(http.StatusSeeOther, target)
		}

		c.Set(snapshotKey, snap)
		return next(c)
	}
}

// requireFeature must run after requireSession.
func (w *Webserver) requireFeature(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		feature, err := identity.ParseFeature(c.Param("feature"))
		if err != nil {
			return echo.NewHTTPError(http.StatusNotFound, "No such screen")
		}

		snap := snapshotFrom(c)
		if !snap.HasFeatureAccess(feature) {
			c.Logger().Warnf("%s was denied access to %s", snap.User.Email, feature)
			return echo.NewHTTPError(http.StatusForbidden, fmt.Sprintf("You don't have access to %s", feature.Title()))
		}

		c.Set(featureKey, feature)
		return next(c)
	}
}

func snapshotFrom(c echo.Context) session.Snapshot {
	snap, _ := c.Get(snapshotKey).(session.Snapshot)
	return snap
}
