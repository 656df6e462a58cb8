package webserver

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	csrfField      = "_csrf"
	csrfCookie     = "_gatekeep_csrf"
	csrfContextKey = "csrf"
)

// localHosts are the Host values the console answers to. Anything else is a rebound name
// pointing at the loopback listener.
func localHosts(port int) map[string]bool {
	return map[string]bool{
		fmt.Sprintf("127.0.0.1:%d", port): true,
		fmt.Sprintf("localhost:%d", port): true,
	}
}

// localOnly refuses foreign Host headers, and state-changing requests sent from another origin.
func (w *Webserver) localOnly(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()

		if !w.hosts[strings.ToLower(req.Host)] {
			c.Logger().Warnf("Refused request for foreign host %q", req.Host)
			return echo.NewHTTPError(http.StatusMisdirectedRequest, "This console only answers on localhost.")
		}

		if req.Method != http.MethodGet && req.Method != http.MethodHead {
			if origin := req.Header.Get(echo.HeaderOrigin); origin != "" && !w.sameOrigin(origin) {
				c.Logger().Warnf("Refused %s %s from origin %q", req.Method, req.URL.Path, origin)
				return echo.NewHTTPError(http.StatusForbidden, "Cross-origin requests aren't allowed.")
			}
		}

		return next(c)
	}
}

func (w *Webserver) sameOrigin(origin string) bool {
	host, ok := strings.CutPrefix(strings.ToLower(origin), "http://")
	return ok && w.hosts[host]
}

// csrfProtection issues a token cookie on every page and requires it back in the _csrf field
// of every form post.
func csrfProtection() echo.MiddlewareFunc {
	return middleware.CSRFWithConfig(middleware.CSRFConfig{
		TokenLookup:    "form:" + csrfField,
		ContextKey:     csrfContextKey,
		CookieName:     csrfCookie,
		CookiePath:     "/",
		CookieHTTPOnly: true,
		CookieSameSite: http.SameSiteStrictMode,
		ErrorHandler: func(err error, c echo.Context) error {
			c.Logger().Warnf("Refused %s %s: %v", c.Request().Method, c.Request().URL.Path, err)
			return echo.NewHTTPError(http.StatusForbidden, "This form has expired. Reload the page and try again.")
		},
	})
}
