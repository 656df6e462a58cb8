package webserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/lachlan2k/gatekeep/internal/config"
	"github.com/lachlan2k/gatekeep/internal/session"
)

// Session is the slice of the session machine the console drives.
type Session interface {
	Snapshot() session.Snapshot
	Login(ctx context.Context, email, pin string) (session.Snapshot, error)
	VerifyTwoFactor(ctx context.Context, code string) (session.Snapshot, error)
	BeginEnrollment(ctx context.Context) (session.Snapshot, error)
	ConfirmEnrollment(ctx context.Context, code string) (session.Snapshot, error)
	Cancel() (session.Snapshot, error)
	Logout(ctx context.Context) session.Snapshot
}

// FeatureFetcher loads the data behind a feature screen.
type FeatureFetcher interface {
	Fetch(ctx context.Context, path string) (json.RawMessage, error)
}

type Webserver struct {
	echo    *echo.Echo
	conf    *config.Config
	session Session
	fetcher FeatureFetcher
	nav     *Navigator

	// Host header values accepted, see localOnly
	hosts map[string]bool
}

type Options struct {
	// Credential submissions allowed per second per client, and the burst on top.
	// Defaults to one every 12 seconds with a burst of 5.
	LoginRate  rate.Limit
	LoginBurst int
}

func New(conf *config.Config, sess Session, fetcher FeatureFetcher, nav *Navigator, opts Options) *Webserver {
	e := echo.New()
	e.HideBanner = true
	e.Logger.SetPrefix("webserver")
	e.Logger.SetLevel(conf.LogLevel())

	if opts.LoginRate == 0 {
		opts.LoginRate = rate.Every(12 * time.Second)
	}
	if opts.LoginBurst == 0 {
		opts.LoginBurst = 5
	}

	w := &Webserver{
		echo:    e,
		conf:    conf,
		session: sess,
		fetcher: fetcher,
		nav:     nav,
		hosts:   localHosts(conf.ListenPort),
	}

	e.Renderer = newRenderer()
	e.HTTPErrorHandler = w.errorHandler

	e.Use(middleware.RequestID())
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "${time_rfc3339} ${id} ${method} ${uri} ${status} ${latency_human}\n",
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XFrameOptions:      "DENY",
		ContentTypeNosniff: "nosniff",
		ReferrerPolicy:     "same-origin",
	}))
	e.Use(w.localOnly)
	e.Use(csrfProtection())

	w.registerRoutes(opts)

	return w
}

// ServeHTTP makes the console usable with httptest.
func (w *Webserver) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	w.echo.ServeHTTP(rw, req)
}

// Run listens on localhost only: the console holds a single operator's session.
func (w *Webserver) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.echo.Start(fmt.Sprintf("127.0.0.1:%d", w.conf.ListenPort))
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return w.echo.Shutdown(shutdownCtx)
	}
}

type errorPage struct {
	Status  int
	Title   string
	Message string
}

func (w *Webserver) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := "Something went wrong"

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	} else {
		c.Logger().Errorf("Unhandled error on %s: %v", c.Request().URL.Path, err)
	}

	if renderErr := c.Render(code, "error", errorPage{Status: code, Title: http.StatusText(code), Message: msg}); renderErr != nil {
		c.Logger().Errorf("Couldn't render error page: %v", renderErr)
	}
}

var (
	_ session.Navigator = (*Navigator)(nil)
	_ Session           = (*session.Machine)(nil)
)
