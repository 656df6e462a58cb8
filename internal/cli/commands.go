package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lachlan2k/gatekeep/internal/gateway"
	"github.com/lachlan2k/gatekeep/internal/identity"
	"github.com/lachlan2k/gatekeep/internal/session"
	"github.com/lachlan2k/gatekeep/internal/webserver"
)

var errAccessDenied = errors.New("access denied")

func (a *app) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "serve",
		Short:       "Run the local web console",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationOwnRuntime: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			nav := webserver.NewNavigator(newLogger("webserver", a.conf, a.errOut))

			rt, err := newRuntime(a.conf, nav, a.errOut)
			if err != nil {
				return err
			}
			a.rt = rt

			web := webserver.New(a.conf, rt.machine, rt.api, nav, webserver.Options{})

			green := color.New(color.FgGreen)
			green.Fprint(a.out, "▶ ")
			fmt.Fprintf(a.out, "Console: http://127.0.0.1:%d\n", a.conf.ListenPort)
			green.Fprint(a.out, "▶ ")
			fmt.Fprintf(a.out, "Backend: %s\n", a.conf.Backend.BaseURL)
			green.Fprint(a.out, "▶ ")
			fmt.Fprintf(a.out, "Store:   %s (%s)\n", a.conf.Store.Path, a.conf.Store.Type)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return web.Run(ctx)
		},
	}
}

func (a *app) loginCommand() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the admin backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrompter(a.in, a.out)

			if snap := a.rt.machine.Snapshot(); snap.Authenticated() {
				fmt.Fprintf(a.out, "Already signed in as %s\n", snap.User.Email)
				return nil
			}

			var err error
			if email == "" {
				if email, err = p.line("Email"); err != nil {
					return err
				}
			}

			pin, err := p.secret("PIN")
			if err != nil {
				return err
			}

			snap, err := a.rt.machine.Login(cmd.Context(), email, pin)
			if err != nil && !errors.Is(err, session.ErrRejected) {
				return err
			}

			switch snap.Status {
			case session.TwoFactorPending:
				snap, err = a.verifyTwoFactor(cmd.Context(), p)
			case session.TwoFactorSetupRequired:
				snap, err = a.enroll(cmd.Context(), p)
			}
			if err != nil && !errors.Is(err, session.ErrRejected) {
				return err
			}

			return a.reportLogin(snap)
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Admin email address")

	return cmd
}

func (a *app) verifyTwoFactor(ctx context.Context, p *prompter) (session.Snapshot, error) {
	fmt.Fprintf(a.out, "Two-factor authentication is enabled for %s.\n", a.rt.machine.Snapshot().Email)

	code, err := p.line("Code from your authenticator app")
	if err != nil {
		a.rt.machine.Cancel()
		return session.Snapshot{}, err
	}

	snap, err := a.rt.machine.VerifyTwoFactor(ctx, code)
	if errors.Is(err, session.ErrInvalidCode) {
		a.rt.machine.Cancel()
	}
	return snap, err
}

func (a *app) enroll(ctx context.Context, p *prompter) (session.Snapshot, error) {
	fmt.Fprintf(a.out, "%s has to set up two-factor authentication before signing in.\n", a.rt.machine.Snapshot().Email)

	snap, err := a.rt.machine.BeginEnrollment(ctx)
	if err != nil {
		a.rt.machine.Cancel()
		return snap, err
	}

	fmt.Fprint(a.out, "Add this key to your authenticator app: ")
	color.New(color.FgCyan, color.Bold).Fprintln(a.out, snap.Enrollment.ManualEntryKey)
	fmt.Fprintln(a.out, "(The QR code is shown by `gatekeep serve` on the setup page.)")

	code, err := p.line("Code from your authenticator app")
	if err != nil {
		a.rt.machine.Cancel()
		return snap, err
	}

	snap, err = a.rt.machine.ConfirmEnrollment(ctx, code)
	if err != nil {
		a.rt.machine.Cancel()
	}
	return snap, err
}

func (a *app) reportLogin(snap session.Snapshot) error {
	switch snap.Status {
	case session.Authenticated:
		color.New(color.FgGreen).Fprint(a.out, "✓ ")
		fmt.Fprintf(a.out, "Signed in as %s", snap.User.Email)
		if snap.User.Role != "" {
			fmt.Fprintf(a.out, " (%s)", snap.User.Role)
		}
		fmt.Fprintln(a.out)
		return nil

	case session.Anonymous:
		if snap.Notice != "" {
			color.New(color.FgGreen).Fprintln(a.out, snap.Notice)
			return nil
		}
	}

	if snap.Error != "" {
		return errors.New(snap.Error)
	}
	return errors.New("sign-in did not complete")
}

func (a *app) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.rt.machine.Logout(cmd.Context())
			fmt.Fprintln(a.out, "Signed out.")
			return nil
		},
	}
}

func (a *app) whoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "whoami",
		Short:       "Show the signed-in admin",
		Args:        cobra.NoArgs,
		Annotations: sessionRequired,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap := a.rt.machine.Snapshot()
			gray := color.New(color.FgHiBlack)

			fmt.Fprintln(a.out, snap.User.Email)
			if snap.User.DisplayName != "" {
				gray.Fprint(a.out, "name:    ")
				fmt.Fprintln(a.out, snap.User.DisplayName)
			}
			if snap.User.Role != "" {
				gray.Fprint(a.out, "role:    ")
				fmt.Fprintln(a.out, snap.User.Role)
			}
			if snap.TokenExpiry != nil {
				gray.Fprint(a.out, "expires: ")
				fmt.Fprintln(a.out, snap.TokenExpiry.Local().Format(time.RFC1123))
			}

			return nil
		},
	}
}

func (a *app) canCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "can <feature>",
		Short:       "Check whether the signed-in admin may use a feature",
		Args:        cobra.ExactArgs(1),
		Annotations: sessionRequired,
		RunE: func(cmd *cobra.Command, args []string) error {
			feature, err := identity.ParseFeature(args[0])
			if err != nil {
				return err
			}

			if !a.rt.machine.Snapshot().HasFeatureAccess(feature) {
				color.New(color.FgRed).Fprintf(a.out, "✗ %s\n", feature.Title())
				return errAccessDenied
			}

			color.New(color.FgGreen).Fprintf(a.out, "✓ %s\n", feature.Title())
			return nil
		},
	}
}

func (a *app) featuresCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "features",
		Short:       "List the features available to the signed-in admin",
		Args:        cobra.NoArgs,
		Annotations: sessionRequired,
		RunE: func(cmd *cobra.Command, args []string) error {
			visible := a.rt.machine.Snapshot().VisibleFeatures()
			if len(visible) == 0 {
				fmt.Fprintln(a.out, "No features are enabled for this account.")
				return nil
			}

			gray := color.New(color.FgHiBlack)
			for _, f := range visible {
				fmt.Fprintf(a.out, "%-14s", f)
				gray.Fprintln(a.out, f.Title())
			}
			return nil
		},
	}
}

func (a *app) getCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "get <feature>",
		Short:       "Print a feature screen's data from the backend",
		Args:        cobra.ExactArgs(1),
		Annotations: sessionRequired,
		RunE: func(cmd *cobra.Command, args []string) error {
			feature, err := identity.ParseFeature(args[0])
			if err != nil {
				return err
			}

			if !a.rt.machine.Snapshot().HasFeatureAccess(feature) {
				return fmt.Errorf("%w: you don't have access to %s", errAccessDenied, feature.Title())
			}

			endpoint, ok := a.conf.FeatureEndpoint(feature)
			if !ok {
				return fmt.Errorf("no backend endpoint configured for %s", feature)
			}

			raw, err := a.rt.api.Fetch(cmd.Context(), endpoint)
			if errors.Is(err, gateway.ErrSessionEvicted) {
				return errSessionExpired
			}
			if err != nil {
				return err
			}

			var pretty bytes.Buffer
			if err := json.Indent(&pretty, raw, "", "  "); err != nil {
				pretty.Reset()
				pretty.Write(raw)
			}
			fmt.Fprintln(a.out, pretty.String())

			return nil
		},
	}
}
