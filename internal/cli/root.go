package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/lachlan2k/gatekeep/internal/config"
)

const (
	// Commands with this annotation only run with an authenticated session
	annotationSession = "gatekeep/session"

	// Commands with this annotation build their own runtime
	annotationOwnRuntime = "gatekeep/own-runtime"
)

var (
	errNotSignedIn    = errors.New("not signed in, run `gatekeep login` first")
	errSessionExpired = errors.New("session expired")
)

type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	configPath string

	conf *config.Config
	nav  *navigator
	rt   *runtime
}

// Execute runs the command line against the process's standard streams.
func Execute() error {
	return newRootCommand(os.Stdin, os.Stdout, os.Stderr).Execute()
}

func newRootCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{in: in, out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "gatekeep",
		Short: "Session and access gate for the admin console",
		Long: `gatekeep signs an operator in to the admin backend, keeps the session on this
machine, and gates every console screen on it.

Run "gatekeep serve" for the local web console, or use the commands below from a terminal.`,
		SilenceUsage:       true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}

	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "config.toml", "Path to config file")

	root.AddCommand(
		a.serveCommand(),
		a.loginCommand(),
		a.logoutCommand(),
		a.whoamiCommand(),
		a.canCommand(),
		a.featuresCommand(),
		a.getCommand(),
	)

	return root
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "help" || cmd.Name() == "completion" {
		return nil
	}

	conf, err := config.LoadFromTomlFileAndValidate(a.configPath)
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		conf, err = config.Default()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.conf = conf

	if cmd.Annotations[annotationOwnRuntime] != "" {
		return nil
	}

	a.nav = &navigator{out: a.errOut}
	a.rt, err = newRuntime(conf, a.nav, a.errOut)
	if err != nil {
		return err
	}

	if cmd.Annotations[annotationSession] != "" && !a.rt.machine.Snapshot().Authenticated() {
		return errNotSignedIn
	}

	return nil
}

func (a *app) teardown(cmd *cobra.Command, args []string) error {
	if a.rt == nil {
		return nil
	}
	return a.rt.Close()
}

var sessionRequired = map[string]string{annotationSession: "required"}
