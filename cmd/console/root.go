package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"workflowhub/console/internal/app"
	"workflowhub/console/internal/config"
	"workflowhub/console/internal/guard"
)

var (
	errNotSignedIn  = errors.New("not signed in, run `console login`")
	errNotPermitted = errors.New("not permitted")
)

type console struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	// loadConfig defaults to config.Load.
	loadConfig func() (config.Config, error)
	appOpts    app.Options

	app *app.App
}

func newRootCmd(c *console) *cobra.Command {
	if c.loadConfig == nil {
		c.loadConfig = config.Load
	}

	root := &cobra.Command{
		Use:           "console",
		Short:         "Work with the workflow hub from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			opts := c.appOpts
			if opts.LogOutput == nil {
				opts.LogOutput = c.errOut
			}
			a, err := app.New(cmd.Context(), cfg, opts)
			if err != nil {
				return fmt.Errorf("create app: %w", err)
			}
			c.app = a
			return a.Start(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return c.close()
		},
	}
	root.SetIn(c.in)
	root.SetOut(c.out)
	root.SetErr(c.errOut)

	root.AddCommand(
		newLoginCmd(c),
		newLogoutCmd(c),
		newWhoamiCmd(c),
		newOpenCmd(c),
		newNotificationsCmd(c),
		newWorkflowsCmd(c),
		newDashboardCmd(c),
	)
	return root
}

func (c *console) close() error {
	if c.app == nil {
		return nil
	}
	err := c.app.Close()
	c.app = nil
	return err
}

// enter moves to route and turns a refusal into an error.
func (c *console) enter(route string) error {
	switch d := c.app.Guard.Enter(route); d {
	case guard.Allow:
		return nil
	case guard.RedirectLogin:
		return errNotSignedIn
	case guard.RedirectUnauthorized:
		return errNotPermitted
	default:
		return fmt.Errorf("cannot open %s: %s", route, d)
	}
}
