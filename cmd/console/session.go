package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"workflowhub/console/internal/guard"
)

func newLoginCmd(c *console) *cobra.Command {
	var email, passwordFile string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Long: `Sign in with an email and password. The password is read from the
terminal without echo, from --password-file, or from stdin when it is not a
terminal.

Examples:
  console login --email ada@example.com
  console login --email ada@example.com --password-file ./pw.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			reader := bufio.NewReader(c.in)
			if email == "" {
				fmt.Fprint(c.errOut, "Email: ")
				line, err := readLine(reader)
				if err != nil {
					return fmt.Errorf("read email: %w", err)
				}
				email = line
			}
			password, err := readPassword(c, reader, passwordFile)
			if err != nil {
				return err
			}

			sess, err := c.app.Session.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			_ = c.enter("/dashboard")
			fmt.Fprintf(c.out, "Signed in as %s <%s> (%s)\n", sess.Profile.DisplayName, sess.Profile.Email, sess.Profile.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&passwordFile, "password-file", "", "read the password from this file")
	return cmd
}

func readPassword(c *console, reader *bufio.Reader, passwordFile string) (string, error) {
	if passwordFile != "" {
		data, err := os.ReadFile(passwordFile)
		if err != nil {
			return "", fmt.Errorf("read password file: %w", err)
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	}
	if f, ok := c.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(c.errOut, "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(c.errOut)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	line, err := readLine(reader)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return line, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newLogoutCmd(c *console) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.Session.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "Signed out")
			return nil
		},
	}
}

func newWhoamiCmd(c *console) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap := c.app.Session.Current()
			if !snap.Authenticated() {
				fmt.Fprintln(c.out, "Not signed in.")
				return nil
			}
			p := snap.Session.Profile
			fmt.Fprintf(c.out, "ID:    %s\n", p.ID)
			fmt.Fprintf(c.out, "Name:  %s\n", p.DisplayName)
			fmt.Fprintf(c.out, "Email: %s\n", p.Email)
			fmt.Fprintf(c.out, "Role:  %s\n", p.Role)
			return nil
		},
	}
}

func newOpenCmd(c *console) *cobra.Command {
	return &cobra.Command{
		Use:   "open <route>",
		Short: "Check access to a dashboard route",
		Long: `Evaluate a dashboard route against the current session and print
where the console ends up.

Examples:
  console open /approvals`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := c.app.Guard.Enter(args[0])
			if d == guard.NotFound {
				return fmt.Errorf("no such route %q", args[0])
			}
			fmt.Fprintf(c.out, "%s: %s\n", d, c.app.Nav.Location())
			return nil
		},
	}
}
