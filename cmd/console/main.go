package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"workflowhub/console/internal/session"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &console{in: os.Stdin, out: os.Stdout, errOut: os.Stderr}
	err := newRootCmd(c).ExecuteContext(ctx)
	if cerr := c.close(); err == nil {
		err = cerr
	}
	if err != nil {
		if ctx.Err() != nil {
			return 130
		}
		fmt.Fprintf(os.Stderr, "error: %s\n", describe(err))
		return 1
	}
	return 0
}

// describe turns an error into the line shown to the user.
func describe(err error) string {
	var (
		authErr  *session.AuthenticationError
		authzErr *session.AuthorizationError
		rejected *session.TokenRejectedError
		netErr   *session.NetworkError
	)
	switch {
	case errors.As(err, &authErr):
		return authErr.Reason
	case errors.As(err, &authzErr), errors.Is(err, errNotPermitted):
		return "not permitted"
	case errors.As(err, &rejected):
		return "session expired, sign in again with `console login`"
	case errors.As(err, &netErr):
		return "cannot reach the workflow hub: " + netErr.Cause.Error()
	default:
		return err.Error()
	}
}
