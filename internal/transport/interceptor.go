// Package transport decorates every outgoing API call with the session's
// credential and reacts to the server rejecting it.
package transport

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"workflowhub/console/internal/nav"
	"workflowhub/console/internal/session"
)

const RequestIDHeader = "X-Request-Id"

// SessionSource is the slice of the session manager the interceptor needs.
type SessionSource interface {
	Credential() (string, bool)
	Current() session.Snapshot
	ForceLogout(ctx context.Context, credential string) bool
}

type Options struct {
	// LoginPath is the API path of the login endpoint. Calls to it never
	// carry a credential and a 401 from it is not a session rejection.
	LoginPath string
	// LoginRoute is where the user is sent after a rejection.
	LoginRoute string
	Logger     *slog.Logger
}

// Interceptor is an http.RoundTripper. Until Bind is called requests are
// forwarded without a credential.
type Interceptor struct {
	next http.RoundTripper
	nav  nav.Navigator
	opts Options
	log  *slog.Logger

	mu     sync.RWMutex
	source SessionSource
}

func NewInterceptor(next http.RoundTripper, navigator nav.Navigator, opts Options) *Interceptor {
	if next == nil {
		next = http.DefaultTransport
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if opts.LoginRoute == "" {
		opts.LoginRoute = "/login"
	}
	return &Interceptor{next: next, nav: navigator, opts: opts, log: log}
}

func (ic *Interceptor) Bind(src SessionSource) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	ic.source = src
}

func (ic *Interceptor) sessionSource() SessionSource {
	ic.mu.RLock()
	defer ic.mu.RUnlock()
	return ic.source
}

func (ic *Interceptor) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	if out.Header.Get(RequestIDHeader) == "" {
		out.Header.Set(RequestIDHeader, uuid.NewString())
	}

	src := ic.sessionSource()
	login := ic.isLogin(out)
	var credential string
	switch {
	case login:
		out.Header.Del("Authorization")
	case src != nil:
		if tok, ok := src.Credential(); ok {
			credential = tok
			out.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := ic.next.RoundTrip(out)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		if !login {
			ic.rejected(out, src, credential)
		}
	case http.StatusForbidden:
		ic.log.Warn("request not permitted",
			"method", out.Method,
			"path", out.URL.Path,
			"request_id", out.Header.Get(RequestIDHeader),
		)
	}
	return resp, nil
}

func (ic *Interceptor) rejected(req *http.Request, src SessionSource, credential string) {
	ctx := context.WithoutCancel(req.Context())
	tornDown := false
	if src != nil {
		tornDown = src.ForceLogout(ctx, credential)
		// A 401 for a credential that has since been replaced, or one that
		// lands while a new login is pending, says nothing about the session
		// the user now has.
		if snap := src.Current(); !tornDown && (snap.Authenticated() || snap.State == session.Authenticating) {
			return
		}
	}
	if tornDown {
		ic.log.Warn("credential rejected, session cleared",
			"method", req.Method,
			"path", req.URL.Path,
			"request_id", req.Header.Get(RequestIDHeader),
		)
	}
	if ic.nav != nil && ic.nav.Location() != ic.opts.LoginRoute {
		ic.nav.Navigate(ic.opts.LoginRoute)
	}
}

func (ic *Interceptor) isLogin(req *http.Request) bool {
	if ic.opts.LoginPath == "" {
		return false
	}
	return strings.HasSuffix(strings.TrimRight(req.URL.Path, "/"), ic.opts.LoginPath)
}
