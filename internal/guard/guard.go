// Package guard decides whether the current session may enter a route and
// performs the resulting redirect.
package guard

import (
	"log/slog"
	"slices"
	"sync"

	"workflowhub/console/internal/nav"
	"workflowhub/console/internal/session"
)

type Decision int

const (
	// Wait means the session is not settled yet. Nothing is rendered and
	// nothing is redirected.
	Wait Decision = iota
	RedirectLogin
	RedirectUnauthorized
	Allow
	NotFound
)

func (d Decision) String() string {
	switch d {
	case Wait:
		return "wait"
	case RedirectLogin:
		return "redirect_login"
	case RedirectUnauthorized:
		return "redirect_unauthorized"
	case Allow:
		return "allow"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Decide is the access rule for a protected route. With no required roles
// any authenticated session is allowed.
func Decide(snap session.Snapshot, required ...session.Role) Decision {
	if !snap.Resolved || snap.State == session.Authenticating {
		return Wait
	}
	if !snap.Authenticated() {
		return RedirectLogin
	}
	if len(required) > 0 && !hasRole(snap.Session.Profile.Role, required) {
		return RedirectUnauthorized
	}
	return Allow
}

func hasRole(role session.Role, required []session.Role) bool {
	return slices.Contains(required, role)
}

type Route struct {
	Path string
	// Public routes are reachable without a session.
	Public bool
	Roles  []session.Role
}

var Routes = []Route{
	{Path: "/", Public: true},
	{Path: "/login", Public: true},
	{Path: "/unauthorized", Public: true},
	{Path: "/dashboard"},
	{Path: "/settings"},
	{Path: "/create-request", Roles: []session.Role{session.RoleEmployee, session.RoleAdmin}},
	{Path: "/my-requests", Roles: []session.Role{session.RoleEmployee, session.RoleAdmin}},
	{Path: "/approvals", Roles: []session.Role{session.RoleAdmin}},
	{Path: "/all-requests", Roles: []session.Role{session.RoleAdmin}},
	{Path: "/analytics", Roles: []session.Role{session.RoleAdmin}},
	{Path: "/users", Roles: []session.Role{session.RoleAdmin}},
	{Path: "/workflows", Roles: []session.Role{session.RoleAdmin}},
	{Path: "/audit-logs", Roles: []session.Role{session.RoleAdmin}},
	{Path: "/sla-settings", Roles: []session.Role{session.RoleAdmin}},
}

// SnapshotSource is the slice of the session manager the guard reads.
type SnapshotSource interface {
	Current() session.Snapshot
}

type Options struct {
	LoginRoute        string
	UnauthorizedRoute string
	// Routes defaults to the package Routes table.
	Routes []Route
	Logger *slog.Logger
}

// Guard applies Decide to a navigator. Navigation is its only side effect.
type Guard struct {
	nav    nav.Navigator
	source SnapshotSource
	opts   Options
	log    *slog.Logger

	mu      sync.Mutex
	pending string
}

func New(navigator nav.Navigator, source SnapshotSource, opts Options) *Guard {
	if opts.LoginRoute == "" {
		opts.LoginRoute = "/login"
	}
	if opts.UnauthorizedRoute == "" {
		opts.UnauthorizedRoute = "/unauthorized"
	}
	if opts.Routes == nil {
		opts.Routes = Routes
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Guard{nav: navigator, source: source, opts: opts, log: log}
}

// Evaluate decides path against snap without navigating.
func (g *Guard) Evaluate(path string, snap session.Snapshot) Decision {
	route, ok := g.lookup(path)
	if !ok {
		return NotFound
	}
	if route.Public {
		return Allow
	}
	return Decide(snap, route.Roles...)
}

// Enter tries to move to path. A Wait decision is remembered and retried on
// the next transition that settles the session.
func (g *Guard) Enter(path string) Decision {
	path = nav.Clean(path)
	d := g.Evaluate(path, g.source.Current())

	g.mu.Lock()
	if d == Wait {
		g.pending = path
	} else {
		g.pending = ""
	}
	g.mu.Unlock()

	g.apply(path, d)
	return d
}

// Watch re-evaluates after a session transition. Register it with
// session.Manager.Subscribe.
func (g *Guard) Watch(snap session.Snapshot) {
	g.mu.Lock()
	target := g.pending
	if target != "" && Decide(snap) != Wait {
		g.pending = ""
	}
	g.mu.Unlock()

	if target == "" {
		target = g.nav.Location()
	}
	d := g.Evaluate(target, snap)
	if d == Wait {
		return
	}
	g.apply(target, d)
}

func (g *Guard) apply(path string, d Decision) {
	switch d {
	case Allow:
		g.nav.Navigate(path)
	case RedirectLogin:
		g.log.Info("route requires a session", "path", path)
		g.nav.Navigate(g.opts.LoginRoute)
	case RedirectUnauthorized:
		g.log.Warn("route access denied", "path", path)
		g.nav.Navigate(g.opts.UnauthorizedRoute)
	}
}

func (g *Guard) lookup(path string) (Route, bool) {
	path = nav.Clean(path)
	for _, r := range g.opts.Routes {
		if r.Path == path {
			return r, true
		}
	}
	return Route{}, false
}
