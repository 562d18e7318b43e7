package session

import (
	"fmt"
	"strings"
)

// Role is one of a closed set. Canonical casing is upper case, which is what
// route requirements are written in.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleEmployee Role = "EMPLOYEE"
)

// Roles lists every valid role.
var Roles = []Role{RoleAdmin, RoleEmployee}

// ParseRole canonicalises a role as returned by the server. A Spring style
// "ROLE_" prefix is accepted.
func ParseRole(s string) (Role, error) {
	r := strings.ToUpper(strings.TrimSpace(s))
	r = strings.TrimPrefix(r, "ROLE_")
	for _, known := range Roles {
		if Role(r) == known {
			return known, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Role        Role   `json:"role"`
}

// Session is a credential together with the profile it belongs to. The zero
// value means no session.
type Session struct {
	Credential string
	Profile    Profile
}

func (s Session) IsZero() bool {
	return s.Credential == ""
}

type State int

const (
	Anonymous State = iota
	Authenticating
	Authenticated
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Reason names the operation that produced a snapshot.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonRestore     Reason = "restore"
	ReasonLogin       Reason = "login"
	ReasonLoginFailed Reason = "login_failed"
	ReasonLogout      Reason = "logout"
	ReasonForced      Reason = "forced"
)

// Snapshot is what subscribers and readers observe. Session is zero unless
// State is Authenticated. Resolved stays false until the persisted session
// has been read or an explicit login/logout has happened.
type Snapshot struct {
	State    State
	Session  Session
	Resolved bool
	Reason   Reason
}

func (s Snapshot) Authenticated() bool {
	return s.State == Authenticated && !s.Session.IsZero()
}
