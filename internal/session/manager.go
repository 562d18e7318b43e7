// Package session owns the console's authentication state. It is the only
// writer of the credential store.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"workflowhub/console/internal/audit"
	"workflowhub/console/internal/credstore"
)

// Authenticator exchanges an email and password for the raw login response
// body. Rejected credentials are reported as ErrInvalidCredentials and
// transport failures as *NetworkError.
type Authenticator interface {
	Login(ctx context.Context, email, password string) ([]byte, error)
}

// AuditRecorder receives one event per state transition.
type AuditRecorder interface {
	Record(e audit.Event) error
}

type Options struct {
	Logger *slog.Logger
	Audit  AuditRecorder
}

type subscriber struct {
	id int
	fn func(Snapshot)
}

type delivery struct {
	snap Snapshot
	subs []subscriber
}

// Manager serializes every transition. Subscribers run outside the state
// lock and in commit order, so a subscriber may read Current or call back
// into the manager; a transition caused from inside a subscriber is
// delivered after that subscriber returns.
type Manager struct {
	store credstore.Store
	auth  Authenticator
	log   *slog.Logger
	audit AuditRecorder

	mu         sync.Mutex
	state      State
	session    Session
	resolved   bool
	reason     Reason
	generation uint64
	subs       []subscriber
	nextSub    int
	queue      []delivery
	publishing bool
}

func NewManager(store credstore.Store, auth Authenticator, opts Options) *Manager {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		store: store,
		auth:  auth,
		log:   log,
		audit: opts.Audit,
	}
}

// Restore reads the persisted session once. A complete, valid entry becomes
// Authenticated; anything partial or unparseable is logged, cleared and the
// manager stays Anonymous. Either way the manager is Resolved afterwards.
// The only error returned is a failure to clear a malformed entry.
func (m *Manager) Restore(ctx context.Context) error {
	m.mu.Lock()
	if m.resolved {
		m.mu.Unlock()
		return nil
	}
	gen := m.generation

	if err := m.store.PurgeLegacy(ctx); err != nil {
		m.log.Warn("purge legacy credential keys failed", "error", err)
	}

	var malformed error
	entry, err := m.store.Get(ctx)
	switch {
	case errors.Is(err, credstore.ErrNotFound):
		m.resolved = true
		m.commit(Anonymous, Session{}, ReasonRestore)
		return nil
	case err != nil:
		malformed = &MalformedSessionError{Reason: "unreadable store", Cause: err}
	case !entry.Complete():
		malformed = &MalformedSessionError{Reason: "partial entry"}
	default:
		sess, derr := decodeEntry(entry)
		if derr == nil {
			m.resolved = true
			m.commit(Authenticated, sess, ReasonRestore)
			m.record(audit.ActionRestore, audit.OutcomeSuccess, gen, sess.Profile, "")
			return nil
		}
		malformed = derr
	}

	m.log.Warn("discarding persisted session", "error", malformed)
	var result error
	if err := m.store.Clear(ctx); err != nil {
		m.log.Error("clear malformed session failed", "error", err)
		result = errors.Join(malformed, fmt.Errorf("clear credential store: %w", err))
	}
	m.resolved = true
	m.commit(Anonymous, Session{}, ReasonRestore)
	m.record(audit.ActionRestore, audit.OutcomeDiscarded, gen, Profile{}, malformed.Error())
	return result
}

// Login exchanges credentials for a session. Only one login may be in
// flight; a Logout or ForceLogout that lands while it is in flight wins and
// the late response is discarded.
func (m *Manager) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return Session{}, &AuthenticationError{Reason: "email and password are required"}
	}

	m.mu.Lock()
	if m.state == Authenticating {
		m.mu.Unlock()
		return Session{}, &AuthenticationError{Reason: "login rejected", Cause: ErrLoginInProgress}
	}
	if m.state == Authenticated {
		// The old credential must not ride along on requests made while the
		// new login is pending.
		if err := m.store.Clear(ctx); err != nil {
			m.log.Error("clear previous session failed", "error", err)
		}
	}
	m.generation++
	gen := m.generation
	m.resolved = true
	m.commit(Authenticating, Session{}, ReasonLogin)

	raw, err := m.auth.Login(ctx, email, password)
	var sess Session
	if err == nil {
		sess, err = parseLoginPayload(raw, email)
	}

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		m.log.Info("discarding superseded login", "email", email)
		m.record(audit.ActionLogin, audit.OutcomeDiscarded, gen, Profile{Email: email}, "superseded")
		return Session{}, &AuthenticationError{Reason: "login discarded", Cause: ErrLoginSuperseded}
	}
	if err == nil {
		entry, encErr := encodeEntry(sess)
		if encErr == nil {
			encErr = m.store.Put(ctx, entry)
		}
		if encErr != nil {
			err = fmt.Errorf("persist session: %w", encErr)
		}
	}
	if err != nil {
		m.commit(Anonymous, Session{}, ReasonLoginFailed)
		authErr := &AuthenticationError{Reason: loginFailureReason(err), Cause: err}
		m.log.Warn("login failed", "email", email, "error", err)
		m.record(audit.ActionLogin, audit.OutcomeFailed, gen, Profile{Email: email}, authErr.Reason)
		return Session{}, authErr
	}

	m.commit(Authenticated, sess, ReasonLogin)
	m.log.Info("login succeeded", "user_id", sess.Profile.ID, "role", sess.Profile.Role)
	m.record(audit.ActionLogin, audit.OutcomeSuccess, gen, sess.Profile, "")
	return sess, nil
}

// Logout clears the session and the store. It is safe to call in any state;
// an in-flight login is superseded.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	prev := m.session.Profile
	changed := m.state != Anonymous || !m.resolved
	m.generation++
	gen := m.generation
	clearErr := m.store.Clear(ctx)
	m.resolved = true
	if changed {
		m.commit(Anonymous, Session{}, ReasonLogout)
	} else {
		m.mu.Unlock()
	}

	if clearErr != nil {
		m.log.Error("clear credential store failed", "error", clearErr)
		return fmt.Errorf("clear credential store: %w", clearErr)
	}
	if changed {
		m.log.Info("logged out", "user_id", prev.ID)
		m.record(audit.ActionLogout, audit.OutcomeSuccess, gen, prev, "")
	}
	return nil
}

// ForceLogout tears down the session after the server rejected credential.
// It reports whether a teardown happened: false when there is no session or
// the rejected credential is not the current one, which makes repeated
// calls for the same rejection no-ops.
func (m *Manager) ForceLogout(ctx context.Context, credential string) bool {
	m.mu.Lock()
	if m.state != Authenticated || m.session.Credential != credential {
		m.mu.Unlock()
		return false
	}
	prev := m.session.Profile
	m.generation++
	gen := m.generation
	if err := m.store.Clear(ctx); err != nil {
		m.log.Error("clear credential store failed", "error", err)
	}
	m.commit(Anonymous, Session{}, ReasonForced)
	m.log.Warn("session expired or revoked", "user_id", prev.ID)
	m.record(audit.ActionForcedOut, audit.OutcomeSuccess, gen, prev, "credential rejected")
	return true
}

// Current returns the latest committed snapshot.
func (m *Manager) Current() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Credential returns the bearer credential to attach to outgoing calls.
func (m *Manager) Credential() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Authenticated {
		return "", false
	}
	return m.session.Credential, true
}

// Subscribe registers fn for every future transition and returns a function
// that removes it. fn is not called with the current snapshot. Deliveries are
// serialized, so fn must not block on another goroutine that is itself
// waiting for a transition to be delivered.
func (m *Manager) Subscribe(fn func(Snapshot)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSub++
	id := m.nextSub
	m.subs = append(m.subs, subscriber{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, s := range m.subs {
				if s.id == id {
					m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (m *Manager) snapshotLocked() Snapshot {
	snap := Snapshot{State: m.state, Resolved: m.resolved, Reason: m.reason}
	if m.state == Authenticated {
		snap.Session = m.session
	}
	return snap
}

// commit applies a transition and queues its delivery. It must be called
// with mu held and returns with mu released. The goroutine that finds the
// queue idle drains it, so a commit made while another goroutine is
// delivering returns before its own delivery has run.
func (m *Manager) commit(state State, sess Session, reason Reason) {
	m.state = state
	m.session = sess
	m.reason = reason
	m.queue = append(m.queue, delivery{snap: m.snapshotLocked(), subs: slices.Clone(m.subs)})
	if m.publishing {
		m.mu.Unlock()
		return
	}

	m.publishing = true
	for len(m.queue) > 0 {
		d := m.queue[0]
		m.queue[0] = delivery{}
		m.queue = m.queue[1:]
		m.mu.Unlock()
		for _, s := range d.subs {
			s.fn(d.snap)
		}
		m.mu.Lock()
	}
	m.publishing = false
	m.mu.Unlock()
}

func (m *Manager) record(action, outcome string, gen uint64, p Profile, reason string) {
	if m.audit == nil {
		return
	}
	err := m.audit.Record(audit.Event{
		Generation: gen,
		Action:     action,
		Outcome:    outcome,
		UserID:     p.ID,
		Actor:      firstNonEmpty(p.Email, p.ID),
		Role:       string(p.Role),
		Reason:     reason,
	})
	if err != nil {
		m.log.Warn("audit record failed", "action", action, "error", err)
	}
}

func loginFailureReason(err error) string {
	var netErr *NetworkError
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid email or password"
	case errors.As(err, &netErr):
		return "login service unreachable"
	case errors.Is(err, ErrUnknownRole):
		return "account role is not supported"
	case errors.Is(err, ErrMissingCredential), errors.Is(err, ErrMalformedResponse):
		return "unexpected login response"
	default:
		return "login failed"
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
