package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"workflowhub/console/internal/api"
	"workflowhub/console/internal/credstore"
	"workflowhub/console/internal/fakebackend"
	"workflowhub/console/internal/nav"
	"workflowhub/console/internal/session"
	"workflowhub/console/internal/transport"
)

const (
	waitFor = 2 * time.Second
	poll    = 5 * time.Millisecond
)

type stubSource struct {
	mu    sync.Mutex
	calls int
	fetch func(call int) ([]api.Notification, error)
}

func (s *stubSource) Notifications(ctx context.Context) ([]api.Notification, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()
	return s.fetch(call)
}

func (s *stubSource) MarkNotificationRead(context.Context, int64) error { return nil }
func (s *stubSource) DeleteNotification(context.Context, int64) error   { return nil }

func (s *stubSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestFetchesImmediatelyThenOnInterval(t *testing.T) {
	src := &stubSource{fetch: func(int) ([]api.Notification, error) {
		return []api.Notification{{ID: 1, Message: "hi"}}, nil
	}}
	p := New(src, Options{Interval: time.Hour})
	p.Start()
	t.Cleanup(p.Stop)

	require.Eventually(t, func() bool { return src.Calls() == 1 }, waitFor, poll)
	require.Eventually(t, func() bool { return len(p.Notifications()) == 1 }, waitFor, poll)
	require.Equal(t, 1, p.UnreadCount())

	p.Stop()
	fast := New(src, Options{Interval: 10 * time.Millisecond})
	fast.Start()
	t.Cleanup(fast.Stop)
	require.Eventually(t, func() bool { return src.Calls() >= 4 }, waitFor, poll)
}

func TestNetworkFailureKeepsCacheAndInterval(t *testing.T) {
	first := []api.Notification{{ID: 7, Message: "kept"}}
	src := &stubSource{fetch: func(call int) ([]api.Notification, error) {
		if call == 1 {
			return first, nil
		}
		return nil, &session.NetworkError{Op: "GET /api/notifications", Cause: errors.New("connection refused")}
	}}
	p := New(src, Options{Interval: 10 * time.Millisecond})
	p.Start()
	t.Cleanup(p.Stop)

	require.Eventually(t, func() bool { return src.Calls() >= 5 }, waitFor, poll)
	require.True(t, p.Running())
	require.Equal(t, first, p.Notifications())

	var netErr *session.NetworkError
	require.ErrorAs(t, p.Refresh(context.Background()), &netErr)
	require.Equal(t, first, p.Notifications())
}

func TestStaleResultIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	src := &stubSource{fetch: func(int) ([]api.Notification, error) {
		<-release
		return []api.Notification{{ID: 1, Message: "late"}}, nil
	}}
	p := New(src, Options{Interval: time.Hour})
	var updates atomic.Int32
	p.OnUpdate(func([]api.Notification) { updates.Add(1) })

	p.Start()
	require.Eventually(t, func() bool { return src.Calls() == 1 }, waitFor, poll)
	p.Watch(session.Snapshot{Resolved: true, Reason: session.ReasonLogout})
	require.False(t, p.Running())

	close(release)
	p.Stop()
	require.Empty(t, p.Notifications())
	require.Zero(t, updates.Load())
}

func TestRefreshRequiresRunningPoller(t *testing.T) {
	src := &stubSource{fetch: func(int) ([]api.Notification, error) { return nil, nil }}
	p := New(src, Options{})
	require.ErrorIs(t, p.Refresh(context.Background()), ErrNotRunning)
	require.NoError(t, p.MarkRead(context.Background(), 1))
	p.Stop()
}

type stack struct {
	backend *fakebackend.Backend
	mgr     *session.Manager
	history *nav.History
	poller  *Poller
}

func newStack(t *testing.T, interval time.Duration) *stack {
	t.Helper()
	backend := fakebackend.New(fakebackend.Options{})
	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(srv.Close)

	history := nav.NewHistory("/dashboard")
	ic := transport.NewInterceptor(http.DefaultTransport, history, transport.Options{LoginPath: "/api/auth/login"})
	client := api.New(srv.URL, "/api/auth/login", &http.Client{Transport: ic})
	mgr := session.NewManager(credstore.NewMemoryStore(), client, session.Options{})
	ic.Bind(mgr)

	p := New(client, Options{Interval: interval})
	mgr.Subscribe(p.Watch)
	t.Cleanup(p.Stop)
	return &stack{backend: backend, mgr: mgr, history: history, poller: p}
}

func TestUnauthorizedStopsPoller(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, 10*time.Millisecond)
	emp, err := s.backend.AddUser("emp@example.com", "Emp", "pw", "EMPLOYEE")
	require.NoError(t, err)
	s.backend.Notify(emp.ID, "welcome")

	require.False(t, s.poller.Running())
	_, err = s.mgr.Login(ctx, "emp@example.com", "pw")
	require.NoError(t, err)
	require.True(t, s.poller.Running())
	require.Eventually(t, func() bool { return s.poller.UnreadCount() == 1 }, waitFor, poll)

	s.backend.RevokeAll()
	require.Eventually(t, func() bool { return !s.poller.Running() }, waitFor, poll)
	s.poller.Stop()

	require.Equal(t, session.Anonymous, s.mgr.Current().State)
	require.Equal(t, session.ReasonForced, s.mgr.Current().Reason)
	require.Equal(t, "/login", s.history.Location())
	require.Empty(t, s.poller.Notifications())

	calls := s.backend.Count(http.MethodGet, "/api/notifications")
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, calls, s.backend.Count(http.MethodGet, "/api/notifications"))
}

func TestLogoutStopsAndEmptiesCache(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, time.Hour)
	emp, err := s.backend.AddUser("emp@example.com", "Emp", "pw", "EMPLOYEE")
	require.NoError(t, err)
	s.backend.Notify(emp.ID, "one")
	s.backend.Notify(emp.ID, "two")

	_, err = s.mgr.Login(ctx, "emp@example.com", "pw")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(s.poller.Notifications()) == 2 }, waitFor, poll)

	newest := s.poller.Notifications()[0]
	require.Equal(t, "two", newest.Message)
	require.NoError(t, s.poller.MarkRead(ctx, newest.ID))
	require.Equal(t, 1, s.poller.UnreadCount())
	require.NoError(t, s.poller.Delete(ctx, newest.ID))
	require.Len(t, s.poller.Notifications(), 1)

	require.NoError(t, s.mgr.Logout(ctx))
	require.False(t, s.poller.Running())
	require.Empty(t, s.poller.Notifications())
	require.Zero(t, s.poller.UnreadCount())
}

func TestServerErrorKeepsSessionAndCache(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, 10*time.Millisecond)
	emp, err := s.backend.AddUser("emp@example.com", "Emp", "pw", "EMPLOYEE")
	require.NoError(t, err)
	s.backend.Notify(emp.ID, "cached")

	_, err = s.mgr.Login(ctx, "emp@example.com", "pw")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(s.poller.Notifications()) == 1 }, waitFor, poll)

	s.backend.FailNotifications(http.StatusServiceUnavailable)
	before := s.backend.Count(http.MethodGet, "/api/notifications")
	require.Eventually(t, func() bool {
		return s.backend.Count(http.MethodGet, "/api/notifications") >= before+3
	}, waitFor, poll)

	require.True(t, s.poller.Running())
	require.True(t, s.mgr.Current().Authenticated())
	require.Len(t, s.poller.Notifications(), 1)
}
