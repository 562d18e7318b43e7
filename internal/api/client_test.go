package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"workflowhub/console/internal/credstore"
	"workflowhub/console/internal/fakebackend"
	"workflowhub/console/internal/nav"
	"workflowhub/console/internal/session"
	"workflowhub/console/internal/transport"
)

type stack struct {
	backend *fakebackend.Backend
	client  *Client
	mgr     *session.Manager
	store   *credstore.MemoryStore
	history *nav.History
}

func newStack(t *testing.T, opts fakebackend.Options) *stack {
	t.Helper()
	backend := fakebackend.New(opts)
	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(srv.Close)

	history := nav.NewHistory("/dashboard")
	ic := transport.NewInterceptor(http.DefaultTransport, history, transport.Options{LoginPath: "/api/auth/login", LoginRoute: "/login"})
	client := New(srv.URL, "/api/auth/login", &http.Client{Transport: ic})
	store := credstore.NewMemoryStore()
	mgr := session.NewManager(store, client, session.Options{})
	ic.Bind(mgr)

	return &stack{backend: backend, client: client, mgr: mgr, store: store, history: history}
}

func (s *stack) seed(t *testing.T) (emp, admin fakebackend.User) {
	t.Helper()
	var err error
	emp, err = s.backend.AddUser("emp@example.com", "Emp", "pw", "EMPLOYEE")
	require.NoError(t, err)
	admin, err = s.backend.AddUser("boss@example.com", "Boss", "pw", "ADMIN")
	require.NoError(t, err)
	return emp, admin
}

func TestLoginNestedPayloadAttachesBearer(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, fakebackend.Options{NestedLogin: true})
	s.seed(t)

	sess, err := s.mgr.Login(ctx, "boss@example.com", "pw")
	require.NoError(t, err)
	require.Equal(t, session.RoleAdmin, sess.Profile.Role)
	require.Equal(t, "Boss", sess.Profile.DisplayName)

	_, err = s.client.PendingWorkflows(ctx)
	require.NoError(t, err)

	reqs := s.backend.Requests()
	last := reqs[len(reqs)-1]
	require.Equal(t, "/api/admin/workflows/pending", last.Path)
	require.Equal(t, "Bearer "+sess.Credential, last.Authorization)
	require.NotEmpty(t, last.RequestID)
	require.Empty(t, reqs[0].Authorization, "login must not carry a credential")
}

func TestLoginInvalidCredentials(t *testing.T) {
	s := newStack(t, fakebackend.Options{})
	s.seed(t)

	_, err := s.mgr.Login(context.Background(), "emp@example.com", "wrong")

	var authErr *session.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	require.ErrorIs(t, err, session.ErrInvalidCredentials)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusUnauthorized, statusErr.Status)
	require.Equal(t, "Invalid email or password", statusErr.Message)
	require.Equal(t, session.Anonymous, s.mgr.Current().State)
	require.Empty(t, s.store.Raw())
}

func TestLoginBadRequestIsInvalidCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Bad credentials"}`))
	}))
	t.Cleanup(srv.Close)

	_, err := New(srv.URL, "", nil).Login(context.Background(), "a@x.io", "pw")
	require.ErrorIs(t, err, session.ErrInvalidCredentials)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, "Bad credentials", statusErr.Message)
}

func TestForbiddenKeepsSession(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, fakebackend.Options{})
	s.seed(t)
	_, err := s.mgr.Login(ctx, "emp@example.com", "pw")
	require.NoError(t, err)

	_, err = s.client.PendingWorkflows(ctx)

	var authzErr *session.AuthorizationError
	require.ErrorAs(t, err, &authzErr)
	require.Equal(t, "Access denied", authzErr.Message)
	require.True(t, s.mgr.Current().Authenticated())
	require.Equal(t, "/dashboard", s.history.Location())
}

func TestRevokedCredentialForcesLogout(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, fakebackend.Options{})
	s.seed(t)
	_, err := s.mgr.Login(ctx, "emp@example.com", "pw")
	require.NoError(t, err)
	s.backend.RevokeAll()

	_, err = s.client.Notifications(ctx)

	var rejected *session.TokenRejectedError
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, "/api/notifications", rejected.Path)
	require.Equal(t, session.Anonymous, s.mgr.Current().State)
	require.Empty(t, s.store.Raw())
	require.Equal(t, "/login", s.history.Location())
}

func TestWorkflowLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, fakebackend.Options{})
	s.seed(t)

	_, err := s.mgr.Login(ctx, "emp@example.com", "pw")
	require.NoError(t, err)
	_, err = s.client.CreateWorkflow(ctx, NewWorkflow{Title: " "})
	require.Error(t, err)
	created, err := s.client.CreateWorkflow(ctx, NewWorkflow{Title: "Laptop", Description: "Replacement"})
	require.NoError(t, err)
	require.Equal(t, StatusPending, created.Status)
	require.False(t, created.CreatedAt.IsZero())

	mine, err := s.client.MyWorkflows(ctx)
	require.NoError(t, err)
	require.Len(t, mine, 1)

	require.NoError(t, s.mgr.Logout(ctx))
	_, err = s.mgr.Login(ctx, "boss@example.com", "pw")
	require.NoError(t, err)

	pending, err := s.client.PendingWorkflows(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	approved, err := s.client.ApproveWorkflow(ctx, pending[0].ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	require.Equal(t, "Boss", approved.ApprovedBy.Name)

	_, err = s.client.RejectWorkflow(ctx, pending[0].ID)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusConflict, statusErr.Status)

	summary, err := s.client.AdminDashboard(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), summary["approved"])
	require.Equal(t, int64(2), summary["users"])
}

func TestNotificationCalls(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, fakebackend.Options{})
	emp, _ := s.seed(t)
	first := s.backend.Notify(emp.ID, "hello")
	s.backend.Notify(emp.ID, "again")

	_, err := s.mgr.Login(ctx, "emp@example.com", "pw")
	require.NoError(t, err)

	require.NoError(t, s.client.MarkNotificationRead(ctx, first.ID))
	require.NoError(t, s.client.DeleteNotification(ctx, first.ID+1))
	list, err := s.client.Notifications(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.True(t, list[0].Read)
	require.Equal(t, "hello", list[0].Message)

	summary, err := s.client.EmployeeDashboard(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), summary["total"])
}

func TestNetworkErrorLeavesSession(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, fakebackend.Options{})
	s.seed(t)
	_, err := s.mgr.Login(ctx, "emp@example.com", "pw")
	require.NoError(t, err)

	dead := New("http://127.0.0.1:1", "/api/auth/login", s.client.httpClient)
	_, err = dead.Notifications(ctx)

	var netErr *session.NetworkError
	require.ErrorAs(t, err, &netErr)
	require.True(t, s.mgr.Current().Authenticated())
}

func TestOversizedResponseIsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"message":"`))
		_, _ = w.Write([]byte(strings.Repeat("x", maxBodyBytes)))
		_, _ = w.Write([]byte(`"}]`))
	}))
	t.Cleanup(srv.Close)

	_, err := New(srv.URL, "", nil).Notifications(context.Background())
	require.ErrorIs(t, err, ErrResponseTooLarge)

	exact := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		body := `[{"id":1,"message":"`
		body += strings.Repeat("x", maxBodyBytes-len(body)-len(`"}]`)) + `"}]`
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(exact.Close)

	list, err := New(exact.URL, "", nil).Notifications(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestErrorMessage(t *testing.T) {
	cases := map[string]string{
		`{"message":"m"}`:     "m",
		`{"error":"e"}`:       "e",
		`Invalid credentials`: "Invalid credentials",
		`<html>oops</html>`:   "",
		``:                    "",
	}
	for body, want := range cases {
		require.Equal(t, want, errorMessage([]byte(body)), "body %q", body)
	}
}

func TestTimestampFormats(t *testing.T) {
	var ts Timestamp
	require.NoError(t, ts.UnmarshalJSON([]byte(`"2025-03-01T10:15:30"`)))
	require.Equal(t, 10, ts.Hour())
	require.NoError(t, ts.UnmarshalJSON([]byte(`"2025-03-01T10:15:30Z"`)))
	require.NoError(t, ts.UnmarshalJSON([]byte(`null`)))
	require.True(t, ts.IsZero())
	require.Error(t, ts.UnmarshalJSON([]byte(`"yesterday"`)))
}
