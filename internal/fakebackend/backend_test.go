package fakebackend

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
)

func newServer(t *testing.T, opts Options) (*Backend, *httptest.Server) {
	t.Helper()
	b := New(opts)
	srv := httptest.NewServer(b.Handler())
	t.Cleanup(srv.Close)
	return b, srv
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func login(t *testing.T, srv *httptest.Server, email, password string) string {
	t.Helper()
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/auth/login", "", map[string]string{"email": email, "password": password})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected login 200, got %d", resp.StatusCode)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return out.Token
}

func TestLoginFlatAndNestedShapes(t *testing.T) {
	for _, nested := range []bool{false, true} {
		b, srv := newServer(t, Options{NestedLogin: nested})
		if _, err := b.AddUser("ada@example.com", "Ada", "s3cret", "ADMIN"); err != nil {
			t.Fatalf("AddUser() error: %v", err)
		}

		resp := doJSON(t, http.MethodPost, srv.URL+"/api/auth/login", "", map[string]string{"email": "ada@example.com", "password": "s3cret"})
		var out map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		_, hasUser := out["user"]
		if hasUser != nested {
			t.Fatalf("nested=%v but response was %v", nested, out)
		}
		if out["token"] == "" {
			t.Fatalf("expected token in %v", out)
		}
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	b, srv := newServer(t, Options{})
	_, _ = b.AddUser("ada@example.com", "Ada", "s3cret", "ADMIN")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/auth/login", "", map[string]string{"email": "ada@example.com", "password": "nope"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/auth/login", "", map[string]string{"email": ""})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing fields, got %d", resp.StatusCode)
	}
}

func TestRoleEnforcement(t *testing.T) {
	b, srv := newServer(t, Options{})
	_, _ = b.AddUser("emp@example.com", "Emp", "pw", "EMPLOYEE")
	token := login(t, srv, "emp@example.com", "pw")

	if resp := doJSON(t, http.MethodGet, srv.URL+"/api/admin/workflows/pending", "", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
	if resp := doJSON(t, http.MethodGet, srv.URL+"/api/admin/workflows/pending", token, nil); resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for employee, got %d", resp.StatusCode)
	}
	if resp := doJSON(t, http.MethodGet, srv.URL+"/api/workflows/my", token, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for own workflows, got %d", resp.StatusCode)
	}

	b.RevokeAll()
	if resp := doJSON(t, http.MethodGet, srv.URL+"/api/workflows/my", token, nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after revoke, got %d", resp.StatusCode)
	}
}

func TestWorkflowApprovalNotifiesOwner(t *testing.T) {
	b, srv := newServer(t, Options{})
	emp, _ := b.AddUser("emp@example.com", "Emp", "pw", "EMPLOYEE")
	_, _ = b.AddUser("boss@example.com", "Boss", "pw", "ADMIN")
	empToken := login(t, srv, "emp@example.com", "pw")
	adminToken := login(t, srv, "boss@example.com", "pw")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/workflows", empToken, map[string]string{"title": "Laptop", "description": "New laptop"})
	var wf Workflow
	if err := json.NewDecoder(resp.Body).Decode(&wf); err != nil {
		t.Fatalf("decode workflow: %v", err)
	}
	if wf.Status != "PENDING" || wf.User.ID != emp.ID {
		t.Fatalf("unexpected workflow: %+v", wf)
	}

	resp = doJSON(t, http.MethodPut, srv.URL+"/api/admin/workflows/"+itoa(wf.ID)+"/approve", adminToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected approve 200, got %d", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodPut, srv.URL+"/api/admin/workflows/"+itoa(wf.ID)+"/reject", adminToken, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for second decision, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/notifications", empToken, nil)
	var notes []Notification
	if err := json.NewDecoder(resp.Body).Decode(&notes); err != nil {
		t.Fatalf("decode notifications: %v", err)
	}
	if len(notes) != 1 || notes[0].Read {
		t.Fatalf("expected one unread notification, got %+v", notes)
	}

	resp = doJSON(t, http.MethodPut, srv.URL+"/api/notifications/"+itoa(notes[0].ID)+"/read", empToken, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 for mark read, got %d", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/notifications/"+itoa(notes[0].ID), adminToken, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 deleting another user's notification, got %d", resp.StatusCode)
	}
}

func TestFailNotifications(t *testing.T) {
	b, srv := newServer(t, Options{})
	_, _ = b.AddUser("emp@example.com", "Emp", "pw", "EMPLOYEE")
	token := login(t, srv, "emp@example.com", "pw")

	b.FailNotifications(http.StatusServiceUnavailable)
	if resp := doJSON(t, http.MethodGet, srv.URL+"/api/notifications", token, nil); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected injected 503, got %d", resp.StatusCode)
	}
	b.FailNotifications(0)
	if resp := doJSON(t, http.MethodGet, srv.URL+"/api/notifications", token, nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 after reset, got %d", resp.StatusCode)
	}
	if got := b.Count(http.MethodGet, "/api/notifications"); got != 2 {
		t.Fatalf("expected 2 recorded notification calls, got %d", got)
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := map[string]bool{
		"Bearer abc":  true,
		"bearer  abc": true,
		"Basic abc":   false,
		"Bearer ":     false,
		"":            false,
	}
	for header, ok := range cases {
		_, err := extractBearerToken(header)
		if (err == nil) != ok {
			t.Fatalf("extractBearerToken(%q) err=%v, want ok=%v", header, err, ok)
		}
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
