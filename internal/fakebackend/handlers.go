package fakebackend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

var errInvalidCredentials = errors.New("invalid email or password")

// Handler serves the backend's REST surface.
func (b *Backend) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", b.handleLogin)
	mux.HandleFunc("GET /api/notifications", b.handleListNotifications)
	mux.HandleFunc("PUT /api/notifications/{id}/read", b.handleMarkRead)
	mux.HandleFunc("DELETE /api/notifications/{id}", b.handleDeleteNotification)
	mux.HandleFunc("GET /api/workflows/my", b.handleMyWorkflows)
	mux.HandleFunc("POST /api/workflows", b.handleCreateWorkflow)
	mux.HandleFunc("GET /api/admin/workflows/pending", b.handlePendingWorkflows)
	mux.HandleFunc("PUT /api/admin/workflows/{id}/approve", b.decideWorkflow("APPROVED"))
	mux.HandleFunc("PUT /api/admin/workflows/{id}/reject", b.decideWorkflow("REJECTED"))
	mux.HandleFunc("GET /api/dashboard/employee", b.handleEmployeeDashboard)
	mux.HandleFunc("GET /api/dashboard/admin", b.handleAdminDashboard)
	return b.record(mux)
}

func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.requests = append(b.requests, Request{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			RequestID:     r.Header.Get("X-Request-Id"),
		})
		b.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	u, token, err := b.login(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, errInvalidCredentials) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("Invalid email or password"))
			return
		}
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	if b.opts.NestedLogin {
		writeJSON(w, http.StatusOK, map[string]any{
			"token": token,
			"user":  map[string]any{"id": u.ID, "name": u.Name, "email": u.Email, "role": u.Role},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"id":    u.ID,
		"name":  u.Name,
		"email": u.Email,
		"role":  u.Role,
	})
}

func (b *Backend) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	u, ok := b.requireSession(w, r, "")
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failNotify != 0 {
		writeError(w, b.failNotify, "notifications unavailable")
		return
	}
	out := []Notification{}
	for i := len(b.notifications) - 1; i >= 0; i-- {
		if b.notifications[i].UserID == u.ID {
			out = append(out, b.notifications[i])
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	b.updateNotification(w, r, func(i int) {
		b.notifications[i].Read = true
	})
}

func (b *Backend) handleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	b.updateNotification(w, r, func(i int) {
		b.notifications = append(b.notifications[:i], b.notifications[i+1:]...)
	})
}

func (b *Backend) updateNotification(w http.ResponseWriter, r *http.Request, apply func(i int)) {
	u, ok := b.requireSession(w, r, "")
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, n := range b.notifications {
		if n.ID == id && n.UserID == u.ID {
			apply(i)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeError(w, http.StatusNotFound, "notification not found")
}

func (b *Backend) handleMyWorkflows(w http.ResponseWriter, r *http.Request) {
	u, ok := b.requireSession(w, r, "")
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []Workflow{}
	for _, wf := range b.workflows {
		if wf.User.ID == u.ID {
			out = append(out, wf)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	u, ok := b.requireSession(w, r, "")
	if !ok {
		return
	}
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Description) == "" {
		writeError(w, http.StatusBadRequest, "title and description are required")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	wf := Workflow{
		ID:          b.nextID,
		Title:       req.Title,
		Description: req.Description,
		Status:      "PENDING",
		User:        ref(u),
		CreatedAt:   b.opts.NowFunc().UTC(),
	}
	b.workflows = append(b.workflows, wf)
	for _, admin := range b.usersWithRole("ADMIN") {
		b.notifyLocked(admin.ID, fmt.Sprintf("New workflow submitted: %s", wf.Title))
	}
	writeJSON(w, http.StatusOK, wf)
}

func (b *Backend) handlePendingWorkflows(w http.ResponseWriter, r *http.Request) {
	if _, ok := b.requireSession(w, r, "ADMIN"); !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []Workflow{}
	for _, wf := range b.workflows {
		if wf.Status == "PENDING" {
			out = append(out, wf)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) decideWorkflow(status string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		admin, ok := b.requireSession(w, r, "ADMIN")
		if !ok {
			return
		}
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		for i := range b.workflows {
			wf := &b.workflows[i]
			if wf.ID != id {
				continue
			}
			if wf.Status != "PENDING" {
				writeError(w, http.StatusConflict, "workflow already decided")
				return
			}
			now := b.opts.NowFunc().UTC()
			by := ref(admin)
			wf.Status = status
			wf.ApprovedBy = &by
			wf.ApprovedAt = &now
			b.notifyLocked(wf.User.ID, fmt.Sprintf("Your workflow %q was %s", wf.Title, strings.ToLower(status)))
			writeJSON(w, http.StatusOK, *wf)
			return
		}
		writeError(w, http.StatusNotFound, "workflow not found")
	}
}

func (b *Backend) handleEmployeeDashboard(w http.ResponseWriter, r *http.Request) {
	u, ok := b.requireSession(w, r, "")
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	writeJSON(w, http.StatusOK, b.summaryLocked(func(wf Workflow) bool { return wf.User.ID == u.ID }))
}

func (b *Backend) handleAdminDashboard(w http.ResponseWriter, r *http.Request) {
	if _, ok := b.requireSession(w, r, "ADMIN"); !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	summary := b.summaryLocked(func(Workflow) bool { return true })
	summary["users"] = int64(len(b.users))
	writeJSON(w, http.StatusOK, summary)
}

func (b *Backend) summaryLocked(match func(Workflow) bool) map[string]int64 {
	out := map[string]int64{"total": 0, "pending": 0, "approved": 0, "rejected": 0}
	for _, wf := range b.workflows {
		if !match(wf) {
			continue
		}
		out["total"]++
		out[strings.ToLower(wf.Status)]++
	}
	return out
}

// requireSession answers 401 for a missing or unknown token and 403 when
// requiredRole is set and the user does not hold it.
func (b *Backend) requireSession(w http.ResponseWriter, r *http.Request, requiredRole string) (*User, bool) {
	token, err := extractBearerToken(r.Header.Get("Authorization"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
		return nil, false
	}
	u, ok := b.userForToken(token)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return nil, false
	}
	if requiredRole != "" && !hasRole(u.Role, requiredRole) {
		writeError(w, http.StatusForbidden, "Access denied")
		return nil, false
	}
	return u, true
}

func hasRole(role, required string) bool {
	return strings.EqualFold(strings.TrimSpace(role), required)
}

func extractBearerToken(authHeader string) (string, error) {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", fmt.Errorf("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
