package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// The backend serialises LocalDateTime without a zone.
const localDateTime = "2006-01-02T15:04:05.999999999"

// Timestamp accepts RFC 3339 and zone-less local timestamps.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = parsed
		return nil
	}
	parsed, err := time.ParseInLocation(localDateTime, s, time.Local)
	if err != nil {
		return fmt.Errorf("timestamp %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.Format(time.RFC3339))
}

type Notification struct {
	ID        int64     `json:"id"`
	Message   string    `json:"message"`
	Read      bool      `json:"readStatus"`
	CreatedAt Timestamp `json:"createdAt"`
}

type WorkflowStatus string

const (
	StatusPending  WorkflowStatus = "PENDING"
	StatusApproved WorkflowStatus = "APPROVED"
	StatusRejected WorkflowStatus = "REJECTED"
)

// UserRef is the slice of a user the backend embeds in a workflow.
type UserRef struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

type Workflow struct {
	ID          int64          `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Status      WorkflowStatus `json:"status"`
	User        *UserRef       `json:"user,omitempty"`
	ApprovedBy  *UserRef       `json:"approvedBy,omitempty"`
	CreatedAt   Timestamp      `json:"createdAt"`
	ApprovedAt  *Timestamp     `json:"approvedAt,omitempty"`
}

type NewWorkflow struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (w NewWorkflow) Validate() error {
	if strings.TrimSpace(w.Title) == "" {
		return fmt.Errorf("title must not be empty")
	}
	if strings.TrimSpace(w.Description) == "" {
		return fmt.Errorf("description must not be empty")
	}
	return nil
}

// DashboardSummary maps counter names (total, pending, approved, ...) to
// their values.
type DashboardSummary map[string]int64

func (c *Client) Notifications(ctx context.Context) ([]Notification, error) {
	var out []Notification
	if err := c.do(ctx, http.MethodGet, "/api/notifications", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) MarkNotificationRead(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/api/notifications/%d/read", id), nil, nil)
}

func (c *Client) DeleteNotification(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/notifications/%d", id), nil, nil)
}

func (c *Client) MyWorkflows(ctx context.Context) ([]Workflow, error) {
	var out []Workflow
	if err := c.do(ctx, http.MethodGet, "/api/workflows/my", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateWorkflow(ctx context.Context, w NewWorkflow) (Workflow, error) {
	if err := w.Validate(); err != nil {
		return Workflow{}, err
	}
	var out Workflow
	if err := c.do(ctx, http.MethodPost, "/api/workflows", w, &out); err != nil {
		return Workflow{}, err
	}
	return out, nil
}

func (c *Client) PendingWorkflows(ctx context.Context) ([]Workflow, error) {
	var out []Workflow
	if err := c.do(ctx, http.MethodGet, "/api/admin/workflows/pending", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ApproveWorkflow(ctx context.Context, id int64) (Workflow, error) {
	var out Workflow
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/admin/workflows/%d/approve", id), nil, &out)
	return out, err
}

func (c *Client) RejectWorkflow(ctx context.Context, id int64) (Workflow, error) {
	var out Workflow
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/admin/workflows/%d/reject", id), nil, &out)
	return out, err
}

func (c *Client) EmployeeDashboard(ctx context.Context) (DashboardSummary, error) {
	var out DashboardSummary
	if err := c.do(ctx, http.MethodGet, "/api/dashboard/employee", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AdminDashboard(ctx context.Context) (DashboardSummary, error) {
	var out DashboardSummary
	if err := c.do(ctx, http.MethodGet, "/api/dashboard/admin", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
