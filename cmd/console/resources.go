package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"workflowhub/console/internal/api"
	"workflowhub/console/internal/session"
)

func newNotificationsCmd(c *console) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List notifications",
		Long: `List notifications for the signed-in user. With --watch the list is
polled and reprinted whenever it changes, until interrupted or the session
ends.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.enter("/dashboard"); err != nil {
				return err
			}
			if watch {
				return watchNotifications(cmd.Context(), c)
			}
			list, err := c.app.API.Notifications(cmd.Context())
			if err != nil {
				return err
			}
			printNotifications(c.out, list)
			return nil
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "keep polling and print updates")
	cmd.AddCommand(
		notificationActionCmd(c, "read <id>", "Mark a notification as read", func(ctx context.Context, id int64) error {
			return c.app.Poller.MarkRead(ctx, id)
		}),
		notificationActionCmd(c, "delete <id>", "Delete a notification", func(ctx context.Context, id int64) error {
			return c.app.Poller.Delete(ctx, id)
		}),
	)
	return cmd
}

func notificationActionCmd(c *console, use, short string, action func(context.Context, int64) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := c.enter("/dashboard"); err != nil {
				return err
			}
			if err := action(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "OK")
			return nil
		},
	}
}

func watchNotifications(ctx context.Context, c *console) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ended := make(chan struct{})
	var once sync.Once
	unsubscribe := c.app.Session.Subscribe(func(snap session.Snapshot) {
		if !snap.Authenticated() {
			once.Do(func() { close(ended) })
		}
	})
	defer unsubscribe()

	updates := make(chan []api.Notification, 1)
	c.app.Poller.OnUpdate(func(list []api.Notification) {
		// Keep only the newest list.
		select {
		case <-updates:
		default:
		}
		select {
		case updates <- list:
		default:
		}
	})
	c.app.EnablePolling()

	var last []api.Notification
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ended:
			return errNotSignedIn
		case list := <-updates:
			if last != nil && sameNotifications(last, list) {
				continue
			}
			last = list
			fmt.Fprintf(c.out, "-- %s, %d unread\n", time.Now().Format(time.TimeOnly), unread(list))
			printNotifications(c.out, list)
		}
	}
}

func sameNotifications(a, b []api.Notification) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Read != b[i].Read {
			return false
		}
	}
	return true
}

func unread(list []api.Notification) int {
	n := 0
	for _, item := range list {
		if !item.Read {
			n++
		}
	}
	return n
}

func printNotifications(w io.Writer, list []api.Notification) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No notifications.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tREAD\tCREATED\tMESSAGE")
	for _, n := range list {
		fmt.Fprintf(tw, "%d\t%t\t%s\t%s\n", n.ID, n.Read, formatTime(n.CreatedAt), n.Message)
	}
	_ = tw.Flush()
}

func newWorkflowsCmd(c *console) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflows",
		Short: "Create and review workflow requests",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List your requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.enter("/my-requests"); err != nil {
				return err
			}
			items, err := c.app.API.MyWorkflows(cmd.Context())
			if err != nil {
				return err
			}
			printWorkflows(c.out, items)
			return nil
		},
	}

	pending := &cobra.Command{
		Use:   "pending",
		Short: "List requests waiting for approval",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.enter("/approvals"); err != nil {
				return err
			}
			items, err := c.app.API.PendingWorkflows(cmd.Context())
			if err != nil {
				return err
			}
			printWorkflows(c.out, items)
			return nil
		},
	}

	var title, description string
	create := &cobra.Command{
		Use:   "create",
		Short: "Submit a new request",
		Long: `Submit a new request for approval.

Examples:
  console workflows create --title "Laptop" --description "Replacement for broken laptop"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.enter("/create-request"); err != nil {
				return err
			}
			wf, err := c.app.API.CreateWorkflow(cmd.Context(), api.NewWorkflow{Title: title, Description: description})
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Created request %d (%s)\n", wf.ID, wf.Status)
			return nil
		},
	}
	create.Flags().StringVar(&title, "title", "", "request title")
	create.Flags().StringVar(&description, "description", "", "request description")

	cmd.AddCommand(list, pending, create,
		decisionCmd(c, "approve", "Approve a pending request", c.approve),
		decisionCmd(c, "reject", "Reject a pending request", c.reject),
	)
	return cmd
}

func (c *console) approve(ctx context.Context, id int64) (api.Workflow, error) {
	return c.app.API.ApproveWorkflow(ctx, id)
}

func (c *console) reject(ctx context.Context, id int64) (api.Workflow, error) {
	return c.app.API.RejectWorkflow(ctx, id)
}

func decisionCmd(c *console, verb, short string, decide func(context.Context, int64) (api.Workflow, error)) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := c.enter("/approvals"); err != nil {
				return err
			}
			wf, err := decide(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Request %d is now %s\n", wf.ID, wf.Status)
			return nil
		},
	}
}

func printWorkflows(w io.Writer, items []api.Workflow) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No requests.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tCREATED\tOWNER\tTITLE")
	for _, wf := range items {
		owner := ""
		if wf.User != nil {
			owner = wf.User.Name
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", wf.ID, wf.Status, formatTime(wf.CreatedAt), owner, wf.Title)
	}
	_ = tw.Flush()
}

func newDashboardCmd(c *console) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show request counters for your role",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.enter("/dashboard"); err != nil {
				return err
			}
			var (
				summary api.DashboardSummary
				err     error
			)
			if c.app.Session.Current().Session.Profile.Role == session.RoleAdmin {
				summary, err = c.app.API.AdminDashboard(cmd.Context())
			} else {
				summary, err = c.app.API.EmployeeDashboard(cmd.Context())
			}
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(summary))
			for k := range summary {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			for _, k := range keys {
				fmt.Fprintf(tw, "%s\t%d\n", k, summary[k])
			}
			return tw.Flush()
		},
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func formatTime(t api.Timestamp) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
