package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"huddle/internal/app"
	"huddle/internal/domain"
)

func (c *cli) statusCmd() *cobra.Command {
	status := &cobra.Command{
		Use:   "status",
		Short: "Agent status snapshots",
	}
	status.AddCommand(c.statusSetCmd())
	status.AddCommand(c.statusShowCmd())
	return status
}

func (c *cli) statusSetCmd() *cobra.Command {
	var st domain.AgentStatus
	var extra map[string]string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Replace --actor-id's status snapshot",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			st.Extra = toAnyMap(extra)
			return c.withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				saved, err := ws.Engine.UpdateStatus(ctx, c.actor(), st)
				if err != nil {
					return err
				}
				return c.printStatuses([]domain.AgentStatus{saved}, saved)
			})
		},
	}
	cmd.Flags().StringVar(&st.State, "state", "", "state, e.g. working or idle")
	cmd.Flags().StringVar(&st.CurrentTask, "task", "", "current task id")
	cmd.Flags().StringVar(&st.Note, "note", "", "free-form note")
	cmd.Flags().StringToStringVar(&extra, "extra", nil, "extra key=value fields")
	return cmd
}

func (c *cli) statusShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show every agent's latest status",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				sts, err := ws.Engine.TeamStatus(ctx)
				if err != nil {
					return err
				}
				if sts == nil {
					sts = []domain.AgentStatus{}
				}
				return c.printStatuses(sts, sts)
			})
		},
	}
}

func (c *cli) notifyCmd() *cobra.Command {
	var priority string
	cmd := &cobra.Command{
		Use:   "notify <message>",
		Short: "Append a supervisory notification",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				n, err := ws.Engine.Notify(ctx, args[0], priority)
				if err != nil {
					return err
				}
				return c.printNotifications([]domain.Notification{n}, n)
			})
		},
	}
	cmd.Flags().StringVar(&priority, "priority", domain.PriorityNormal, "critical, high, normal or info")
	return cmd
}

func (c *cli) notificationsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "List notifications, newest first",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				ns, err := ws.Engine.Notifications(ctx, limit)
				if err != nil {
					return err
				}
				if ns == nil {
					ns = []domain.Notification{}
				}
				return c.printNotifications(ns, ns)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum entries (0 for all)")
	return cmd
}

func (c *cli) reportCmd() *cobra.Command {
	report := &cobra.Command{
		Use:   "report",
		Short: "Daily reports",
	}
	report.AddCommand(&cobra.Command{
		Use:   "daily",
		Short: "Generate today's report now",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				rep, err := ws.Engine.DailyReport(ctx)
				if err != nil {
					return err
				}
				return c.printReport(rep)
			})
		},
	})
	report.AddCommand(&cobra.Command{
		Use:   "show [date]",
		Short: "Show the report for a date (today by default)",
		Args:  maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				var date string
				if len(args) == 1 {
					date = args[0]
				} else {
					now, err := ws.Engine.LocalNow()
					if err != nil {
						return err
					}
					date = now.Format(time.DateOnly)
				}
				rep, err := ws.Engine.GetReport(ctx, date)
				if err != nil {
					return err
				}
				return c.printReport(rep)
			})
		},
	})
	report.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List dates with a stored report",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				dates, err := ws.Engine.ListReports(ctx)
				if err != nil {
					return err
				}
				if dates == nil {
					dates = []string{}
				}
				return c.printJSONOrTable(dates, func(tw table.Writer) {
					tw.AppendHeader(table.Row{"Date"})
					for _, d := range dates {
						tw.AppendRow(table.Row{d})
					}
				})
			})
		},
	})
	return report
}

func (c *cli) dashboardCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Supervisor overview: team, open work, approvals and recent notifications",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				e := ws.Engine
				team, err := e.TeamStatus(ctx)
				if err != nil {
					return err
				}
				tasks, err := e.ListTasks(ctx)
				if err != nil {
					return err
				}
				approvals, err := e.Approvals(ctx)
				if err != nil {
					return err
				}
				recent, err := e.Notifications(ctx, limit)
				if err != nil {
					return err
				}
				counts := map[domain.TaskStatus]int{}
				for _, t := range tasks {
					counts[t.Status]++
				}
				if c.v.GetBool("json") {
					return c.printJSON(map[string]any{
						"team":          nonNil(team),
						"task_counts":   counts,
						"approvals":     nonNil(approvals),
						"notifications": nonNil(recent),
					})
				}
				c.renderSection("Team", func(tw table.Writer) {
					tw.AppendHeader(table.Row{"Agent", "State", "Task", "Updated"})
					for _, st := range team {
						tw.AppendRow(table.Row{st.Agent, st.State, st.CurrentTask, st.UpdatedAt.Local().Format("15:04")})
					}
				})
				c.renderSection("Tasks", func(tw table.Writer) {
					tw.AppendHeader(table.Row{"Status", "Count"})
					for _, s := range domain.AllStatuses {
						tw.AppendRow(table.Row{s, counts[s]})
					}
				})
				c.renderSection(fmt.Sprintf("Decisions needed (%d)", len(approvals)), func(tw table.Writer) {
					tw.AppendHeader(table.Row{"ID", "From", "Subject"})
					for _, m := range approvals {
						tw.AppendRow(table.Row{m.ID, m.FromAgent, m.Subject})
					}
				})
				c.renderSection("Recent notifications", func(tw table.Writer) {
					tw.AppendHeader(table.Row{"Time", "Priority", "Message"})
					for _, n := range recent {
						tw.AppendRow(table.Row{n.CreatedAt.Local().Format("01-02 15:04"), n.Priority, n.Message})
					}
				})
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "recent notifications to show")
	return cmd
}

func (c *cli) renderSection(title string, render func(table.Writer)) {
	tw := table.NewWriter()
	tw.SetOutputMirror(c.out)
	tw.SetTitle(title)
	render(tw)
	tw.Render()
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func (c *cli) printStatuses(sts []domain.AgentStatus, v any) error {
	return c.printJSONOrTable(v, func(tw table.Writer) {
		tw.AppendHeader(table.Row{"Agent", "State", "Task", "Note", "Updated"})
		for _, st := range sts {
			tw.AppendRow(table.Row{st.Agent, st.State, st.CurrentTask, st.Note, st.UpdatedAt.Local().Format("2006-01-02 15:04")})
		}
	})
}

func (c *cli) printNotifications(ns []domain.Notification, v any) error {
	return c.printJSONOrTable(v, func(tw table.Writer) {
		tw.AppendHeader(table.Row{"Time", "Priority", "Message"})
		for _, n := range ns {
			tw.AppendRow(table.Row{n.CreatedAt.Local().Format("2006-01-02 15:04"), n.Priority, n.Message})
		}
	})
}

func (c *cli) printReport(rep domain.Report) error {
	if c.v.GetBool("json") {
		return c.printJSON(rep)
	}
	fmt.Fprintf(c.out, "Daily report %s (generated %s)\n", rep.Date, rep.GeneratedAt.Local().Format("15:04"))
	sections := []struct {
		title string
		tasks []domain.Task
	}{
		{"Completed today", rep.CompletedToday},
		{"In progress", rep.InProgress},
		{"Blocked", rep.Blocked},
		{"Pending high priority", rep.PendingHighPriority},
	}
	for _, s := range sections {
		tasks := s.tasks
		c.renderSection(fmt.Sprintf("%s (%d)", s.title, len(tasks)), func(tw table.Writer) {
			tw.AppendHeader(table.Row{"ID", "Title", "Assigned To", "Priority"})
			for _, t := range tasks {
				tw.AppendRow(table.Row{t.ID, t.Title, t.AssignedTo, t.Priority})
			}
		})
	}
	c.renderSection(fmt.Sprintf("Decisions needed (%d)", len(rep.DecisionsNeeded)), func(tw table.Writer) {
		tw.AppendHeader(table.Row{"ID", "From", "Subject"})
		for _, m := range rep.DecisionsNeeded {
			tw.AppendRow(table.Row{m.ID, m.FromAgent, m.Subject})
		}
	})
	return nil
}
