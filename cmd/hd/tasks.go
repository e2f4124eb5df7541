package main

import (
	"context"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"huddle/internal/app"
	"huddle/internal/domain"
	"huddle/internal/engine"
)

func (c *cli) taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Tasks live in one status bucket at a time. The assignee moves its own tasks; the supervisor can move anything.",
	}
	task.AddCommand(c.taskCreateCmd())
	task.AddCommand(c.taskListCmd())
	task.AddCommand(c.taskGetCmd())
	task.AddCommand(c.taskMoveCmd())
	return task
}

func (c *cli) taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.CreatedBy = c.actor()
			return c.withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				t, err := ws.Engine.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return c.printTasks([]domain.Task{t}, t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "task id (generated when omitted)")
	cmd.Flags().StringVar(&opts.Type, "type", "general", "task type")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.AssignedTo, "assigned-to", "", "assignee agent")
	cmd.Flags().IntVar(&opts.Priority, "priority", 3, "priority 1-5 (higher is more urgent)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("assigned-to")
	return cmd
}

func (c *cli) taskListCmd() *cobra.Command {
	var agent, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Long:  "With --agent, lists that agent's open tasks most urgent first. Otherwise lists tasks in the given statuses (all by default).",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				var (
					tasks []domain.Task
					err   error
				)
				if agent != "" {
					tasks, err = ws.Engine.ListForAgent(ctx, agent)
				} else {
					var statuses []domain.TaskStatus
					for _, s := range splitList(status) {
						statuses = append(statuses, domain.TaskStatus(s))
					}
					tasks, err = ws.Engine.ListTasks(ctx, statuses...)
				}
				if err != nil {
					return err
				}
				if tasks == nil {
					tasks = []domain.Task{}
				}
				return c.printTasks(tasks, tasks)
			})
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "open tasks assigned to this agent")
	cmd.Flags().StringVar(&status, "status", "", "comma-separated status filter")
	return cmd
}

func (c *cli) taskGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a task",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				t, err := ws.Engine.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return c.printTasks([]domain.Task{t}, t)
			})
		},
	}
}

func (c *cli) taskMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <status>",
		Short: "Move a task to a new status",
		Long:  "Allowed moves: pending -> in_progress|blocked, in_progress -> review|completed|blocked, review -> completed|in_progress|blocked.",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				t, err := ws.Engine.Transition(ctx, args[0], domain.TaskStatus(args[1]), c.actor())
				if err != nil {
					return err
				}
				return c.printTasks([]domain.Task{t}, t)
			})
		},
	}
}

// printTasks renders tasks as a table, or v as JSON.
func (c *cli) printTasks(tasks []domain.Task, v any) error {
	return c.printJSONOrTable(v, func(tw table.Writer) {
		tw.AppendHeader(table.Row{"ID", "Title", "Status", "Assigned To", "Priority", "Updated"})
		for _, t := range tasks {
			tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.AssignedTo, t.Priority, t.UpdatedAt.Local().Format("2006-01-02 15:04")})
		}
	})
}
