package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"huddle/internal/app"
	"huddle/internal/domain"
)

func (c *cli) specCmd() *cobra.Command {
	spec := &cobra.Command{
		Use:   "spec",
		Short: "Product specs shared with the whole team",
	}
	spec.AddCommand(c.specPutCmd())
	spec.AddCommand(&cobra.Command{
		Use:   "get <name>",
		Short: "Show a product spec",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				s, err := ws.Engine.GetSpec(ctx, args[0])
				if err != nil {
					return err
				}
				return c.printJSON(s)
			})
		},
	})
	spec.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List product specs",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				specs, err := ws.Engine.ListSpecs(ctx)
				if err != nil {
					return err
				}
				specs = nonNil(specs)
				return c.printJSONOrTable(specs, func(tw table.Writer) {
					tw.AppendHeader(table.Row{"Name", "Fields", "Updated By", "Updated"})
					for _, s := range specs {
						tw.AppendRow(table.Row{s.Name, len(s.Body), s.UpdatedBy, s.UpdatedAt.Local().Format("2006-01-02 15:04")})
					}
				})
			})
		},
	})
	return spec
}

func (c *cli) specPutCmd() *cobra.Command {
	var file string
	var set map[string]string
	cmd := &cobra.Command{
		Use:   "put <name>",
		Short: "Store a product spec from a YAML/JSON file and/or key=value pairs",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readSpecBody(file)
			if err != nil {
				return err
			}
			for k, v := range set {
				body[k] = v
			}
			return c.withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				s, err := ws.Engine.SaveSpec(ctx, args[0], body, c.actor())
				if err != nil {
					return err
				}
				return c.printJSON(s)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML or JSON document")
	cmd.Flags().StringToStringVar(&set, "set", nil, "key=value fields")
	return cmd
}

func readSpecBody(path string) (map[string]any, error) {
	body := map[string]any{}
	if path == "" {
		return body, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("%w: spec %s: %v", domain.ErrInvalid, path, err)
	}
	if body == nil {
		body = map[string]any{}
	}
	return body, nil
}

func (c *cli) approvalCmd() *cobra.Command {
	approval := &cobra.Command{
		Use:   "approval",
		Short: "Escalated messages waiting for the supervisor",
	}
	approval.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List pending approvals",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				ms, err := ws.Engine.Approvals(ctx)
				if err != nil {
					return err
				}
				return c.printMessages(nonNil(ms))
			})
		},
	})
	approval.AddCommand(c.approvalDecideCmd())
	return approval
}

func (c *cli) approvalDecideCmd() *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "decide <id> <approve|reject|modify>",
		Short: "Record a verdict as the supervisor",
		Long:  "Approve and modify hand a follow-up task back to the sender; reject only records the decision.",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				d, err := ws.Engine.Decide(ctx, args[0], args[1], note, c.actor())
				if err != nil {
					return err
				}
				return c.printJSONOrTable(d, func(tw table.Writer) {
					tw.AppendHeader(table.Row{"ID", "From", "Subject", "Verdict", "Follow-up Task"})
					tw.AppendRow(table.Row{d.ID, d.Message.FromAgent, d.Message.Subject, d.Verdict, d.FollowUpTaskID})
				})
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "note for the sender")
	return cmd
}
