package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"huddle/internal/app"
	"huddle/internal/domain"
	"huddle/internal/engine"
)

func (c *cli) msgCmd() *cobra.Command {
	msg := &cobra.Command{
		Use:   "msg",
		Short: "Send and read messages",
	}
	msg.AddCommand(c.msgSendCmd())
	msg.AddCommand(c.msgInboxCmd("recv", "Consume pending messages", true))
	msg.AddCommand(c.msgInboxCmd("peek", "Show pending messages without consuming them", false))
	msg.AddCommand(c.msgBroadcastCmd())
	return msg
}

func (c *cli) msgSendCmd() *cobra.Command {
	var m domain.Message
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a message as --actor-id",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			m.FromAgent = c.actor()
			return c.withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				res, err := ws.Engine.Send(ctx, m)
				if err != nil {
					return err
				}
				return c.printSendResults([]engine.SendResult{res}, res)
			})
		},
	}
	cmd.Flags().StringVar(&m.ToAgent, "to", "", "recipient agent")
	cmd.Flags().StringVar(&m.Subject, "subject", "", "subject")
	cmd.Flags().StringVar(&m.Content, "content", "", "content")
	cmd.Flags().BoolVar(&m.RequiresCEOApproval, "approval", false, "also copy to the supervisor for a decision")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func (c *cli) msgInboxCmd(use, short string, consume bool) *cobra.Command {
	var agent string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if agent == "" {
				agent = c.actor()
			}
			return c.withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				read := ws.Engine.Peek
				if consume {
					read = ws.Engine.Receive
				}
				msgs, err := read(ctx, agent)
				if err != nil {
					return err
				}
				if msgs == nil {
					msgs = []domain.Message{}
				}
				return c.printMessages(msgs)
			})
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "inbox owner (defaults to --actor-id)")
	return cmd
}

func (c *cli) msgBroadcastCmd() *cobra.Command {
	var subject, content string
	cmd := &cobra.Command{
		Use:   "broadcast",
		Short: "Message every roster member except --actor-id",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.actor() == "" {
				return fmt.Errorf("%w: --actor-id is required", domain.ErrInvalid)
			}
			return c.withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				res, err := ws.Engine.Broadcast(ctx, c.actor(), subject, content)
				if res == nil {
					res = []engine.SendResult{}
				}
				if perr := c.printSendResults(res, res); perr != nil {
					return perr
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "subject")
	cmd.Flags().StringVar(&content, "content", "", "content")
	return cmd
}

func (c *cli) printMessages(msgs []domain.Message) error {
	return c.printJSONOrTable(msgs, func(tw table.Writer) {
		tw.AppendHeader(table.Row{"ID", "From", "To", "Subject", "Content", "Approval"})
		for _, m := range msgs {
			tw.AppendRow(table.Row{m.ID, m.FromAgent, m.ToAgent, m.Subject, m.Content, m.RequiresCEOApproval})
		}
	})
}

func (c *cli) printSendResults(res []engine.SendResult, v any) error {
	return c.printJSONOrTable(v, func(tw table.Writer) {
		tw.AppendHeader(table.Row{"ID", "To", "Subject", "Escalated"})
		for _, r := range res {
			tw.AppendRow(table.Row{r.Message.ID, r.Message.ToAgent, r.Message.Subject, r.Escalated})
		}
	})
}
