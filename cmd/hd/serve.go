package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"huddle/internal/app"
	"huddle/internal/config"
	"huddle/internal/coordinator"
	"huddle/internal/domain"
	"huddle/internal/server"
)

func (c *cli) serveCmd() *cobra.Command {
	var addr, basePath string
	var schedule bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long:  "Serves the workspace over HTTP. With --scheduler (default) it also generates the daily report after reports.hour.",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				handler, err := server.New(server.Config{Engine: ws.Engine, BasePath: basePath, Log: c.log})
				if err != nil {
					return err
				}
				if schedule {
					go func() {
						s := coordinator.Scheduler{Engine: ws.Engine, Log: c.log}
						if err := s.Run(ctx); err != nil {
							c.log.WithError(err).Error("scheduler stopped")
						}
					}()
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				c.log.WithFields(log.Fields{"addr": addr, "base_path": basePath, "workspace": ws.Root}).Info("serving huddle API")
				fmt.Fprintf(c.out, "Serving Huddle API on http://%s%s (OpenAPI at %s/openapi.json, docs at %s/docs)\n", addr, basePath, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&schedule, "scheduler", true, "run the daily report scheduler")
	return cmd
}

func (c *cli) watchCmd() *cobra.Command {
	var agent string
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print an agent's new tasks and messages as they arrive",
		Long:  "Wakes on the Redis fan-out signal when notifier.redis_url is set, otherwise on the poll interval. Messages shown here are consumed.",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if agent == "" {
				agent = c.actor()
			}
			if agent == "" {
				return fmt.Errorf("%w: --agent or --actor-id is required", domain.ErrInvalid)
			}
			return c.withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				w := coordinator.Watcher{
					Engine:   ws.Engine,
					Agent:    agent,
					Interval: interval,
					Log:      c.log,
					Handle: func(_ context.Context, in coordinator.Inbox) error {
						if c.v.GetBool("json") {
							b, err := sonic.ConfigStd.Marshal(in)
							if err != nil {
								return err
							}
							_, err = fmt.Fprintln(c.out, string(b))
							return err
						}
						fmt.Fprintf(c.out, "[%s] %d open task(s), %d new message(s)\n", time.Now().Format("15:04:05"), len(in.Tasks), len(in.Messages))
						if len(in.Messages) > 0 {
							return c.printMessages(in.Messages)
						}
						return nil
					},
				}
				return w.Run(ctx)
			})
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "agent to watch (defaults to --actor-id)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "poll interval (defaults to polling.interval)")
	return cmd
}

func (c *cli) configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create huddle.yml",
		Long:  "huddle.yml in the workspace picks the store backend, the optional Redis notifier, the team roster and supervisor, and the report schedule.",
	}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.LoadOptional(c.v.GetString("workspace"))
			if err != nil {
				return fmt.Errorf("%w: %v", domain.ErrInvalid, err)
			}
			if c.v.GetBool("json") {
				return c.printJSON(loaded)
			}
			out, err := yaml.Marshal(loaded)
			if err != nil {
				return err
			}
			_, err = c.out.Write(out)
			return err
		},
	})
	cfg.AddCommand(c.configInitCmd())
	return cfg
}

func (c *cli) configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default huddle.yml",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := c.v.GetString("workspace")
			if err := os.MkdirAll(workspace, 0o755); err != nil {
				return err
			}
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%w: %s already exists (use --force to overwrite)", domain.ErrDuplicateID, path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
