package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bytedance/sonic"
	"github.com/jedib0t/go-pretty/v6/table"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"huddle/internal/app"
	"huddle/internal/domain"
)

// cli carries the state shared by every command: bound flags/env, output and the logger.
type cli struct {
	v   *viper.Viper
	out io.Writer
	log *log.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	root := newRootCmd(os.Stdout, os.Stderr)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(exitCode(err))
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	logger := log.New()
	logger.SetOutput(errOut)
	c := &cli{v: viper.New(), out: out, log: logger}
	root := &cobra.Command{
		Use:   "hd",
		Short: "Huddle CLI",
		Long: `Huddle coordinates a team of agents through a shared workspace directory.
- Tasks move pending -> in_progress -> review -> completed; any active task can become blocked.
- Messages land in the recipient's inbox; ones that need approval are also copied to the supervisor.
- Status, notifications and the daily report give the supervisor a view over the whole team.
- Redis fan-out (notifier.redis_url) wakes watchers early; without it everything still works by polling.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if c.v.GetBool("debug") {
				c.log.SetLevel(log.DebugLevel)
			}
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", domain.ErrInvalid, err)
	})
	c.initConfig()
	c.addPersistentFlags(root)
	root.AddCommand(
		c.taskCmd(),
		c.msgCmd(),
		c.statusCmd(),
		c.notifyCmd(),
		c.notificationsCmd(),
		c.reportCmd(),
		c.specCmd(),
		c.approvalCmd(),
		c.dashboardCmd(),
		c.watchCmd(),
		c.serveCmd(),
		c.configCmd(),
	)
	return root
}

func (c *cli) initConfig() {
	c.v.SetEnvPrefix("HUDDLE")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()
}

func (c *cli) addPersistentFlags(root *cobra.Command) {
	flags := root.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("actor-id", "", "agent acting on the workspace")
	flags.Bool("debug", false, "debug logging")
	for _, name := range []string{"workspace", "json", "actor-id", "debug"} {
		_ = c.v.BindPFlag(name, flags.Lookup(name))
	}
}

func (c *cli) actor() string { return c.v.GetString("actor-id") }

// withWorkspace opens the workspace for the duration of fn.
func (c *cli) withWorkspace(ctx context.Context, fn func(context.Context, *app.Workspace) error) error {
	ws, err := app.Open(ctx, c.v.GetString("workspace"), c.log)
	if err != nil {
		return err
	}
	defer func() {
		if err := ws.Close(); err != nil {
			c.log.WithError(err).Warn("close workspace")
		}
	}()
	return fn(ctx, ws)
}

// exitCode maps error kinds onto process exit codes.
func exitCode(err error) int {
	switch domain.KindOf(err) {
	case domain.KindNone:
		return 0
	case domain.KindInvalid, domain.KindInvalidTransition:
		return 2
	case domain.KindNotFound:
		return 3
	case domain.KindPermission:
		return 4
	case domain.KindDuplicateID:
		return 5
	case domain.KindStoreUnavailable:
		return 6
	default:
		return 1
	}
}

// exactArgs is cobra.ExactArgs with the error classified as invalid input.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalid, err)
		}
		return nil
	}
}

func maxArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MaximumNArgs(n)(cmd, args); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalid, err)
		}
		return nil
	}
}

func (c *cli) printJSONOrTable(v any, render func(table.Writer)) error {
	if c.v.GetBool("json") || render == nil {
		return c.printJSON(v)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(c.out)
	render(tw)
	tw.Render()
	return nil
}

func (c *cli) printJSON(v any) error {
	b, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.out, string(b))
	return err
}

func toAnyMap(in map[string]string) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
