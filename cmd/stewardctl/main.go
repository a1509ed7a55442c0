// stewardctl drives the assistant from a terminal: run action lists, chat
// through the planner, and inspect notes, tasks and the pending question.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vthunder/steward/internal/app"
	"github.com/vthunder/steward/internal/config"
	"github.com/vthunder/steward/internal/dispatch"
	"github.com/vthunder/steward/internal/executive"
	"github.com/vthunder/steward/internal/logging"
)

type rootOptions struct {
	envFile string
	offline bool
	state   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer logging.Sync()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		errorColor.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "stewardctl",
		Short:         "Terminal client for the steward assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env", ".env", "environment file to load if present")
	root.PersistentFlags().BoolVar(&opts.offline, "offline", false, "keep tasks in a local file; calendar and mail stay signed out")
	root.PersistentFlags().StringVar(&opts.state, "state", "", "state directory (overrides STATE_PATH)")

	root.AddCommand(
		newRunCmd(opts),
		newChatCmd(opts),
		newPendingCmd(opts),
		newNotesCmd(opts),
		newTasksCmd(opts),
		newTimeCmd(),
		newActivityCmd(opts),
	)
	return root
}

// open loads settings and builds the app for one command
func (o *rootOptions) open() (*app.App, error) {
	if _, err := os.Stat(o.envFile); err == nil {
		if err := godotenv.Load(o.envFile); err != nil {
			return nil, fmt.Errorf("load %s: %w", o.envFile, err)
		}
	}
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	if o.state != "" {
		cfg.StatePath = o.state
	}
	return app.New(cfg, app.Options{Offline: o.offline})
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <actions-json>",
		Short: "Execute a JSON action list, answering confirmations on stdin",
		Example: `  stewardctl run '[{"add_task":{"title":"Buy milk","due_date":"tomorrow"}}]'
  stewardctl --offline run '[{"list_tasks":{}}]'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			con := newConsole(os.Stdin, cmd.OutOrStdout(), a.Bridges, a.Quick)
			res, err := con.run(cmd.Context(), func(ctx context.Context) (*dispatch.TurnResult, error) {
				return a.Engine.RunTurn(ctx, args[0]), nil
			})
			if err != nil {
				return err
			}
			if res.ParseError != nil {
				return fmt.Errorf("invalid action list")
			}
			return nil
		},
	}
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant through the planner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()
			x := a.NewExecutive()

			dimColor.Fprintln(cmd.OutOrStdout(), "Type a message; Ctrl+D to quit.")
			con := newConsole(os.Stdin, cmd.OutOrStdout(), a.Bridges, a.Quick)
			return con.chat(cmd.Context(), func(ctx context.Context, text string) (*dispatch.TurnResult, error) {
				return x.HandleMessage(ctx, executive.Message{UserID: user, Text: text})
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "terminal", "user id for conversation history")
	return cmd
}

func newPendingCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Show the question the assistant is waiting on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			plan, err := a.Pending.Get(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if plan == nil {
				fmt.Fprintln(out, "No pending question.")
				return nil
			}
			promptColor.Fprintln(out, plan.Question)
			fmt.Fprintf(out, "status:  %s\n", plan.Status)
			fmt.Fprintf(out, "asked:   %s\n", plan.CreatedAt.In(a.Config.Location).Format("Mon Jan 2 15:04"))
			if plan.Context != "" {
				fmt.Fprintf(out, "context: %s\n", plan.Context)
			}
			if len(plan.Action) > 0 {
				fmt.Fprintf(out, "action:  %s\n", plan.Action)
			}
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Drop the pending question",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Pending.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Pending question cleared.")
			return nil
		},
	})
	return cmd
}
