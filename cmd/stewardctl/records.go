package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vthunder/steward/internal/activity"
	"github.com/vthunder/steward/internal/gtd"
	"github.com/vthunder/steward/internal/timewin"
)

func newNotesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notes",
		Short: "Manage remembered facts",
	}

	var topic string
	add := &cobra.Command{
		Use:   "add <fact>",
		Short: "Remember a fact",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()
			note, err := a.Notes.Remember(cmd.Context(), strings.Join(args, " "), topic)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved note %d.\n", note.ID)
			return nil
		},
	}
	add.Flags().StringVar(&topic, "topic", "", "topic to file the fact under")

	var limit int
	search := &cobra.Command{
		Use:   "search [query]",
		Short: "List facts matching a query (all recent facts without one)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()
			notes, err := a.Notes.Recall(cmd.Context(), strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(notes) == 0 {
				fmt.Fprintln(out, "No notes.")
				return nil
			}
			for _, n := range notes {
				line := fmt.Sprintf("%4d  %s", n.ID, n.Text)
				if n.Topic != "" {
					line += dimColor.Sprintf("  [%s]", n.Topic)
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	search.Flags().IntVar(&limit, "limit", 20, "maximum notes to show")

	forget := &cobra.Command{
		Use:   "forget <id>",
		Short: "Delete a fact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid note id %q", args[0])
			}
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Notes.Forget(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Forgot note %d.\n", id)
			return nil
		},
	}

	cmd.AddCommand(add, search, forget)
	return cmd
}

func newTasksCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect the local task list (offline mode)",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List local tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := localTasks(opts)
			if err != nil {
				return err
			}
			defer closeFn()
			out := cmd.OutOrStdout()
			tasks := store.Tasks()
			if len(tasks) == 0 {
				fmt.Fprintln(out, "No tasks.")
				return nil
			}
			for _, t := range tasks {
				mark := "[ ]"
				if t.Status == gtd.StatusCompleted {
					mark = "[x]"
				}
				line := fmt.Sprintf("%s %s  %s", mark, t.ID, t.Title)
				if t.When != "" {
					line += dimColor.Sprintf("  (%s)", t.When)
				}
				if t.Repeat != "" {
					line += dimColor.Sprintf("  repeats %s", t.Repeat)
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}

	repeat := &cobra.Command{
		Use:   "repeat <task-id> <daily|weekly|biweekly|monthly|quarterly|yearly>",
		Short: "Make a local task repeat when completed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := localTasks(opts)
			if err != nil {
				return err
			}
			defer closeFn()
			if err := store.SetRepeat(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %s now repeats %s.\n", args[0], args[1])
			return nil
		},
	}

	cmd.AddCommand(list, repeat)
	return cmd
}

// localTasks opens the app in offline mode regardless of --offline
func localTasks(opts *rootOptions) (*gtd.Store, func() error, error) {
	offline := *opts
	offline.offline = true
	a, err := offline.open()
	if err != nil {
		return nil, nil, err
	}
	return a.LocalTasks, a.Close, nil
}

func newTimeCmd() *cobra.Command {
	var end string
	var duration int
	cmd := &cobra.Command{
		Use:   "time <HH:MM>",
		Short: "Show how a time or window would be stored",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if end == "" && duration == 0 {
				label, err := timewin.Canonicalize(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(out, label)
				return nil
			}
			w, err := timewin.Derive(args[0], end, duration)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s-%s (%d min)\n", w.StartLabel, w.EndLabel, int(w.Duration().Minutes()))
			for _, adj := range w.Adjustments {
				dimColor.Fprintf(out, "  %s\n", adj)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&end, "end", "", "end time (HH:MM)")
	cmd.Flags().IntVar(&duration, "duration", 0, "length in minutes when --end is not given")
	return cmd
}

func newActivityCmd(opts *rootOptions) *cobra.Command {
	var limit int
	var search, kind string
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show recent turns and action outcomes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			var entries []activity.Entry
			switch {
			case search != "":
				entries, err = a.Activity.Search(search, limit)
			case kind != "":
				entries, err = a.Activity.ByType(activity.Type(kind), limit)
			default:
				entries, err = a.Activity.Recent(limit)
			}
			if err != nil {
				return err
			}
			printActivity(cmd.OutOrStdout(), entries, a.Config.Location)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum entries to show")
	cmd.Flags().StringVar(&search, "search", "", "only entries mentioning this text")
	cmd.Flags().StringVar(&kind, "type", "", "only entries of this type (input, quick_reply, planner, action, resume, error)")
	return cmd
}

func printActivity(out io.Writer, entries []activity.Entry, loc *time.Location) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No activity.")
		return
	}
	for _, e := range entries {
		line := dimColor.Sprint(e.Timestamp.In(loc).Format("Jan 2 15:04")) + "  " + string(e.Type)
		if e.Kind != "" {
			line += " " + e.Kind
		}
		if e.Status != "" {
			line += " (" + e.Status + ")"
		}
		if e.Summary != "" {
			line += "  " + e.Summary
		}
		if e.Error != "" {
			line += errorColor.Sprintf("  %s", e.Error)
		}
		fmt.Fprintln(out, line)
	}
}
