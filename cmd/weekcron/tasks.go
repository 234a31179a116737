package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"weekcron/internal/app"
	"weekcron/internal/task/calendar"
	"weekcron/internal/task/queue"
)

func newTasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List or edit the stored task table",
		Long: `List or edit the stored task table.

Edits go straight to storage. Stop the daemon first: a running daemon
writes its own table on the next checkpoint and on shutdown. Send it
SIGUSR1 to log the live table instead.`,
	}
	cmd.AddCommand(
		newTasksListCmd(),
		newTasksGreetCmd(),
		newTasksAddCmd(),
		newTasksDequeueCmd(),
	)
	return cmd
}

func newTasksListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the stored tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ins, err := app.InspectSnapshot(cmd.Context(), configPath(cmd))
			if err != nil {
				return err
			}
			if len(ins.Tasks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no tasks")
				return nil
			}
			printTasks(cmd, ins.Tasks)
			return nil
		},
	}
}

func newTasksGreetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "greet <weekday> <name>",
		Short: "Greet name at the start of every weekday (UTC)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			wd, err := calendar.ParseWeekday(args[0])
			if err != nil {
				return err
			}
			id, err := app.GreetTask(cmd.Context(), configPath(cmd), wd, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "task %d: greet %q every %s\n", id, args[1], wd)
			return nil
		},
	}
}

func newTasksAddCmd() *cobra.Command {
	var (
		delay, every time.Duration
		times        uint64
		forever      bool
	)
	cmd := &cobra.Command{
		Use:   "add <payload>",
		Short: "Store a task with an explicit delay, period and iteration count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if delay < 0 || every < 0 {
				return fmt.Errorf("--delay and --every must be >= 0")
			}
			iv := queue.Interval{Delay: uint64(delay), Period: uint64(every), Iterations: queue.Times(times)}
			if forever {
				iv.Iterations = queue.Forever()
			}
			id, err := app.AddTask(cmd.Context(), configPath(cmd), []byte(args[0]), iv)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "task %d: %q, iterations %s\n", id, args[0], iv.Iterations)
			return nil
		},
	}
	cmd.Flags().DurationVar(&delay, "delay", 0, "time until the first fire")
	cmd.Flags().DurationVar(&every, "every", 0, "period between fires")
	cmd.Flags().Uint64Var(&times, "times", 1, "number of fires")
	cmd.Flags().BoolVar(&forever, "forever", false, "fire until dequeued")
	cmd.MarkFlagsMutuallyExclusive("times", "forever")
	return cmd
}

func newTasksDequeueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dequeue <id>",
		Short: "Remove a task from the stored table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.ParseUint(strings.TrimSpace(args[0]), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid task id %q", args[0])
			}
			t, ok, err := app.DequeueTask(cmd.Context(), configPath(cmd), queue.TaskID(n))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "task %d not found\n", n)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "task %d removed (%q)\n", t.ID, t.Payload)
			return nil
		},
	}
}
