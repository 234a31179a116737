package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"weekcron/internal/app"
	"weekcron/internal/task/queue"
)

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Work with the persisted task snapshot",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "inspect",
		Short: "Print the tasks in the stored snapshot (read-only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ins, err := app.InspectSnapshot(cmd.Context(), configPath(cmd))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !ins.Found {
				fmt.Fprintf(out, "no snapshot stored (driver %s)\n", ins.Driver)
				return nil
			}
			fmt.Fprintf(out, "driver %s, next id %d, %d task(s)\n", ins.Driver, ins.NextID, len(ins.Tasks))
			printTasks(cmd, ins.Tasks)
			return nil
		},
	})
	return cmd
}

func printTasks(cmd *cobra.Command, tasks []queue.Task) {
	if len(tasks) == 0 {
		return
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPAYLOAD\tNEXT FIRE\tPERIOD\tREMAINING")
	for _, t := range tasks {
		period := "-"
		if t.Interval.Period > 0 {
			period = time.Duration(t.Interval.Period).String()
		}
		fmt.Fprintf(w, "%d\t%q\t%s\t%s\t%s\n", t.ID, t.Payload, t.NextFire, period, t.Remaining)
	}
	w.Flush()
}
