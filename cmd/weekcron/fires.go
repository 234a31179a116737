package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"weekcron/internal/app"
	"weekcron/internal/task/calendar"
)

func newFiresCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "fires",
		Short: "Print the most recent fires from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if n <= 0 {
				return fmt.Errorf("--limit must be > 0")
			}
			recs, err := app.RecentFires(cmd.Context(), configPath(cmd), n)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TASK\tPAYLOAD\tSCHEDULED\tFIRED\tREMAINING")
			for _, r := range recs {
				rem := r.Remaining
				if r.Retired {
					rem += " (retired)"
				}
				fmt.Fprintf(w, "%d\t%q\t%s\t%s\t%s\n",
					r.TaskID, r.Payload, calendar.Instant(r.ScheduledAt), r.FiredAt.Format(time.RFC3339), rem)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&n, "limit", "n", 20, "number of records")
	return cmd
}
