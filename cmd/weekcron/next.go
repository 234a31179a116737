package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"weekcron/internal/task/calendar"
)

func newNextCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "next <weekday>",
		Short: "Print when the next start (00:00 UTC) of a weekday is",
		Example: `  weekcron next fri
  weekcron next monday --at 2022-02-16T01:00:00Z`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wd, err := calendar.ParseWeekday(args[0])
			if err != nil {
				return err
			}
			now := calendar.Now()
			if at != "" {
				t, err := time.Parse(time.RFC3339Nano, at)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				now = calendar.FromTime(t)
			}
			ns := calendar.NanosUntil(now, wd)
			next := now.Add(ns)

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "weekday: %s\n", wd)
			fmt.Fprintf(w, "from:    %s\n", now)
			fmt.Fprintf(w, "in:      %d ns (%s)\n", ns, time.Duration(ns))
			fmt.Fprintf(w, "at:      %s\n", next)
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "reference instant (RFC3339, default now)")
	return cmd
}
