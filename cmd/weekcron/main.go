package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "./weekcron.yaml"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "weekcron",
		Short: "weekcron - recurring, weekday-anchored task scheduler",
		Long: `weekcron keeps a table of recurring tasks, fires them from a
periodic tick and persists the table across restarts. The bundled
consumer greets a name at the start of every chosen weekday (UTC).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", defaultConfigPath, "path to config (json or yaml)")

	root.AddCommand(
		newRunCmd(),
		newNextCmd(),
		newSnapshotCmd(),
		newFiresCmd(),
		newTasksCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func configPath(cmd *cobra.Command) string {
	p, _ := cmd.Flags().GetString("config")
	return p
}
