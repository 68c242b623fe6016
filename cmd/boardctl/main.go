package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	app := &app{}
	rootCmd := &cobra.Command{
		Use:               "boardctl",
		Short:             "Inspect and edit boards directly against the configured store",
		Version:           Version,
		SilenceUsage:      true,
		PersistentPreRunE: app.open,
		PersistentPostRun: app.close,
	}
	rootCmd.PersistentFlags().String("backend", "", "Storage backend (sqlite, tables)")
	rootCmd.PersistentFlags().String("sqlite-path", "", "SQLite database path")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	rootCmd.AddCommand(boardsCmd(app))
	rootCmd.AddCommand(createBoardCmd(app))
	rootCmd.AddCommand(showCmd(app))
	rootCmd.AddCommand(addTaskCmd(app))
	rootCmd.AddCommand(moveCmd(app))
	rootCmd.AddCommand(addColumnCmd(app))
	rootCmd.AddCommand(deleteColumnCmd(app))
	rootCmd.AddCommand(moveColumnCmd(app))
	rootCmd.AddCommand(subtaskCmd(app))
	rootCmd.AddCommand(tokenCmd())
	return rootCmd
}
