package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ferrisk/runwatch/cmd/runwatch/commands"
	"github.com/ferrisk/runwatch/logger"
)

var jsonLogs bool

var rootCmd = &cobra.Command{
	Use:   "runwatch",
	Short: "runwatch - failed-run watcher with interactive repair",
	Long: `runwatch watches a Databricks workspace for job runs that failed today,
reports them to a Telegram chat, and lets an operator trigger repairs
(rerun of failed tasks only) through inline buttons.

Available commands:
  watch   - Start the watcher daemon (scheduler + Telegram listener)
  check   - Run one classification and print the report to stdout
  version - Print build information

Examples:
  runwatch watch           # Run the daemon in the foreground
  runwatch check           # Dry-run: no Telegram messages are sent`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Initialize(jsonLogs); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json", false, "Emit JSON structured logs")

	rootCmd.AddCommand(commands.WatchCmd)
	rootCmd.AddCommand(commands.CheckCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
