package main

import (
	"os"

	"github.com/spf13/cobra"

	"vote-monitoring/internal/config"
)

var debugFlag bool

var rootCmd = &cobra.Command{
	Use:          "voteview",
	Short:        "Validator vote monitor",
	Long:         "Observes validator voting: live tower-discipline checks over the vote stream, and vote landing tables from transaction history.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "v", false, "verbose logging (live mode: logs instead of the dashboard)")
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(historyCmd)
}

// loadConfig merges the environment config with command-line overrides.
func loadConfig() config.Config {
	cfg := config.Load()
	if debugFlag {
		cfg.Debug = true
	}
	return cfg
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
