// Package cmd defines and implements the CLI commands for the webharvest
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webharvest",
		Short: "Web content acquisition for retrieval corpora.",
		Long: `webharvest crawls configured sites politely, normalizes pages into plain
text and splits them into bounded overlapping chunks ready for indexing.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./webharvest.yaml)")

	cmd.AddCommand(newCrawlCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "webharvest: %v\n", err)
		os.Exit(1)
	}
}
