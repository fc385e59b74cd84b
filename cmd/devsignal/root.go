package main

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "devsignal",
	Short: "DevSignal integration and ingestion service",
	Long: `devsignal runs the integration credential and event ingestion core:
provider authorization flows, webhook ingestion, credential storage,
and the canonical activity event stream.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")
}
