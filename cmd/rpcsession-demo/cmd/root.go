// Package cmd provides the rpcsession-demo CLI commands.
package cmd

import (
	"github.com/spf13/cobra"
)

var url string

var rootCmd = &cobra.Command{
	Use:   "rpcsession-demo",
	Short: "Exercise the analytics-engine RPC session core",
	Long: `rpcsession-demo drives a Session against a live engine endpoint:
open a connection, suspend, resume, and close, printing each lifecycle
transition as it happens.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&url, "url", "ws://localhost:9076", "engine WebSocket endpoint")
	rootCmd.AddCommand(openCmd)
}
