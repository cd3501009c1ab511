// Package main provides the weather-ingest CLI: the HTTP server with its
// scheduler, a one-shot ingestion cycle and the cleanup sweeps.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "weather-ingest",
	Short: "Weather ingestion and query service",
	Long: `Weather ingestion and query service with three commands:
- serve: HTTP API plus the periodic ingestion scheduler
- ingest: run one ingestion cycle and exit
- cleanup: delete aged weather, minutely and alert rows`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
