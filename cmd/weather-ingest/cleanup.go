package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/i474232898/weather-ingest/internal/weather"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete aged weather, minutely and alert rows",
	RunE:  runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().Duration("historical-age", 30*24*time.Hour, "delete historical records older than this (0 skips)")
	cleanupCmd.Flags().Duration("minutely-age", 0, "delete minutely records older than this (default CLEANUP_MINUTELY_AGE)")
	cleanupCmd.Flags().Duration("alert-age", 7*24*time.Hour, "delete alerts that ended longer ago than this")
	cleanupCmd.Flags().Bool("resolved-only", false, "only delete resolved alerts")
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	flags := cmd.Flags()
	historicalAge, _ := flags.GetDuration("historical-age")
	minutelyAge, _ := flags.GetDuration("minutely-age")
	alertAge, _ := flags.GetDuration("alert-age")
	resolvedOnly, _ := flags.GetBool("resolved-only")
	if minutelyAge <= 0 {
		minutelyAge = a.cfg.CleanupMinutelyAge
	}

	if historicalAge > 0 {
		n, err := a.service.CleanupWeather(ctx, weather.DataTypeHistorical, historicalAge)
		if err != nil {
			return fmt.Errorf("historical cleanup: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "historical records removed: %d\n", n)
	}

	n, err := a.service.CleanupMinutely(ctx, minutelyAge)
	if err != nil {
		return fmt.Errorf("minutely cleanup: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "minutely records removed: %d\n", n)

	n, err = a.service.CleanupAlerts(ctx, alertAge, resolvedOnly)
	if err != nil {
		return fmt.Errorf("alert cleanup: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "alerts removed: %d\n", n)
	return nil
}
