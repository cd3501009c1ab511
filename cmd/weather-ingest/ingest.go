package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/i474232898/weather-ingest/internal/scheduler"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run one ingestion cycle over every active location",
	RunE:  runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().Int("concurrency", 0, "locations refreshed in parallel (default SCHEDULER_CONCURRENCY)")
}

func runIngest(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	concurrency, _ := cmd.Flags().GetInt("concurrency")
	if concurrency <= 0 {
		concurrency = a.cfg.SchedulerConcurrency
	}

	sched := scheduler.New(a.store, a.ingestor, scheduler.Options{
		Concurrency: concurrency,
		Logger:      a.logger,
		Metrics:     a.metrics,
	})
	report, err := sched.RunCycle(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
