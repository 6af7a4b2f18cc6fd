package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/mbenali/docmigrate/pkg/config"
	"github.com/mbenali/docmigrate/pkg/migrate"
	"github.com/mbenali/docmigrate/pkg/progress"
)

func newRunCmd(logLevel *string) *cobra.Command {
	var (
		cfgPath         string
		sourceURI       string
		sourceDB        string
		sourceCont      string
		destURI         string
		destDB          string
		destCont        string
		batchSize       int
		workers         int
		maxAttempts     int
		baseDelay       time.Duration
		alwaysReconcile bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one migration pass and verify the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(*logLevel)
			if err != nil {
				return err
			}

			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			flagString(cmd, "source", &cfg.Source.URI, sourceURI)
			flagString(cmd, "source-db", &cfg.Source.Database, sourceDB)
			flagString(cmd, "source-container", &cfg.Source.Container, sourceCont)
			flagString(cmd, "dest", &cfg.Destination.URI, destURI)
			flagString(cmd, "dest-db", &cfg.Destination.Database, destDB)
			flagString(cmd, "dest-container", &cfg.Destination.Container, destCont)
			if cmd.Flags().Changed("batch-size") {
				cfg.BatchSize = batchSize
			}
			if cmd.Flags().Changed("workers") {
				cfg.Workers = workers
			}
			if cmd.Flags().Changed("max-attempts") {
				cfg.MaxAttempts = maxAttempts
			}
			if cmd.Flags().Changed("base-delay") {
				cfg.BaseDelay = config.Duration(baseDelay)
			}
			if cmd.Flags().Changed("always-reconcile") {
				cfg.AlwaysReconcile = alwaysReconcile
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			start := time.Now()
			res, val, err := migrate.Execute(ctx, cfg, progress.NewLogReporter(log), log)
			if err != nil {
				if res != nil {
					printSummary(res, val, time.Since(start))
				}
				return err
			}
			printSummary(res, val, time.Since(start))

			if res.Failed > 0 {
				return errors.Errorf("migration completed with %d failed records", res.Failed)
			}
			if !val.Matched {
				return errors.New("verification failed: source and destination counts differ")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to YAML config file (optional)")
	cmd.Flags().StringVar(&sourceURI, "source", "", "source connection URI")
	cmd.Flags().StringVar(&sourceDB, "source-db", "", "source database name")
	cmd.Flags().StringVar(&sourceCont, "source-container", "", "source container name")
	cmd.Flags().StringVar(&destURI, "dest", "", "destination connection URI")
	cmd.Flags().StringVar(&destDB, "dest-db", "", "destination database name")
	cmd.Flags().StringVar(&destCont, "dest-container", "", "destination container name")
	cmd.Flags().IntVar(&batchSize, "batch-size", config.DefaultBatchSize, "number of records per batch")
	cmd.Flags().IntVar(&workers, "workers", config.DefaultWorkers, "in-batch upsert concurrency")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 3, "upsert attempts before a record is recorded as failed")
	cmd.Flags().DurationVar(&baseDelay, "base-delay", time.Second, "base retry backoff delay")
	cmd.Flags().BoolVar(&alwaysReconcile, "always-reconcile", false, "compute the unmigrated-id list even when counts match")
	return cmd
}

func flagString(cmd *cobra.Command, name string, dst *string, value string) {
	if cmd.Flags().Changed(name) {
		*dst = value
	}
}

func printSummary(res *migrate.Result, val *migrate.Validation, elapsed time.Duration) {
	fmt.Println("\n=== Migration Summary ===")
	fmt.Printf("Attempted: %d\n", res.Attempted)
	fmt.Printf("Succeeded: %d\n", res.Succeeded)
	fmt.Printf("Failed:    %d\n", res.Failed)
	fmt.Printf("Elapsed:   %s\n", elapsed.Round(time.Millisecond))

	if len(res.Failures) > 0 {
		fmt.Println("\nFailed records:")
		for _, f := range res.Failures {
			fmt.Printf("  - %s: %s\n", f.ID, f.Reason)
		}
	}

	if val == nil {
		return
	}
	status := "✓ matched"
	if !val.Matched {
		status = "✗ mismatch"
	}
	fmt.Printf("\nVerification: source=%d destination=%d %s\n", val.SourceCount, val.DestinationCount, status)
	if len(val.Unmigrated) > 0 {
		fmt.Println("Unmigrated records:")
		for _, id := range val.Unmigrated {
			fmt.Printf("  - %s\n", id)
		}
	}
}
