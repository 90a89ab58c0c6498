package cmd

import (
	"fmt"
	"os"

	"caseindex/internal/adapter/outbound/repository"
	"caseindex/internal/application/common/slogger"
	"caseindex/internal/application/service"

	"github.com/spf13/cobra"
)

var (
	cleanupThresholdHours int
	cleanupMode           string
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Sweep stuck jobs",
	Long: `Find jobs that have been pending or running past the age threshold
with zero completed units and resolve them. Dry-run lists candidates
without mutating anything; mark-failed marks them failed; delete removes
the jobs and their orphaned chunks.`,
	Run: func(cmd *cobra.Command, _ []string) {
		runCleanup(cmd)
	},
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	cleanupCmd.Flags().IntVar(&cleanupThresholdHours, "threshold-hours", 0,
		"Job age threshold in hours, clamped to [1, 24] (default: cleanup.threshold_hours)")
	cleanupCmd.Flags().StringVar(&cleanupMode, "mode", "",
		"Sweep mode: dry-run, mark-failed or delete (default: cleanup.mode)")
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command) {
	cfg := GetConfig()

	thresholdHours := cleanupThresholdHours
	if thresholdHours == 0 {
		thresholdHours = cfg.Cleanup.ThresholdHours
	}
	mode := service.CleanupMode(cleanupMode)
	if cleanupMode == "" {
		mode = service.CleanupMode(cfg.Cleanup.Mode)
	}

	pool, err := setupDatabaseConnection(cfg)
	if err != nil {
		slogger.ErrorNoCtx("Failed to connect to database", slogger.Fields{"error": err.Error()})
		os.Exit(1)
	}
	defer pool.Close()

	cleanup := service.NewCleanupService(
		repository.NewPostgreSQLJobRepository(pool),
		repository.NewPostgreSQLChunkRepository(pool),
	)

	ctx, _ := slogger.EnsureCorrelationID(cmd.Context())
	result, err := cleanup.Sweep(ctx, thresholdHours, mode)
	if err != nil {
		slogger.ErrorWithError(ctx, err, "Cleanup sweep failed", nil)
		os.Exit(1)
	}

	fmt.Printf("Mode:            %s\n", result.Mode)
	fmt.Printf("Threshold:       %s\n", result.Threshold)
	fmt.Printf("Stuck jobs:      %d\n", len(result.StuckJobs))
	if result.Mode == service.CleanupModeDryRun {
		for _, job := range result.StuckJobs {
			fmt.Printf("  %s  document %s  %s  created %s\n",
				job.ID(), job.DocumentID(), job.Status(), job.CreatedAt().Format("2006-01-02T15:04:05Z07:00"))
		}
		return
	}
	fmt.Printf("Jobs failed:     %d\n", result.JobsFailed)
	fmt.Printf("Jobs deleted:    %d\n", result.JobsDeleted)
	fmt.Printf("Chunks deleted:  %d\n", result.ChunksDeleted)
}
