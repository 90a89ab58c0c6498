package cmd

import (
	"fmt"
	"os"

	outboundmsg "caseindex/internal/adapter/outbound/messaging"
	"caseindex/internal/adapter/outbound/repository"
	"caseindex/internal/application/common/slogger"
	"caseindex/internal/application/service"
	"caseindex/internal/config"
	"caseindex/internal/port/outbound"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Inspect and manage processing jobs",
}

var jobStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show a job's lifecycle state and progress counters",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withJobService(cmd, args[0], false, func(jobs *service.JobService, jobID uuid.UUID) error {
			job, err := jobs.GetJob(cmd.Context(), jobID)
			if err != nil {
				return err
			}
			fmt.Printf("Job:       %s\n", job.ID())
			fmt.Printf("Document:  %s\n", job.DocumentID())
			fmt.Printf("Type:      %s\n", job.JobType())
			fmt.Printf("Status:    %s\n", job.Status())
			fmt.Printf("Progress:  %d/%d completed, %d failed (%.1f%%)\n",
				job.CompletedUnits(), job.TotalUnits(), job.FailedUnits(), job.ProgressPercentage())
			if msg := job.ErrorMessage(); msg != nil {
				fmt.Printf("Error:     %s\n", *msg)
			}
			return nil
		})
	},
}

var jobFailedChunksCmd = &cobra.Command{
	Use:   "failed-chunks <job-id>",
	Short: "List the failed chunks of a job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withJobService(cmd, args[0], false, func(jobs *service.JobService, jobID uuid.UUID) error {
			chunks, err := jobs.ListFailedChunks(cmd.Context(), jobID)
			if err != nil {
				return err
			}
			if len(chunks) == 0 {
				fmt.Println("No failed chunks")
				return nil
			}
			for _, chunk := range chunks {
				reason := ""
				if msg := chunk.ErrorMessage(); msg != nil {
					reason = *msg
				}
				fmt.Printf("chunk %d (%s): %s\n", chunk.ChunkIndex(), chunk.ID(), reason)
			}
			return nil
		})
	},
}

var jobRetryCmd = &cobra.Command{
	Use:   "retry <job-id>",
	Short: "Reset a job's failed chunks and dispatch them again",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withJobService(cmd, args[0], true, func(jobs *service.JobService, jobID uuid.UUID) error {
			count, err := jobs.RetryFailedChunks(cmd.Context(), jobID)
			if err != nil {
				return err
			}
			fmt.Printf("Redispatched %d failed chunks\n", count)
			return nil
		})
	},
}

var jobCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a pending or running job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withJobService(cmd, args[0], false, func(jobs *service.JobService, jobID uuid.UUID) error {
			if err := jobs.CancelJob(cmd.Context(), jobID); err != nil {
				return err
			}
			fmt.Println("Job cancelled")
			return nil
		})
	},
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	jobCmd.AddCommand(jobStatusCmd)
	jobCmd.AddCommand(jobFailedChunksCmd)
	jobCmd.AddCommand(jobRetryCmd)
	jobCmd.AddCommand(jobCancelCmd)
	rootCmd.AddCommand(jobCmd)
}

// withJobService parses the job ID, wires a job service and runs fn,
// exiting non-zero on failure. needsPublisher connects NATS for commands
// that re-dispatch work.
func withJobService(
	cmd *cobra.Command,
	rawJobID string,
	needsPublisher bool,
	fn func(jobs *service.JobService, jobID uuid.UUID) error,
) {
	cfg := GetConfig()

	jobID, err := uuid.Parse(rawJobID)
	if err != nil {
		slogger.ErrorNoCtx("Invalid job ID", slogger.Fields{"job_id": rawJobID})
		os.Exit(1)
	}

	pool, err := setupDatabaseConnection(cfg)
	if err != nil {
		slogger.ErrorNoCtx("Failed to connect to database", slogger.Fields{"error": err.Error()})
		os.Exit(1)
	}
	defer pool.Close()

	jobs, publisher, err := createJobService(cfg, pool, needsPublisher)
	if err != nil {
		slogger.ErrorNoCtx("Failed to create job service", slogger.Fields{"error": err.Error()})
		os.Exit(1)
	}
	if publisher != nil {
		defer func() {
			if err := publisher.Disconnect(); err != nil {
				slogger.ErrorNoCtx("Failed to disconnect publisher", slogger.Fields{"error": err.Error()})
			}
		}()
	}

	if err := fn(jobs, jobID); err != nil {
		slogger.ErrorNoCtx("Job command failed", slogger.Fields{
			"job_id": jobID.String(),
			"error":  err.Error(),
		})
		os.Exit(1)
	}
}

func createJobService(
	cfg *config.Config,
	pool *pgxpool.Pool,
	needsPublisher bool,
) (*service.JobService, *outboundmsg.NATSChunkPublisher, error) {
	var publisher *outboundmsg.NATSChunkPublisher
	if needsPublisher {
		var err error
		publisher, err = outboundmsg.NewNATSChunkPublisher(cfg.NATS)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create publisher: %w", err)
		}
		if err := publisher.Connect(); err != nil {
			return nil, nil, fmt.Errorf("failed to connect publisher: %w", err)
		}
		if err := publisher.EnsureStream(); err != nil {
			publisher.Disconnect() //nolint:errcheck // Connection teardown on the error path
			return nil, nil, fmt.Errorf("failed to ensure stream: %w", err)
		}
	}

	// A typed nil pointer inside the interface would defeat the service's
	// nil checks, so only assign when a publisher was actually built.
	var messagePublisher outbound.MessagePublisher
	if publisher != nil {
		messagePublisher = publisher
	}

	jobs := service.NewJobService(
		repository.NewPostgreSQLJobRepository(pool),
		repository.NewPostgreSQLChunkRepository(pool),
		messagePublisher,
		cfg.Pipeline.FailureTolerance,
	)
	return jobs, publisher, nil
}
