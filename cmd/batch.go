package cmd

import (
	"fmt"
	"os"

	outboundmsg "caseindex/internal/adapter/outbound/messaging"
	"caseindex/internal/adapter/outbound/repository"
	"caseindex/internal/adapter/outbound/storage"
	"caseindex/internal/application/common/slogger"
	"caseindex/internal/application/service"
	"caseindex/internal/config"
	"caseindex/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var (
	batchDocumentsRoot  string
	batchSize           int
	batchConcurrency    int
	batchExtractEntity  bool
	batchParseStatement bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Manage batch processing sessions",
	Long: `Batch sessions process many documents through the chunking pipeline in
ordered batches, checkpointing progress after each batch so an interrupted
session resumes where it left off instead of starting over.`,
}

var batchCreateCmd = &cobra.Command{
	Use:   "create <document-id>...",
	Short: "Create a batch session over the given documents",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runBatchCreate(cmd, args)
	},
}

var batchRunCmd = &cobra.Command{
	Use:   "run <session-id>",
	Short: "Run or resume a batch session",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withBatchService(cmd, args[0], func(sessions *service.BatchSessionService, sessionID uuid.UUID) error {
			if err := sessions.Run(cmd.Context(), sessionID); err != nil {
				return err
			}
			return printSession(cmd, sessions, sessionID)
		})
	},
}

var batchStatusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Show a session's progress and error log",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withBatchService(cmd, args[0], func(sessions *service.BatchSessionService, sessionID uuid.UUID) error {
			return printSession(cmd, sessions, sessionID)
		})
	},
}

var batchPauseCmd = &cobra.Command{
	Use:   "pause <session-id>",
	Short: "Pause a running session after its current batch",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withBatchService(cmd, args[0], func(sessions *service.BatchSessionService, sessionID uuid.UUID) error {
			if err := sessions.Pause(cmd.Context(), sessionID); err != nil {
				return err
			}
			fmt.Println("Session paused")
			return nil
		})
	},
}

var batchCancelCmd = &cobra.Command{
	Use:   "cancel <session-id>",
	Short: "Cancel a session",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withBatchService(cmd, args[0], func(sessions *service.BatchSessionService, sessionID uuid.UUID) error {
			if err := sessions.Cancel(cmd.Context(), sessionID); err != nil {
				return err
			}
			fmt.Println("Session cancelled")
			return nil
		})
	},
}

var batchRetryCmd = &cobra.Command{
	Use:   "retry <session-id>",
	Short: "Reset a session's failed documents and run them again",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withBatchService(cmd, args[0], func(sessions *service.BatchSessionService, sessionID uuid.UUID) error {
			count, err := sessions.RetryFailed(cmd.Context(), sessionID)
			if err != nil {
				return err
			}
			fmt.Printf("Reset %d failed documents\n", count)
			if count == 0 {
				return nil
			}
			if err := sessions.Run(cmd.Context(), sessionID); err != nil {
				return err
			}
			return printSession(cmd, sessions, sessionID)
		})
	},
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	batchCmd.PersistentFlags().StringVar(&batchDocumentsRoot, "root", ".", "Directory holding document files named <document-id>.<ext>")
	batchCreateCmd.Flags().IntVar(&batchSize, "batch-size", service.DefaultBatchSize, "Documents per batch")
	batchCreateCmd.Flags().IntVar(&batchConcurrency, "concurrency", service.DefaultBatchConcurrency, "Concurrent documents within a batch")
	batchCreateCmd.Flags().BoolVar(&batchExtractEntity, "extract-entities", false, "Record an entity analysis job per document")
	batchCreateCmd.Flags().BoolVar(&batchParseStatement, "parse-statements", false, "Record a statement analysis job per document")

	batchCmd.AddCommand(batchCreateCmd)
	batchCmd.AddCommand(batchRunCmd)
	batchCmd.AddCommand(batchStatusCmd)
	batchCmd.AddCommand(batchPauseCmd)
	batchCmd.AddCommand(batchCancelCmd)
	batchCmd.AddCommand(batchRetryCmd)
	rootCmd.AddCommand(batchCmd)
}

func runBatchCreate(cmd *cobra.Command, rawIDs []string) {
	documentIDs := make([]uuid.UUID, 0, len(rawIDs))
	for _, raw := range rawIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			slogger.ErrorNoCtx("Invalid document ID", slogger.Fields{"document_id": raw})
			os.Exit(1)
		}
		documentIDs = append(documentIDs, id)
	}

	withBatchService(cmd, "", func(sessions *service.BatchSessionService, _ uuid.UUID) error {
		cfg := GetConfig()
		session, err := sessions.CreateSession(cmd.Context(), documentIDs, entity.SessionOptions{
			ExtractEntities:    batchExtractEntity,
			ParseStatements:    batchParseStatement,
			GenerateEmbeddings: cfg.Pipeline.GenerateEmbeddings,
			BatchSize:          batchSize,
			Concurrency:        batchConcurrency,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Session %s created over %d documents\n", session.ID(), len(documentIDs))
		return nil
	})
}

// withBatchService wires a batch session service and runs fn against it.
// rawSessionID may be empty for commands that create their own session.
func withBatchService(
	cmd *cobra.Command,
	rawSessionID string,
	fn func(sessions *service.BatchSessionService, sessionID uuid.UUID) error,
) {
	cfg := GetConfig()

	var sessionID uuid.UUID
	if rawSessionID != "" {
		parsed, err := uuid.Parse(rawSessionID)
		if err != nil {
			slogger.ErrorNoCtx("Invalid session ID", slogger.Fields{"session_id": rawSessionID})
			os.Exit(1)
		}
		sessionID = parsed
	}

	pool, err := setupDatabaseConnection(cfg)
	if err != nil {
		slogger.ErrorNoCtx("Failed to connect to database", slogger.Fields{"error": err.Error()})
		os.Exit(1)
	}
	defer pool.Close()

	sessions, publisher, err := createBatchSessionService(cfg, pool)
	if err != nil {
		slogger.ErrorNoCtx("Failed to create batch session service", slogger.Fields{"error": err.Error()})
		os.Exit(1)
	}
	defer func() {
		if err := publisher.Disconnect(); err != nil {
			slogger.ErrorNoCtx("Failed to disconnect publisher", slogger.Fields{"error": err.Error()})
		}
	}()

	if err := fn(sessions, sessionID); err != nil {
		slogger.ErrorNoCtx("Batch command failed", slogger.Fields{"error": err.Error()})
		os.Exit(1)
	}
}

func createBatchSessionService(
	cfg *config.Config,
	pool *pgxpool.Pool,
) (*service.BatchSessionService, *outboundmsg.NATSChunkPublisher, error) {
	locator, err := storage.NewFilesystemLocator(batchDocumentsRoot)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid documents root: %w", err)
	}

	chunking, publisher, err := createChunkingService(cfg, pool)
	if err != nil {
		return nil, nil, err
	}

	processor := service.NewPipelineDocumentProcessor(
		locator,
		chunking,
		repository.NewPostgreSQLJobRepository(pool),
	)
	sessions := service.NewBatchSessionService(
		repository.NewPostgreSQLBatchSessionRepository(pool),
		repository.NewPostgreSQLBatchDocumentStatusRepository(pool),
		processor,
	)
	return sessions, publisher, nil
}

func printSession(cmd *cobra.Command, sessions *service.BatchSessionService, sessionID uuid.UUID) error {
	session, err := sessions.GetSession(cmd.Context(), sessionID)
	if err != nil {
		return err
	}

	fmt.Printf("Session:   %s\n", session.ID())
	fmt.Printf("Status:    %s\n", session.Status())
	fmt.Printf("Progress:  %d/%d processed, %d succeeded, %d failed (%.1f%%)\n",
		session.DocumentsProcessed(), len(session.DocumentIDs()),
		session.DocumentsSucceeded(), session.DocumentsFailed(), session.ProgressPercentage())
	if checkpoint := session.LastCheckpoint(); checkpoint != nil {
		fmt.Printf("Checkpoint: %s\n", checkpoint.Format("2006-01-02T15:04:05Z07:00"))
	}
	for _, sessionErr := range session.ErrorLog() {
		fmt.Printf("error: document %s: %s\n", sessionErr.DocumentID, sessionErr.Message)
	}
	return nil
}
