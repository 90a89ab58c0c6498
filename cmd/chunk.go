package cmd

import (
	"fmt"
	"os"

	"caseindex/internal/adapter/outbound/extraction"
	outboundmsg "caseindex/internal/adapter/outbound/messaging"
	"caseindex/internal/adapter/outbound/repository"
	"caseindex/internal/application/common/slogger"
	"caseindex/internal/application/service"
	"caseindex/internal/config"
	domainservice "caseindex/internal/domain/service"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var (
	chunkFile      string
	chunkReprocess bool
)

var chunkCmd = &cobra.Command{
	Use:   "chunk <document-id>",
	Short: "Submit a document for asynchronous chunking",
	Long: `Record a chunking job for the document, plan its chunks and dispatch
one unit of work per chunk. The command returns as soon as the job is
recorded; workers process the chunks asynchronously.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runChunk(cmd, args[0])
	},
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	chunkCmd.Flags().StringVar(&chunkFile, "file", "", "Path to the document file (required)")
	chunkCmd.Flags().BoolVar(&chunkReprocess, "reprocess", false, "Delete existing chunks and jobs for the document first")
	if err := chunkCmd.MarkFlagRequired("file"); err != nil {
		fmt.Fprintf(os.Stderr, "Error marking file flag required: %v\n", err)
	}
	rootCmd.AddCommand(chunkCmd)
}

func runChunk(cmd *cobra.Command, rawDocumentID string) {
	ctx := cmd.Context()
	cfg := GetConfig()

	documentID, err := uuid.Parse(rawDocumentID)
	if err != nil {
		slogger.ErrorNoCtx("Invalid document ID", slogger.Fields{"document_id": rawDocumentID})
		os.Exit(1)
	}

	pool, err := setupDatabaseConnection(cfg)
	if err != nil {
		slogger.ErrorNoCtx("Failed to connect to database", slogger.Fields{"error": err.Error()})
		os.Exit(1)
	}
	defer pool.Close()

	chunking, publisher, err := createChunkingService(cfg, pool)
	if err != nil {
		slogger.ErrorNoCtx("Failed to create chunking service", slogger.Fields{"error": err.Error()})
		os.Exit(1)
	}
	defer func() {
		if err := publisher.Disconnect(); err != nil {
			slogger.ErrorNoCtx("Failed to disconnect publisher", slogger.Fields{"error": err.Error()})
		}
	}()

	ctx, correlationID := slogger.EnsureCorrelationID(ctx)

	submit := chunking.ChunkDocument
	if chunkReprocess {
		submit = chunking.ReprocessDocument
	}

	job, err := submit(ctx, documentID, chunkFile)
	if err != nil {
		slogger.ErrorWithError(ctx, err, "Failed to submit document", slogger.Fields{
			"document_id": documentID.String(),
		})
		os.Exit(1)
	}

	fmt.Printf("Job %s submitted (status %s, %d units, correlation %s)\n",
		job.ID(), job.Status(), job.TotalUnits(), correlationID)
}

// createChunkingService wires the chunking service and its publisher. The
// caller owns the returned publisher's connection.
func createChunkingService(
	cfg *config.Config,
	pool *pgxpool.Pool,
) (*service.ChunkingService, *outboundmsg.NATSChunkPublisher, error) {
	publisher, err := outboundmsg.NewNATSChunkPublisher(cfg.NATS)
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

	profile, err := config.LoadStrategyProfile(cfg.Chunking.ProfileFile)
	if err != nil {
		publisher.Disconnect() //nolint:errcheck // Connection teardown on the error path
		return nil, nil, err
	}

	chunking := service.NewChunkingService(
		repository.NewPostgreSQLJobRepository(pool),
		repository.NewPostgreSQLChunkRepository(pool),
		extraction.NewDocconvExtractor(false),
		publisher,
		domainservice.NewStrategySelector(profile),
	)
	return chunking, publisher, nil
}
