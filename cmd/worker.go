package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	inboundmsg "caseindex/internal/adapter/inbound/messaging"
	"caseindex/internal/adapter/outbound/embeddings/gemini"
	"caseindex/internal/adapter/outbound/embeddings/simple"
	"caseindex/internal/adapter/outbound/extraction"
	outboundmsg "caseindex/internal/adapter/outbound/messaging"
	"caseindex/internal/adapter/outbound/repository"
	"caseindex/internal/application/common/slogger"
	"caseindex/internal/application/service"
	"caseindex/internal/application/worker"
	"caseindex/internal/config"
	"caseindex/internal/port/outbound"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const (
	workerShutdownTimeout = 30 * time.Second
	consumerAckWait       = 5 * time.Minute
	consumerMaxDeliver    = 5
	consumerMaxAckPending = 100
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the chunk processing worker",
	Long: `Start the worker service that consumes chunk work messages from NATS
JetStream, extracts and embeds each chunk, and advances the owning job's
progress counters. Optionally runs the scheduled stuck-job sweep when
cleanup.schedule is configured.`,
	Run: func(cmd *cobra.Command, _ []string) {
		runWorkerService(cmd.Context())
	},
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	rootCmd.AddCommand(workerCmd)
}

func runWorkerService(ctx context.Context) {
	cfg := GetConfig()

	meterProvider, err := setupMeterProvider(ctx)
	if err != nil {
		slogger.ErrorNoCtx("Failed to initialize metrics", slogger.Fields{"error": err.Error()})
		os.Exit(1)
	}
	defer func() {
		if err := meterProvider.Shutdown(context.Background()); err != nil {
			slogger.ErrorNoCtx("Failed to shut down metrics", slogger.Fields{"error": err.Error()})
		}
	}()

	pool, err := setupDatabaseConnection(cfg)
	if err != nil {
		slogger.ErrorNoCtx("Failed to connect to database", slogger.Fields{"error": err.Error()})
		os.Exit(1)
	}
	defer pool.Close()

	workerService, publisher, err := createWorkerService(ctx, cfg, pool)
	if err != nil {
		slogger.ErrorNoCtx("Failed to create worker service", slogger.Fields{"error": err.Error()})
		os.Exit(1)
	}
	defer func() {
		if err := publisher.Disconnect(); err != nil {
			slogger.ErrorNoCtx("Failed to disconnect publisher", slogger.Fields{"error": err.Error()})
		}
	}()

	if err := workerService.Start(ctx); err != nil {
		slogger.ErrorNoCtx("Failed to start worker service", slogger.Fields{"error": err.Error()})
		os.Exit(1)
	}

	slogger.InfoNoCtx("Worker service started", slogger.Fields{
		"queue_group": cfg.Worker.QueueGroup,
		"concurrency": cfg.Worker.Concurrency,
	})

	waitForShutdownAndStop(workerService)
}

// setupMeterProvider installs the global meter provider the pipeline
// metrics register against.
func setupMeterProvider(ctx context.Context) (*sdkmetric.MeterProvider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", "caseindex-worker"),
			attribute.String("service.version", Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewManualReader()),
	)
	otel.SetMeterProvider(provider)
	return provider, nil
}

func setupDatabaseConnection(cfg *config.Config) (*pgxpool.Pool, error) {
	dbConfig := repository.DatabaseConfig{
		Host:           cfg.Database.Host,
		Port:           cfg.Database.Port,
		Database:       cfg.Database.Name,
		Username:       cfg.Database.User,
		Password:       cfg.Database.Password,
		Schema:         "caseindex",
		MaxConnections: cfg.Database.MaxConnections,
		MinConnections: cfg.Database.MaxIdleConnections,
		SSLMode:        cfg.Database.SSLMode,
	}
	return repository.NewDatabaseConnection(dbConfig)
}

func createWorkerService(
	ctx context.Context,
	cfg *config.Config,
	pool *pgxpool.Pool,
) (*worker.Service, *outboundmsg.NATSChunkPublisher, error) {
	jobRepo := repository.NewPostgreSQLJobRepository(pool)
	chunkRepo := repository.NewPostgreSQLChunkRepository(pool)

	publisher, err := outboundmsg.NewNATSChunkPublisher(cfg.NATS)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create publisher: %w", err)
	}
	if err := publisher.Connect(); err != nil {
		return nil, nil, fmt.Errorf("failed to connect publisher: %w", err)
	}
	if err := publisher.EnsureStream(); err != nil {
		return nil, nil, fmt.Errorf("failed to ensure stream: %w", err)
	}

	embedder, err := setupEmbedder(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	metrics, err := worker.NewPipelineMetrics(workerID())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	jobService := service.NewJobService(jobRepo, chunkRepo, publisher, cfg.Pipeline.FailureTolerance)
	extractor := extraction.NewDocconvExtractor(false)
	processor := worker.NewChunkProcessor(
		jobRepo,
		chunkRepo,
		jobService,
		repository.NewTransactionManager(pool),
		extractor,
		embedder,
		metrics,
		cfg.Pipeline.GenerateEmbeddings,
	)

	consumer, err := inboundmsg.NewNATSConsumer(inboundmsg.ConsumerConfig{
		Subject:       outboundmsg.ChunkWorkSubject,
		QueueGroup:    cfg.Worker.QueueGroup,
		DurableName:   cfg.Worker.QueueGroup,
		AckWait:       consumerAckWait,
		MaxDeliver:    consumerMaxDeliver,
		MaxAckPending: consumerMaxAckPending,
		HandleTimeout: cfg.Worker.JobTimeout,
	}, cfg.NATS, processor)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	cleanup := service.NewCleanupService(jobRepo, chunkRepo)
	cleanupWorker := worker.NewBackgroundCleanupWorker(
		cleanup,
		metrics,
		cfg.Cleanup.Schedule,
		cfg.Cleanup.ThresholdHours,
		service.CleanupMode(cfg.Cleanup.Mode),
	)

	workerService, err := worker.NewService(consumer, cleanupWorker)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create worker service: %w", err)
	}
	return workerService, publisher, nil
}

// setupEmbedder returns the Gemini embedder when an API key is configured,
// falling back to the deterministic local embedder otherwise.
func setupEmbedder(ctx context.Context, cfg *config.Config) (outbound.EmbeddingService, error) {
	if cfg.Gemini.APIKey != "" {
		return gemini.NewEmbedder(ctx, cfg.Gemini)
	}
	slogger.InfoNoCtx("No Gemini API key configured, using local embedder", slogger.Fields{
		"dimensions": cfg.Gemini.Dimensions,
	})
	return simple.NewEmbedder(cfg.Gemini.Dimensions), nil
}

func workerID() string {
	hostname, err := os.Hostname()
	if err != nil {
		return uuid.New().String()
	}
	return hostname
}

func waitForShutdownAndStop(workerService *worker.Service) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	slogger.InfoNoCtx("Shutting down worker service", slogger.Fields{"signal": sig.String()})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), workerShutdownTimeout)
	defer cancel()

	if err := workerService.Stop(shutdownCtx); err != nil {
		slogger.ErrorNoCtx("Failed to stop worker service cleanly", slogger.Fields{"error": err.Error()})
		os.Exit(1)
	}

	slogger.InfoNoCtx("Worker service stopped", nil)
}
