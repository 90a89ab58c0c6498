// Package worker contains the chunk processing worker: the dispatched-work
// handler, its metrics, and the scheduled cleanup worker.
package worker

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names following OpenTelemetry semantic conventions.
const (
	ChunkDurationHistogramName = "pipeline_chunk_duration_seconds"
	ChunkCounterName           = "pipeline_chunks_processed_total"
	DuplicateCounterName       = "pipeline_duplicate_deliveries_total"
	JobFinalizedCounterName    = "pipeline_jobs_finalized_total"
	ReaperSweepCounterName     = "pipeline_reaper_sweeps_total"
	ReaperStuckJobsCounterName = "pipeline_reaper_stuck_jobs_total"
)

// Attribute keys for consistent labeling.
const (
	AttrChunkResult = "chunk_result" // completed, failed
	AttrJobStatus   = "job_status"   // completed, failed
	AttrCleanupMode = "cleanup_mode" // dry-run, mark-failed, delete
	AttrWorkerID    = "worker_id"
)

// PipelineMetrics collects OpenTelemetry metrics for the chunk pipeline.
type PipelineMetrics struct {
	chunkDuration metric.Float64Histogram
	chunkTotal    metric.Int64Counter
	duplicates    metric.Int64Counter
	jobsFinalized metric.Int64Counter
	reaperSweeps  metric.Int64Counter
	reaperStuck   metric.Int64Counter

	workerID string
}

// NewPipelineMetrics creates the pipeline metrics collector.
func NewPipelineMetrics(workerID string) (*PipelineMetrics, error) {
	meter := otel.Meter("caseindex/worker", metric.WithInstrumentationVersion("1.0.0"))

	// Extraction plus embedding dominates chunk latency, so buckets run
	// from fast cache hits out to slow embedding calls.
	chunkLatencyBuckets := []float64{
		0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0,
	}

	chunkDuration, err := meter.Float64Histogram(
		ChunkDurationHistogramName,
		metric.WithDescription("Duration of chunk processing in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(chunkLatencyBuckets...),
	)
	if err != nil {
		return nil, err
	}

	chunkTotal, err := meter.Int64Counter(
		ChunkCounterName,
		metric.WithDescription("Total number of chunks processed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	duplicates, err := meter.Int64Counter(
		DuplicateCounterName,
		metric.WithDescription("Total number of duplicate chunk deliveries absorbed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	jobsFinalized, err := meter.Int64Counter(
		JobFinalizedCounterName,
		metric.WithDescription("Total number of jobs finalized"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	reaperSweeps, err := meter.Int64Counter(
		ReaperSweepCounterName,
		metric.WithDescription("Total number of stuck-job reaper sweeps"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	reaperStuck, err := meter.Int64Counter(
		ReaperStuckJobsCounterName,
		metric.WithDescription("Total number of stuck jobs found by the reaper"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &PipelineMetrics{
		chunkDuration: chunkDuration,
		chunkTotal:    chunkTotal,
		duplicates:    duplicates,
		jobsFinalized: jobsFinalized,
		reaperSweeps:  reaperSweeps,
		reaperStuck:   reaperStuck,
		workerID:      workerID,
	}, nil
}

// RecordChunkProcessed records one processed chunk and its outcome.
func (m *PipelineMetrics) RecordChunkProcessed(ctx context.Context, duration time.Duration, result string) {
	attributes := []attribute.KeyValue{
		attribute.String(AttrChunkResult, result),
		attribute.String(AttrWorkerID, m.workerID),
	}
	m.chunkDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attributes...))
	m.chunkTotal.Add(ctx, 1, metric.WithAttributes(attributes...))
}

// RecordDuplicateDelivery records one absorbed duplicate delivery.
func (m *PipelineMetrics) RecordDuplicateDelivery(ctx context.Context) {
	m.duplicates.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrWorkerID, m.workerID),
	))
}

// RecordJobFinalized records one finalized job and its terminal status.
func (m *PipelineMetrics) RecordJobFinalized(ctx context.Context, status string) {
	m.jobsFinalized.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrJobStatus, status),
		attribute.String(AttrWorkerID, m.workerID),
	))
}

// RecordReaperSweep records one reaper sweep and how many stuck jobs it
// found.
func (m *PipelineMetrics) RecordReaperSweep(ctx context.Context, mode string, stuckJobs int) {
	attributes := []attribute.KeyValue{
		attribute.String(AttrCleanupMode, mode),
		attribute.String(AttrWorkerID, m.workerID),
	}
	m.reaperSweeps.Add(ctx, 1, metric.WithAttributes(attributes...))
	m.reaperStuck.Add(ctx, int64(stuckJobs), metric.WithAttributes(attributes...))
}
