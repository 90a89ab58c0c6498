package worker

import (
	"context"
	"errors"
	"sync"

	"caseindex/internal/application/common/slogger"
	"caseindex/internal/application/service"

	"github.com/robfig/cron/v3"
)

// BackgroundCleanupWorker runs stuck-job reaper sweeps on a cron schedule.
// It is a safety net for jobs the dispatcher silently dropped; the hot
// path never depends on it.
type BackgroundCleanupWorker struct {
	cleanup  *service.CleanupService
	metrics  *PipelineMetrics
	schedule string
	// threshold in hours, clamped by the cleanup service.
	thresholdHours int
	mode           service.CleanupMode

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewBackgroundCleanupWorker creates a scheduled cleanup worker.
func NewBackgroundCleanupWorker(
	cleanup *service.CleanupService,
	metrics *PipelineMetrics,
	schedule string,
	thresholdHours int,
	mode service.CleanupMode,
) *BackgroundCleanupWorker {
	return &BackgroundCleanupWorker{
		cleanup:        cleanup,
		metrics:        metrics,
		schedule:       schedule,
		thresholdHours: thresholdHours,
		mode:           mode,
	}
}

// Start schedules the sweeps. An empty schedule disables the worker.
func (w *BackgroundCleanupWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return errors.New("cleanup worker already running")
	}
	if w.schedule == "" {
		slogger.Info(ctx, "Cleanup schedule empty, background sweeps disabled", nil)
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(w.schedule, func() {
		w.runSweep(context.Background())
	})
	if err != nil {
		return errors.New("invalid cleanup schedule: " + err.Error())
	}

	c.Start()
	w.cron = c
	w.running = true

	slogger.Info(ctx, "Background cleanup worker started", slogger.Fields{
		"schedule":        w.schedule,
		"threshold_hours": w.thresholdHours,
		"mode":            string(w.mode),
	})
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (w *BackgroundCleanupWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	stopCtx := w.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	w.cron = nil
	w.running = false
	slogger.Info(ctx, "Background cleanup worker stopped", nil)
	return nil
}

func (w *BackgroundCleanupWorker) runSweep(ctx context.Context) {
	ctx, _ = slogger.EnsureCorrelationID(ctx)

	result, err := w.cleanup.Sweep(ctx, w.thresholdHours, w.mode)
	if err != nil {
		slogger.ErrorWithError(ctx, err, "Scheduled cleanup sweep failed", nil)
		return
	}
	if w.metrics != nil {
		w.metrics.RecordReaperSweep(ctx, string(result.Mode), len(result.StuckJobs))
	}
}
