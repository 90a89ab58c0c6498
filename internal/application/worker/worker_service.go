package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"caseindex/internal/application/common/slogger"
	"caseindex/internal/port/inbound"
)

// Service manages the worker process lifecycle: the dispatch consumer plus
// the background cleanup worker.
type Service struct {
	consumer inbound.Consumer
	cleanup  *BackgroundCleanupWorker

	mu      sync.RWMutex
	running bool
}

// NewService creates the worker service. The cleanup worker may be nil
// when scheduled sweeps are disabled.
func NewService(consumer inbound.Consumer, cleanup *BackgroundCleanupWorker) (*Service, error) {
	if consumer == nil {
		return nil, errors.New("consumer cannot be nil")
	}
	return &Service{consumer: consumer, cleanup: cleanup}, nil
}

// Start brings up the consumer and the scheduled cleanup.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("worker service already running")
	}

	if err := s.consumer.Start(ctx); err != nil {
		return err
	}
	if s.cleanup != nil {
		if err := s.cleanup.Start(ctx); err != nil {
			if stopErr := s.consumer.Stop(ctx); stopErr != nil {
				slogger.ErrorWithError(ctx, stopErr, "Could not stop consumer during failed startup", nil)
			}
			return err
		}
	}

	s.running = true
	slogger.Info(ctx, "Worker service started", slogger.Fields{
		"subject":     s.consumer.Subject(),
		"queue_group": s.consumer.QueueGroup(),
	})
	return nil
}

// Stop shuts everything down. Idempotent.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	var firstErr error
	if s.cleanup != nil {
		if err := s.cleanup.Stop(ctx); err != nil {
			firstErr = err
		}
	}
	if err := s.consumer.Stop(ctx); err != nil && firstErr == nil {
		firstErr = err
	}

	s.running = false
	slogger.Info(ctx, "Worker service stopped", nil)
	return firstErr
}

// Health reports the service and consumer health.
func (s *Service) Health() inbound.WorkerServiceHealthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return inbound.WorkerServiceHealthStatus{
		IsRunning:       s.running,
		Consumer:        s.consumer.Health(),
		LastHealthCheck: time.Now(),
	}
}
