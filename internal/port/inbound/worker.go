package inbound

import (
	"context"
	"time"

	"caseindex/internal/domain/messaging"
)

// ChunkMessageHandler processes one dispatched chunk work message. Handlers
// are invoked at least once per message and must be idempotent; chunk-level
// failures are converted to state, so a returned error signals only an
// infrastructure problem that warrants redelivery.
type ChunkMessageHandler interface {
	HandleChunkWork(ctx context.Context, message messaging.ChunkWorkMessage) error
}

// Consumer is a message consumer bound to one subject and queue group.
type Consumer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health() ConsumerHealthStatus
	QueueGroup() string
	Subject() string
}

// WorkerService manages the consumer lifecycle for the worker process.
type WorkerService interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health() WorkerServiceHealthStatus
}

// ConsumerHealthStatus represents the health status of a consumer.
type ConsumerHealthStatus struct {
	IsRunning       bool      `json:"is_running"`
	IsConnected     bool      `json:"is_connected"`
	LastMessageTime time.Time `json:"last_message_time"`
	MessagesHandled int64     `json:"messages_handled"`
	ErrorCount      int64     `json:"error_count"`
	LastError       string    `json:"last_error,omitempty"`
	QueueGroup      string    `json:"queue_group"`
	Subject         string    `json:"subject"`
}

// WorkerServiceHealthStatus represents the health status of the worker
// service.
type WorkerServiceHealthStatus struct {
	IsRunning       bool                 `json:"is_running"`
	Consumer        ConsumerHealthStatus `json:"consumer"`
	LastHealthCheck time.Time            `json:"last_health_check"`
}
