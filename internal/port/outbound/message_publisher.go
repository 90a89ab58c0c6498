package outbound

import (
	"context"

	"caseindex/internal/domain/messaging"
)

// MessagePublisher defines the outbound port for dispatching chunk work to
// the queue. Delivery is at-least-once: handlers must tolerate duplicates.
type MessagePublisher interface {
	PublishChunkWork(ctx context.Context, message messaging.ChunkWorkMessage) error
}

// MessagePublisherHealth defines health monitoring capabilities for message
// publishers.
type MessagePublisherHealth interface {
	GetConnectionHealth() MessagePublisherHealthStatus
}

// MessagePublisherHealthStatus represents the health status of a message
// publisher.
type MessagePublisherHealthStatus struct {
	Connected        bool   `json:"connected"`
	LastError        string `json:"last_error,omitempty"`
	Uptime           string `json:"uptime"`
	Reconnects       int    `json:"reconnects"`
	JetStreamEnabled bool   `json:"jetstream_enabled"`
}
