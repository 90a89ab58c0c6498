// Package messaging provides the NATS JetStream consumer that feeds chunk
// work messages into the worker.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"caseindex/internal/application/common/slogger"
	"caseindex/internal/config"
	domainmsg "caseindex/internal/domain/messaging"
	"caseindex/internal/port/inbound"

	"github.com/nats-io/nats.go"
)

const (
	defaultHandleTimeout = 30 * time.Second

	correlationIDHeader = "X-Correlation-ID"
)

// ConsumerConfig holds configuration for the chunk work consumer.
type ConsumerConfig struct {
	Subject       string
	QueueGroup    string
	DurableName   string
	AckWait       time.Duration
	MaxDeliver    int
	MaxAckPending int
	HandleTimeout time.Duration
}

// NATSConsumer pulls chunk work messages off JetStream and hands them to
// the chunk message handler. Messages are acked only after the handler
// returns without an infrastructure error, so failed deliveries come back.
type NATSConsumer struct {
	config     ConsumerConfig
	natsConfig config.NATSConfig
	handler    inbound.ChunkMessageHandler

	mu           sync.RWMutex
	running      bool
	conn         *nats.Conn
	subscription *nats.Subscription
	health       inbound.ConsumerHealthStatus
}

// NewNATSConsumer creates a new chunk work consumer.
func NewNATSConsumer(
	cfg ConsumerConfig,
	natsConfig config.NATSConfig,
	handler inbound.ChunkMessageHandler,
) (*NATSConsumer, error) {
	if err := validateConsumerConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid consumer configuration: %w", err)
	}
	if handler == nil {
		return nil, errors.New("chunk message handler cannot be nil")
	}
	if cfg.HandleTimeout <= 0 {
		cfg.HandleTimeout = defaultHandleTimeout
	}

	return &NATSConsumer{
		config:     cfg,
		natsConfig: natsConfig,
		handler:    handler,
		health: inbound.ConsumerHealthStatus{
			QueueGroup: cfg.QueueGroup,
			Subject:    cfg.Subject,
		},
	}, nil
}

func validateConsumerConfig(cfg ConsumerConfig) error {
	if cfg.Subject == "" {
		return errors.New("subject cannot be empty")
	}
	if cfg.QueueGroup == "" {
		return errors.New("queue group cannot be empty")
	}
	if cfg.AckWait <= 0 {
		return errors.New("ack wait duration must be positive")
	}
	if cfg.MaxDeliver <= 0 {
		return errors.New("max deliver count must be positive")
	}
	if cfg.MaxAckPending <= 0 {
		return errors.New("max ack pending must be positive")
	}
	return nil
}

// Start connects to NATS and begins consuming from the queue group.
func (n *NATSConsumer) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running {
		return fmt.Errorf("consumer already running for subject %s", n.config.Subject)
	}

	conn, err := nats.Connect(n.natsConfig.URL,
		nats.MaxReconnects(n.natsConfig.MaxReconnects),
		nats.ReconnectWait(n.natsConfig.ReconnectWait),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	sub, err := js.QueueSubscribe(
		n.config.Subject,
		n.config.QueueGroup,
		n.handleMessage,
		nats.Durable(n.config.DurableName),
		nats.ManualAck(),
		nats.AckWait(n.config.AckWait),
		nats.MaxDeliver(n.config.MaxDeliver),
		nats.MaxAckPending(n.config.MaxAckPending),
	)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", n.config.Subject, err)
	}

	n.conn = conn
	n.subscription = sub
	n.running = true
	n.health.IsRunning = true
	n.health.IsConnected = true

	slogger.Info(ctx, "Chunk work consumer started", slogger.Fields{
		"subject":     n.config.Subject,
		"queue_group": n.config.QueueGroup,
		"durable":     n.config.DurableName,
	})
	return nil
}

// Stop drains the subscription and closes the connection. Stopping a
// stopped consumer is a no-op.
func (n *NATSConsumer) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.running {
		return nil
	}

	if n.subscription != nil {
		if err := n.subscription.Drain(); err != nil {
			slogger.Warn(ctx, "Failed to drain subscription", slogger.Fields{
				"error": err.Error(),
			})
		}
		n.subscription = nil
	}
	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
	}

	n.running = false
	n.health.IsRunning = false
	n.health.IsConnected = false

	slogger.Info(ctx, "Chunk work consumer stopped", slogger.Fields{
		"subject": n.config.Subject,
	})
	return nil
}

// Health returns the current health status of the consumer.
func (n *NATSConsumer) Health() inbound.ConsumerHealthStatus {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.health
}

// QueueGroup returns the consumer's queue group.
func (n *NATSConsumer) QueueGroup() string {
	return n.config.QueueGroup
}

// Subject returns the consumer's subject.
func (n *NATSConsumer) Subject() string {
	return n.config.Subject
}

// handleMessage deserializes one chunk work message and runs the handler.
// The message is acked on success and on permanently malformed payloads;
// handler errors leave the message unacked for redelivery.
func (n *NATSConsumer) handleMessage(msg *nats.Msg) {
	ctx := context.Background()
	if correlationID := msg.Header.Get(correlationIDHeader); correlationID != "" {
		ctx = slogger.WithCorrelationID(ctx, correlationID)
	} else {
		ctx, _ = slogger.EnsureCorrelationID(ctx)
	}

	var workMessage domainmsg.ChunkWorkMessage
	if err := json.Unmarshal(msg.Data, &workMessage); err != nil {
		n.recordFailure(fmt.Sprintf("failed to unmarshal message: %v", err))
		slogger.Error(ctx, "Dropping malformed chunk work message", slogger.Fields{
			"error": err.Error(),
		})
		// Redelivery cannot fix a malformed payload.
		n.ack(ctx, msg)
		return
	}

	if err := workMessage.Validate(); err != nil {
		n.recordFailure(fmt.Sprintf("invalid message: %v", err))
		slogger.Error(ctx, "Dropping invalid chunk work message", slogger.Fields{
			"error":      err.Error(),
			"message_id": workMessage.MessageID,
		})
		n.ack(ctx, msg)
		return
	}

	handleCtx, cancel := context.WithTimeout(ctx, n.config.HandleTimeout)
	defer cancel()

	if err := n.handler.HandleChunkWork(handleCtx, workMessage); err != nil {
		n.recordFailure(fmt.Sprintf("chunk work handling failed: %v", err))
		slogger.Error(ctx, "Chunk work handling failed, leaving for redelivery", slogger.Fields{
			"error":    err.Error(),
			"chunk_id": workMessage.ChunkID.String(),
			"job_id":   workMessage.JobID.String(),
		})
		return
	}

	n.recordSuccess()
	n.ack(ctx, msg)
}

func (n *NATSConsumer) ack(ctx context.Context, msg *nats.Msg) {
	if err := msg.Ack(); err != nil {
		slogger.Warn(ctx, "Failed to ack message", slogger.Fields{
			"error": err.Error(),
		})
	}
}

func (n *NATSConsumer) recordSuccess() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.health.MessagesHandled++
	n.health.LastMessageTime = time.Now()
}

func (n *NATSConsumer) recordFailure(errorMsg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.health.ErrorCount++
	n.health.LastError = errorMsg
}
