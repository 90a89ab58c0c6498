// Package messaging provides the NATS JetStream implementation of the
// chunk work dispatch port.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"caseindex/internal/application/common/slogger"
	"caseindex/internal/config"
	domainmsg "caseindex/internal/domain/messaging"
	"caseindex/internal/port/outbound"

	"github.com/nats-io/nats.go"
)

const (
	natsConnectionTimeoutSeconds = 5

	// StreamName is the JetStream stream carrying chunk work.
	StreamName = "CHUNKING"

	// ChunkWorkSubject is the subject chunk work messages are published on.
	ChunkWorkSubject = "chunking.chunk"

	streamMaxAgeHours = 24

	correlationIDHeader = "X-Correlation-ID"
)

// publishMetrics tracks message publishing outcomes.
type publishMetrics struct {
	publishedCount    int64
	failedCount       int64
	averageLatency    time.Duration
	lastPublishedTime time.Time
}

// NATSChunkPublisher provides a NATS JetStream implementation of
// MessagePublisher. It trips a small circuit breaker after repeated
// publish failures so a dead broker fails fast instead of timing out on
// every chunk.
type NATSChunkPublisher struct {
	config config.NATSConfig
	conn   *nats.Conn
	js     nats.JetStreamContext

	mutex          sync.RWMutex
	isConnected    bool
	connectedAt    time.Time
	reconnectCount int
	lastError      error
	metrics        publishMetrics

	circuitBreakerOpen bool
	lastFailureTime    time.Time
	failureCount       int
}

// NewNATSChunkPublisher creates a new chunk work publisher. Connect must be
// called before publishing.
func NewNATSChunkPublisher(cfg config.NATSConfig) (*NATSChunkPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("NATS URL cannot be empty")
	}
	if !strings.HasPrefix(cfg.URL, "nats://") {
		return nil, errors.New("invalid NATS URL scheme")
	}
	if cfg.MaxReconnects < 0 {
		return nil, errors.New("max reconnects cannot be negative")
	}
	if cfg.ReconnectWait < 0 {
		return nil, errors.New("reconnect wait cannot be negative")
	}

	return &NATSChunkPublisher{config: cfg}, nil
}

// Connect establishes the NATS connection and JetStream context.
func (n *NATSChunkPublisher) Connect() error {
	opts := []nats.Option{
		nats.MaxReconnects(n.config.MaxReconnects),
		nats.ReconnectWait(n.config.ReconnectWait),
		nats.Timeout(natsConnectionTimeoutSeconds * time.Second),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			n.mutex.Lock()
			n.reconnectCount++
			n.mutex.Unlock()
			n.updateConnectionState(true, nil)
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, _ error) {
			n.updateConnectionState(false, errors.New("connection lost"))
		}),
	}

	conn, err := nats.Connect(n.config.URL, opts...)
	if err != nil {
		n.updateConnectionState(false, err)
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		n.updateConnectionState(false, err)
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	n.conn = conn
	n.js = js
	n.updateConnectionState(true, nil)
	return nil
}

// Disconnect closes the NATS connection.
func (n *NATSChunkPublisher) Disconnect() error {
	if n.conn != nil {
		n.conn.Close()
		n.conn = nil
		n.js = nil
	}
	n.updateConnectionState(false, nil)
	return nil
}

// EnsureStream creates the chunk work stream if it doesn't exist.
func (n *NATSChunkPublisher) EnsureStream() error {
	if n.js == nil {
		return errors.New("not connected to NATS server")
	}

	streamConfig := &nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{"chunking.>"},
		Storage:   nats.FileStorage,
		Retention: nats.WorkQueuePolicy,
		MaxAge:    streamMaxAgeHours * time.Hour,
		Replicas:  1,
	}

	_, err := n.js.AddStream(streamConfig)
	if err != nil {
		if _, infoErr := n.js.StreamInfo(StreamName); infoErr == nil {
			return nil
		}
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// PublishChunkWork publishes one chunk work message. The correlation ID from
// the context rides along in a header so consumers can stitch logs together.
func (n *NATSChunkPublisher) PublishChunkWork(ctx context.Context, message domainmsg.ChunkWorkMessage) error {
	start := time.Now()

	select {
	case <-ctx.Done():
		n.updateMetrics(false, time.Since(start))
		return ctx.Err()
	default:
	}

	if err := message.Validate(); err != nil {
		return err
	}

	if n.isCircuitBreakerOpen() {
		n.updateMetrics(false, time.Since(start))
		return errors.New("circuit breaker open: too many recent failures")
	}

	if n.js == nil {
		n.updateMetrics(false, time.Since(start))
		return errors.New("publish failed: not connected to NATS")
	}

	if message.CorrelationID == "" {
		message.CorrelationID = slogger.CorrelationID(ctx)
	}

	msg, err := buildChunkWorkMsg(message)
	if err != nil {
		n.updateMetrics(false, time.Since(start))
		return err
	}

	if _, err := n.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		n.updateMetrics(false, time.Since(start))
		return fmt.Errorf("failed to publish chunk work: %w", err)
	}

	n.updateMetrics(true, time.Since(start))
	return nil
}

// buildChunkWorkMsg turns a chunk work message into the wire message,
// carrying the correlation ID and the message ID as headers. The message ID
// doubles as the JetStream dedup key: client-side publish retries of the
// same message are dropped inside the stream's duplicate window.
func buildChunkWorkMsg(message domainmsg.ChunkWorkMessage) (*nats.Msg, error) {
	data, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	msg := &nats.Msg{
		Subject: ChunkWorkSubject,
		Data:    data,
		Header:  nats.Header{},
	}
	if message.CorrelationID != "" {
		msg.Header.Set(correlationIDHeader, message.CorrelationID)
	}
	if message.MessageID != "" {
		msg.Header.Set(nats.MsgIdHdr, message.MessageID)
	}
	return msg, nil
}

// GetConnectionHealth returns the current connection health status.
func (n *NATSChunkPublisher) GetConnectionHealth() outbound.MessagePublisherHealthStatus {
	n.mutex.RLock()
	defer n.mutex.RUnlock()

	status := outbound.MessagePublisherHealthStatus{
		Connected:        n.isConnected,
		JetStreamEnabled: n.js != nil,
		Reconnects:       n.reconnectCount,
	}

	if n.isConnected {
		status.Uptime = time.Since(n.connectedAt).String()
	} else {
		status.Uptime = "0s"
	}

	if n.lastError != nil {
		status.LastError = n.lastError.Error()
	}

	return status
}

func (n *NATSChunkPublisher) updateConnectionState(connected bool, err error) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	n.isConnected = connected
	if err != nil {
		n.lastError = err
	}
	if connected && n.connectedAt.IsZero() {
		n.connectedAt = time.Now()
	}
}

func (n *NATSChunkPublisher) updateMetrics(success bool, latency time.Duration) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	if success {
		n.metrics.publishedCount++
		n.metrics.lastPublishedTime = time.Now()

		// Exponential moving average, alpha = 0.1.
		if n.metrics.averageLatency == 0 {
			n.metrics.averageLatency = latency
		} else {
			n.metrics.averageLatency = time.Duration(
				0.9*float64(n.metrics.averageLatency) + 0.1*float64(latency),
			)
		}
		n.failureCount = 0
		n.circuitBreakerOpen = false
	} else {
		n.metrics.failedCount++
		n.updateCircuitBreaker()
	}
}

func (n *NATSChunkPublisher) updateCircuitBreaker() {
	const maxFailures = 3

	n.failureCount++
	n.lastFailureTime = time.Now()
	if n.failureCount >= maxFailures {
		n.circuitBreakerOpen = true
	}
}

func (n *NATSChunkPublisher) isCircuitBreakerOpen() bool {
	const circuitOpenDuration = 30 * time.Second

	n.mutex.Lock()
	defer n.mutex.Unlock()

	if n.circuitBreakerOpen && time.Since(n.lastFailureTime) > circuitOpenDuration {
		n.circuitBreakerOpen = false
		n.failureCount = 0
	}
	return n.circuitBreakerOpen
}
