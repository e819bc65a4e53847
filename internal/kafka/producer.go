// Package kafka streams fired notifications to a Kafka topic so other
// systems can consume alert events.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"auditwatch/internal/config"
	"auditwatch/internal/logger"
	"auditwatch/internal/metrics"
	"auditwatch/internal/models"
)

// Producer errors
var (
	ErrProducerClosed  = errors.New("producer is closed")
	ErrSerializeFailed = errors.New("failed to serialize notification")
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes notifications keyed by target id, so every alert for
// one target lands on the same partition in firing order.
type Producer struct {
	cfg    config.ProducerConfig
	topic  string
	writer messageWriter
	closed atomic.Bool

	messagesSent   atomic.Uint64
	messagesFailed atomic.Uint64
	bytesWritten   atomic.Uint64
}

// NewProducer creates a synchronous producer for topic
func NewProducer(brokers []string, topic string, cfg config.ProducerConfig) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  getCompression(cfg.Compression),
		// retries are driven by publishWithRetry
		MaxAttempts: 1,
	}

	return newProducer(w, topic, cfg), nil
}

func newProducer(w messageWriter, topic string, cfg config.ProducerConfig) *Producer {
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Producer{cfg: cfg, topic: topic, writer: w}
}

func getCompression(name string) compress.Compression {
	switch name {
	case "gzip":
		return compress.Gzip
	case "snappy":
		return compress.Snappy
	case "lz4":
		return compress.Lz4
	case "zstd":
		return compress.Zstd
	default:
		return compress.None
	}
}

// buildMessage encodes n as a Kafka message
func buildMessage(n *models.Notification) (kafka.Message, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("%w: %v", ErrSerializeFailed, err)
	}

	return kafka.Message{
		Key:   []byte(n.TargetID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "alert_id", Value: []byte(n.ID)},
			{Key: "rule_id", Value: []byte(n.RuleID)},
			{Key: "severity", Value: []byte(n.Severity)},
		},
		Time: n.FiredAt,
	}, nil
}

// Publish sends one notification, retrying with exponential backoff
func (p *Producer) Publish(ctx context.Context, n *models.Notification) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}

	msg, err := buildMessage(n)
	if err != nil {
		p.messagesFailed.Add(1)
		metrics.KafkaPublishTotal.WithLabelValues("failed").Inc()
		return err
	}

	start := time.Now()
	err = p.publishWithRetry(ctx, msg)
	metrics.KafkaPublishDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		p.messagesFailed.Add(1)
		metrics.KafkaPublishTotal.WithLabelValues("failed").Inc()
		return err
	}

	p.messagesSent.Add(1)
	p.bytesWritten.Add(uint64(len(msg.Value)))
	metrics.KafkaPublishTotal.WithLabelValues("success").Inc()
	return nil
}

func (p *Producer) publishWithRetry(ctx context.Context, msg kafka.Message) error {
	log := logger.WithComponent("kafka_producer")
	var lastErr error
	backoff := p.cfg.RetryBackoff

	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("retrying kafka publish")
			metrics.KafkaPublishRetries.Inc()

			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := p.writer.WriteMessages(ctx, msg)
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}

	log.Error().
		Err(lastErr).
		Str("topic", p.topic).
		Int("attempts", p.cfg.MaxRetries+1).
		Msg("kafka publish failed after all retries")

	return fmt.Errorf("failed after %d attempts: %w", p.cfg.MaxRetries+1, lastErr)
}

// Close flushes and closes the writer
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.writer.Close()
}

// ProducerStats holds producer counters
type ProducerStats struct {
	MessagesSent   uint64 `json:"messages_sent"`
	MessagesFailed uint64 `json:"messages_failed"`
	BytesWritten   uint64 `json:"bytes_written"`
}

func (p *Producer) Stats() ProducerStats {
	return ProducerStats{
		MessagesSent:   p.messagesSent.Load(),
		MessagesFailed: p.messagesFailed.Load(),
		BytesWritten:   p.bytesWritten.Load(),
	}
}

// HealthCheck reports whether the producer can still publish
func (p *Producer) HealthCheck(ctx context.Context) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	return ctx.Err()
}
