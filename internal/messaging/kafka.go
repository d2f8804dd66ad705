package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/temcen/filmtaste/internal/config"
	"github.com/temcen/filmtaste/internal/validation"
	"github.com/temcen/filmtaste/pkg/models"
)

// ErrInvalidEvent marks payloads that can never be processed.
var ErrInvalidEvent = errors.New("invalid review event")

// EventHandler processes one decoded review event.
type EventHandler func(ctx context.Context, event models.ReviewEvent) error

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Stats() kafka.ReaderStats
	Close() error
}

// ReviewEventBus publishes review events and feeds them to the analysis
// pipeline. Failed events are retried with exponential backoff and then
// dead-lettered.
type ReviewEventBus struct {
	writer     messageWriter
	reader     messageReader
	dlqWriter  messageWriter
	schemas    *validation.SchemaValidator
	validate   *validator.Validate
	topic      string
	maxRetries int
	baseDelay  time.Duration
	logger     *logrus.Logger
}

func NewReviewEventBus(cfg *config.Config, schemas *validation.SchemaValidator, logger *logrus.Logger) *ReviewEventBus {
	topic := cfg.Kafka.Topics.ReviewEvents

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // keyed by user so one user's events stay ordered
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Kafka.Brokers,
		Topic:          topic,
		GroupID:        cfg.Kafka.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
	})

	dlqWriter := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topics.DeadLetter,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return newReviewEventBus(writer, reader, dlqWriter, schemas, topic, cfg.Kafka.MaxRetries, cfg.Kafka.RetryBackoff, logger)
}

func newReviewEventBus(
	writer messageWriter,
	reader messageReader,
	dlqWriter messageWriter,
	schemas *validation.SchemaValidator,
	topic string,
	maxRetries int,
	baseDelay time.Duration,
	logger *logrus.Logger,
) *ReviewEventBus {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return &ReviewEventBus{
		writer:     writer,
		reader:     reader,
		dlqWriter:  dlqWriter,
		schemas:    schemas,
		validate:   validator.New(),
		topic:      topic,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     logger,
	}
}

// Publish writes an event keyed by user id.
func (b *ReviewEventBus) Publish(ctx context.Context, event models.ReviewEvent) error {
	if err := b.validate.Struct(&event); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal review event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(strconv.FormatInt(event.UserID, 10)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(event.EventID.String())},
			{Key: "action", Value: []byte(event.Action)},
			{Key: "timestamp", Value: []byte(event.OccurredAt.Format(time.RFC3339))},
		},
	}

	if err := b.writer.WriteMessages(ctx, message); err != nil {
		b.logger.WithError(err).WithField("event_id", event.EventID).Error("Failed to publish review event to Kafka")
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	b.logger.WithFields(logrus.Fields{
		"event_id": event.EventID,
		"user_id":  event.UserID,
		"action":   event.Action,
		"topic":    b.topic,
	}).Debug("Review event published")

	return nil
}

// Decode validates a raw payload against the review-event schema and the
// struct constraints.
func (b *ReviewEventBus) Decode(payload []byte) (models.ReviewEvent, error) {
	var event models.ReviewEvent

	if result := b.schemas.ValidateReviewEvent(payload); !result.Valid {
		return event, fmt.Errorf("%w: %v", ErrInvalidEvent, result.Err())
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return event, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := b.validate.Struct(&event); err != nil {
		return event, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return event, nil
}

// Consume blocks until ctx is cancelled, handing every event to handler.
// Messages are committed once handled or dead-lettered.
func (b *ReviewEventBus) Consume(ctx context.Context, handler EventHandler) error {
	for {
		message, err := b.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.WithError(err).Error("Failed to read message from Kafka")
			if err := sleep(ctx, b.baseDelay); err != nil {
				return err
			}
			continue
		}

		b.handleMessage(ctx, message, handler)

		if err := b.reader.CommitMessages(ctx, message); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.WithError(err).WithField("offset", message.Offset).Error("Failed to commit Kafka message")
		}
	}
}

func (b *ReviewEventBus) handleMessage(ctx context.Context, message kafka.Message, handler EventHandler) {
	event, err := b.Decode(message.Value)
	if err != nil {
		b.logger.WithError(err).WithField("offset", message.Offset).Warn("Discarding invalid review event")
		b.deadLetter(ctx, message, err)
		return
	}

	if err := b.processWithRetry(ctx, event, handler); err != nil {
		if ctx.Err() != nil {
			return
		}
		b.logger.WithError(err).WithField("event_id", event.EventID).Error("Failed to process review event after retries")
		b.deadLetter(ctx, message, err)
	}
}

func (b *ReviewEventBus) processWithRetry(ctx context.Context, event models.ReviewEvent, handler EventHandler) error {
	var err error
	for attempt := 0; attempt <= b.maxRetries; attempt++ {
		if attempt > 0 {
			delay := b.baseDelay * time.Duration(1<<uint(attempt-1))
			b.logger.WithFields(logrus.Fields{
				"event_id": event.EventID,
				"attempt":  attempt,
				"delay":    delay,
			}).Info("Retrying review event")

			if err := sleep(ctx, delay); err != nil {
				return err
			}
		}

		if err = handler(ctx, event); err == nil {
			return nil
		}
		if errors.Is(err, ErrInvalidEvent) {
			return err
		}

		b.logger.WithError(err).WithFields(logrus.Fields{
			"event_id": event.EventID,
			"attempt":  attempt,
		}).Warn("Review event processing failed")
	}
	return fmt.Errorf("max retries exceeded: %w", err)
}

func (b *ReviewEventBus) deadLetter(ctx context.Context, message kafka.Message, cause error) {
	dlqMessage := map[string]interface{}{
		"original_message": json.RawMessage(message.Value),
		"error":            cause.Error(),
		"dlq_timestamp":    time.Now(),
	}
	if !json.Valid(message.Value) {
		dlqMessage["original_message"] = string(message.Value)
	}

	payload, err := json.Marshal(dlqMessage)
	if err != nil {
		b.logger.WithError(err).Error("Failed to marshal DLQ message")
		return
	}

	err = b.dlqWriter.WriteMessages(ctx, kafka.Message{
		Key:   message.Key,
		Value: payload,
		Headers: append(message.Headers,
			kafka.Header{Key: "original_topic", Value: []byte(b.topic)},
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
		),
	})
	if err != nil {
		b.logger.WithError(err).Error("Failed to send message to DLQ")
		return
	}

	b.logger.WithFields(logrus.Fields{
		"offset": message.Offset,
		"error":  cause.Error(),
	}).Warn("Message sent to DLQ")
}

func (b *ReviewEventBus) Close() error {
	var errs []error

	if err := b.writer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close producer: %w", err))
	}
	if err := b.reader.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close consumer: %w", err))
	}
	if err := b.dlqWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close DLQ writer: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing message bus: %v", errs)
	}
	return nil
}

// GetMetrics returns consumer stats; the health report lists them under "kafka".
func (b *ReviewEventBus) GetMetrics() map[string]interface{} {
	stats := b.reader.Stats()
	return map[string]interface{}{
		"consumer_lag":    stats.Lag,
		"consumer_offset": stats.Offset,
		"messages_read":   stats.Messages,
		"bytes_read":      stats.Bytes,
		"rebalances":      stats.Rebalances,
		"timeouts":        stats.Timeouts,
		"errors":          stats.Errors,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
