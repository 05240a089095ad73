// Package audit ships key lifecycle events to Kafka, the database or the log.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/turtacn/keystore/internal/config"
	"github.com/turtacn/keystore/internal/domain/models"
	"github.com/turtacn/keystore/internal/domain/service"
	"github.com/turtacn/keystore/pkg/constants"
	"github.com/turtacn/keystore/pkg/errors"
	"github.com/turtacn/keystore/pkg/logger"
)

var _ service.KeyEventPublisher = (*KafkaPublisher)(nil)

const (
	headerEventType = "event-type"
	headerSignature = "signature"

	defaultBatchTimeout = 10 * time.Millisecond
)

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes key events to a topic, keyed by owner id so one
// owner's events stay ordered within a partition.
type KafkaPublisher struct {
	writer        messageWriter
	signingSecret string
	logger        logger.Logger
}

// NewKafkaPublisher creates a publisher for cfg.Topic.
func NewKafkaPublisher(cfg config.KafkaConfig, log logger.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.ErrInvalidRequest("kafka brokers must not be empty")
	}
	topic := cfg.Topic
	if topic == "" {
		topic = constants.DefaultKafkaTopic
	}

	// Writes are synchronous, so a batch that never fills holds every
	// publish for the whole batch timeout. Key events are rare; send each
	// one as it comes unless configured otherwise.
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = defaultBatchTimeout
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchSize:    batchSize,
		BatchTimeout: batchTimeout,
		WriteTimeout: 10 * time.Second,
	}
	return newKafkaPublisher(writer, cfg.SigningSecret, log), nil
}

func newKafkaPublisher(w messageWriter, signingSecret string, log logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer:        w,
		signingSecret: signingSecret,
		logger:        log.WithComponent("kafka_publisher"),
	}
}

// Publish sends event to Kafka.
func (p *KafkaPublisher) Publish(ctx context.Context, event *models.KeyEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.ErrInternal("failed to encode key event").WithCause(err)
	}

	msg := kafka.Message{
		Key:   []byte(event.OwnerID),
		Value: payload,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(event.Type)},
		},
	}
	if p.signingSecret != "" {
		msg.Headers = append(msg.Headers, kafka.Header{
			Key:   headerSignature,
			Value: []byte(Sign(payload, p.signingSecret)),
		})
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error(ctx, "Failed to write key event to Kafka", err, logger.Fields{
			"event_id": event.ID,
			"type":     event.Type,
		})
		return errors.ErrInternal("failed to publish key event").WithCause(err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
