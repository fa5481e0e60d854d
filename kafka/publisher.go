// Package kafka publishes outbox events to a Kafka topic for deployments
// that prefer Kafka over Redis Streams. The wire schema matches the Redis
// publisher: one JSON message per event, keyed by aggregate id so ordering
// within an aggregate is best-effort preserved by partitioning.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/jobwire/outbox"
)

// DefaultTopic is the well-known topic consumers subscribe to.
const DefaultTopic = "job-events"

var (
	// ErrBrokersRequired is returned when no broker addresses are provided.
	ErrBrokersRequired = errors.New("outbox kafka: broker addresses are required")
	// ErrTopicRequired is returned when the topic is empty.
	ErrTopicRequired = errors.New("outbox kafka: topic is required")
)

// message is the JSON value appended for each event. All fields are strings,
// matching the Redis Stream field encoding.
type message struct {
	ID            string `json:"id"`
	AggregateType string `json:"aggregateType"`
	AggregateID   string `json:"aggregateId"`
	EventType     string `json:"eventType"`
	Payload       string `json:"payload"`
	OccurredAt    string `json:"occurredAt"`
	TraceID       string `json:"traceId"`
	Attempts      string `json:"attempts"`
}

// Publisher appends outbox events to a Kafka topic. Retry policy lives in the
// relay, so the underlying writer is configured for a single attempt.
type Publisher struct {
	writer *kafkago.Writer
}

var _ outbox.Publisher = (*Publisher)(nil)

// NewPublisher constructs a Publisher writing to topic on the given brokers.
func NewPublisher(brokers []string, topic string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, ErrBrokersRequired
	}
	if topic == "" {
		return nil, ErrTopicRequired
	}

	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		MaxAttempts:  1,
		WriteTimeout: 10 * time.Second,
	}

	return &Publisher{writer: writer}, nil
}

// Publish appends one message for the event. Any write error, including an
// ambiguous timeout, counts as one failed attempt.
func (p *Publisher) Publish(ctx context.Context, event outbox.Event) error {
	value, err := json.Marshal(encodeMessage(event))
	if err != nil {
		return fmt.Errorf("outbox kafka: encode failed: %w", err)
	}

	msg := kafkago.Message{
		Key:   []byte(event.AggregateID),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("outbox kafka: write failed: %w", err)
	}

	return nil
}

// Close releases the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func encodeMessage(event outbox.Event) message {
	return message{
		ID:            strconv.FormatInt(event.ID, 10),
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       string(event.Payload),
		OccurredAt:    event.OccurredAt.Format(time.RFC3339Nano),
		TraceID:       event.TraceID.String(),
		Attempts:      strconv.Itoa(event.Attempts),
	}
}
