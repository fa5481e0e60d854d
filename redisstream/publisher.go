// Package redisstream publishes outbox events to a Redis Stream.
//
// Each successful publish appends one XADD entry whose fields mirror the
// stored event: id, aggregateType, aggregateId, eventType, payload,
// occurredAt, traceId, attempts. Consumers read the stream through a named
// consumer group and must deduplicate by id, since delivery is
// at-least-once.
package redisstream

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jobwire/outbox"
)

// DefaultStream is the well-known stream key consumers subscribe to.
const DefaultStream = "job-events"

var (
	// ErrClientRequired is returned when a nil redis client is provided.
	ErrClientRequired = errors.New("outbox redisstream: client is required")
	// ErrStreamRequired is returned when the stream key is empty.
	ErrStreamRequired = errors.New("outbox redisstream: stream key is required")
)

// NewClient builds a redis client suitable for publishing: command retries
// are disabled so one Publish is exactly one transport attempt. Retry policy
// lives in the relay; a client with internal retries would multiply the
// effective attempt budget behind the relay's back.
func NewClient(opts *redis.Options) *redis.Client {
	opts.MaxRetries = -1

	return redis.NewClient(opts)
}

// Publisher appends outbox events to a Redis Stream. It never retries
// internally; every transport error is reported as one failed attempt. The
// client must have internal command retries disabled, see NewClient.
type Publisher struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

var _ outbox.Publisher = (*Publisher)(nil)

// Option configures the Publisher.
type Option func(*Publisher)

// WithStream sets the target stream key.
func WithStream(stream string) Option {
	return func(p *Publisher) {
		p.stream = stream
	}
}

// WithMaxLen enables approximate stream trimming to roughly maxLen entries.
// Zero disables trimming.
func WithMaxLen(maxLen int64) Option {
	return func(p *Publisher) {
		p.maxLen = maxLen
	}
}

// NewPublisher constructs a Publisher over the given client.
func NewPublisher(client redis.UniversalClient, opts ...Option) (*Publisher, error) {
	if client == nil {
		return nil, ErrClientRequired
	}

	p := &Publisher{client: client, stream: DefaultStream}
	for _, opt := range opts {
		opt(p)
	}
	if p.stream == "" {
		return nil, ErrStreamRequired
	}

	return p, nil
}

// Stream returns the target stream key.
func (p *Publisher) Stream() string {
	return p.stream
}

// Publish appends the event to the stream. The broker assigns the message its
// own stream id, distinct from the event id carried in the fields.
func (p *Publisher) Publish(ctx context.Context, event outbox.Event) error {
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: p.maxLen > 0,
		Values: messageValues(event),
	}).Err()
	if err != nil {
		return fmt.Errorf("outbox redisstream: xadd failed: %w", err)
	}

	return nil
}

// messageValues flattens an event into the wire fields. The attempts field
// carries the count before this publish, so consumers can spot redeliveries
// of long-retried events.
func messageValues(event outbox.Event) map[string]any {
	return map[string]any{
		"id":            strconv.FormatInt(event.ID, 10),
		"aggregateType": event.AggregateType,
		"aggregateId":   event.AggregateID,
		"eventType":     event.EventType,
		"payload":       string(event.Payload),
		"occurredAt":    event.OccurredAt.Format(time.RFC3339Nano),
		"traceId":       event.TraceID.String(),
		"attempts":      strconv.Itoa(event.Attempts),
	}
}

// EnsureGroup creates the consumer group at the start of the stream, creating
// the stream if needed. An already-existing group is not an error, matching
// the consumer-side bootstrap.
func EnsureGroup(ctx context.Context, client redis.UniversalClient, stream, group string) error {
	err := client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("outbox redisstream: create group failed: %w", err)
	}

	return nil
}
