package outbox

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// Appender persists one entry inside the caller's transaction. An error must
// propagate to the caller so the enclosing business transaction rolls back;
// an entry is never dropped silently.
type Appender interface {
	// Append inserts the entry with status PENDING and returns its id.
	Append(ctx context.Context, entry Entry) (int64, error)
}

// AppendFunc adapts a function to Appender.
type AppendFunc func(ctx context.Context, entry Entry) (int64, error)

// Append implements Appender.
func (fn AppendFunc) Append(ctx context.Context, entry Entry) (int64, error) {
	return fn(ctx, entry)
}

// Writer is the write path business transactions use to record an event
// atomically with their own state change. It validates the entry, assigns a
// trace id when absent, and delegates persistence to the bound Appender.
type Writer struct {
	appender Appender
	validate bool
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithPayloadValidation enables or disables JSON validation of payloads.
// Enabled by default.
func WithPayloadValidation(enabled bool) WriterOption {
	return func(w *Writer) {
		w.validate = enabled
	}
}

// NewWriter constructs a Writer over the given appender. The appender is
// expected to be bound to the caller's transaction.
func NewWriter(appender Appender, opts ...WriterOption) *Writer {
	if appender == nil {
		panic("outbox: nil Appender")
	}

	w := &Writer{appender: appender, validate: true}
	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Record validates and persists the entry, generating a trace id when the
// entry carries none. It returns the assigned event id.
func (w *Writer) Record(ctx context.Context, entry Entry) (int64, error) {
	if err := ValidateEntry(entry, w.validate); err != nil {
		return 0, err
	}
	if entry.TraceID == uuid.Nil {
		entry.TraceID = uuid.New()
	}

	return w.appender.Append(ctx, entry)
}

// RecordEvent is a convenience wrapper over Record for callers that do not
// carry a trace id.
func (w *Writer) RecordEvent(ctx context.Context, aggregateType, aggregateID, eventType string, payload json.RawMessage) (int64, error) {
	return w.Record(ctx, Entry{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
	})
}
