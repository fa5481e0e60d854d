package outbox

import "errors"

var (
	// ErrInvalidBatchSize indicates that the requested batch size is not positive.
	ErrInvalidBatchSize = errors.New("outbox batch size must be positive")
	// ErrNoEvents signals that no events are due for claiming.
	ErrNoEvents = errors.New("outbox has no claimable events")
	// ErrNilBatch indicates that a claimer returned a nil batch.
	ErrNilBatch = errors.New("outbox batch is nil")
	// ErrEmptyBatch indicates that a claimer returned a batch with no events.
	ErrEmptyBatch = errors.New("outbox batch has no events")
	// ErrAggregateTypeRequired is returned when Entry.AggregateType is empty.
	ErrAggregateTypeRequired = errors.New("outbox aggregate type is required")
	// ErrAggregateIDRequired is returned when Entry.AggregateID is empty.
	ErrAggregateIDRequired = errors.New("outbox aggregate id is required")
	// ErrEventTypeRequired is returned when Entry.EventType is empty.
	ErrEventTypeRequired = errors.New("outbox event type is required")
	// ErrPayloadRequired is returned when Entry.Payload is empty.
	ErrPayloadRequired = errors.New("outbox payload is required")
	// ErrInvalidPayload is returned when Entry.Payload is not valid JSON.
	ErrInvalidPayload = errors.New("outbox payload must be valid JSON")
	// ErrInvalidStatus is returned when a stored status value is not one of
	// PENDING, SENT, FAILED, DLQ.
	ErrInvalidStatus = errors.New("outbox status is invalid")
	// ErrRunPanic indicates a relay run panicked; the batch was not committed.
	ErrRunPanic = errors.New("outbox run panic")
)
