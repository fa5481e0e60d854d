package outbox

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Entry describes a new outbox event to be persisted.
type Entry struct {
	// AggregateType is the logical type of the originating entity (e.g., "JOB").
	AggregateType string
	// AggregateID identifies the originating entity instance.
	AggregateID string
	// EventType names the specific event (e.g., "CREATED", "UPDATED").
	EventType string
	// Payload is the full entity projection consumers need. The relay never
	// interprets it.
	Payload json.RawMessage
	// TraceID is an optional correlation id. The Writer generates one when zero.
	TraceID uuid.UUID
}

// Validate checks required fields and JSON validity of the payload.
func (e Entry) Validate() error {
	return ValidateEntry(e, true)
}

// ValidateEntry validates an entry with optional payload JSON validation.
// Stores that accept non-JSON payloads pass validateJSON=false.
func ValidateEntry(entry Entry, validateJSON bool) error {
	if entry.AggregateType == "" {
		return ErrAggregateTypeRequired
	}
	if entry.AggregateID == "" {
		return ErrAggregateIDRequired
	}
	if entry.EventType == "" {
		return ErrEventTypeRequired
	}
	if len(entry.Payload) == 0 {
		return ErrPayloadRequired
	}
	if validateJSON && !json.Valid(entry.Payload) {
		return ErrInvalidPayload
	}

	return nil
}
