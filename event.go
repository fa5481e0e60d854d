package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is a stored outbox event claimed for relaying.
type Event struct {
	// ID is the store-assigned monotonic identity, also the dedup key for
	// stream consumers.
	ID            int64
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       json.RawMessage
	Status        Status
	// Attempts counts failed publish attempts so far.
	Attempts   int
	OccurredAt time.Time
	TraceID    uuid.UUID
}
