package outbox

import (
	"database/sql/driver"
	"fmt"
)

// Status represents the lifecycle state of an outbox event.
//
// Transitions are monotonic:
//
//	PENDING -> SENT
//	PENDING -> FAILED -> ... -> SENT | DLQ
//
// SENT and DLQ are terminal. Only an operator requeue moves a DLQ event back
// to PENDING.
type Status string

const (
	// StatusPending indicates the event has not been published yet.
	StatusPending Status = "PENDING"
	// StatusSent indicates the event was published to the stream.
	StatusSent Status = "SENT"
	// StatusFailed indicates at least one failed publish attempt; the event
	// remains claimable.
	StatusFailed Status = "FAILED"
	// StatusDLQ indicates the event exhausted its retry budget and requires
	// manual intervention.
	StatusDLQ Status = "DLQ"
)

// ParseStatus converts a stored value into a Status, rejecting unknown values.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusSent, StatusFailed, StatusDLQ:
		return Status(s), nil
	}

	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Terminal reports whether the status ends the automated lifecycle.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusDLQ
}

// String returns the stored representation.
func (s Status) String() string {
	return string(s)
}

// Scan implements sql.Scanner, rejecting unrecognized stored values.
func (s *Status) Scan(src any) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("%w: unsupported source %T", ErrInvalidStatus, src)
	}

	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed

	return nil
}

// Value implements driver.Valuer.
func (s Status) Value() (driver.Value, error) {
	if _, err := ParseStatus(string(s)); err != nil {
		return nil, err
	}

	return string(s), nil
}
