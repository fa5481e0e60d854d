package outbox

import (
	"context"
	"time"
)

// ClaimOptions controls how due events are selected.
type ClaimOptions struct {
	// BatchSize caps the number of events claimed at once.
	BatchSize int
	// Now is the claim time; events that occurred after it are not due.
	Now time.Time
}

// Claimer provides exclusively locked batches of due events.
//
// Two concurrent Claim calls must never return overlapping events: the store
// holds an exclusive per-row claim for the lifetime of the batch transaction.
type Claimer interface {
	// Claim locks and returns up to opts.BatchSize events with status PENDING
	// or FAILED, ordered by occurrence time. It returns ErrNoEvents when
	// nothing is due.
	Claim(ctx context.Context, opts ClaimOptions) (Batch, error)
}

// Batch is a claimed set of events bound to one store transaction. Status
// updates become visible only on Commit; Rollback releases the claim and
// leaves every event exactly as it was.
type Batch interface {
	// Events returns the claimed events in claim order.
	Events() []Event
	// MarkSent transitions the given events to SENT.
	MarkSent(ctx context.Context, ids []int64) error
	// MarkFailed increments attempts for the given events, moving those that
	// reach the retry ceiling to DLQ and the rest to FAILED. It returns the
	// number of events dead-lettered.
	MarkFailed(ctx context.Context, ids []int64) (dead int, err error)
	// Commit finalizes the batch transaction.
	Commit() error
	// Rollback releases claims without applying any changes.
	Rollback() error
}

// StatusCounter reports how many events currently hold a status. Stores may
// implement it to feed the relay's pending gauge and operational queries.
type StatusCounter interface {
	// CountByStatus returns the number of events with the given status.
	CountByStatus(ctx context.Context, status Status) (int, error)
}
