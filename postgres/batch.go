package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jobwire/outbox"
)

type batch struct {
	tx     *sql.Tx
	store  *Store
	events []outbox.Event
}

var _ outbox.Batch = (*batch)(nil)

// Events returns the events claimed by this batch.
func (b *batch) Events() []outbox.Event {
	return b.events
}

// MarkSent transitions the given events to SENT.
func (b *batch) MarkSent(ctx context.Context, ids []int64) error {
	return b.store.markSent(ctx, b.tx, ids)
}

// MarkFailed increments attempts and dead-letters events reaching the retry
// ceiling. It returns the number of events moved to DLQ.
func (b *batch) MarkFailed(ctx context.Context, ids []int64) (int, error) {
	return b.store.markFailed(ctx, b.tx, ids)
}

// Commit finalizes the claim transaction, releasing the row locks.
func (b *batch) Commit() error {
	return b.tx.Commit()
}

// Rollback releases claims without applying any changes.
func (b *batch) Rollback() error {
	err := b.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}

	return err
}
