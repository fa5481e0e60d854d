package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jobwire/outbox"
)

// Executor runs a query inside the caller's transaction. Both *sql.DB and
// *sql.Tx satisfy it; business code passes its open transaction so the event
// commits or rolls back together with the domain change.
type Executor interface {
	// QueryRowContext executes a query expected to return at most one row.
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements the outbox event store on PostgreSQL.
type Store struct {
	db      *sql.DB
	cfg     Config
	queries queries
	table   string
}

var (
	_ outbox.Claimer       = (*Store)(nil)
	_ outbox.StatusCounter = (*Store)(nil)
)

// NewStore constructs a PostgreSQL store with validated configuration.
func NewStore(db *sql.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrDBRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	table, err := sanitizeTableName(cfg.Table)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:      db,
		cfg:     cfg,
		queries: newQueries(table),
		table:   table,
	}, nil
}

// MustNewStore constructs a PostgreSQL store or panics on error.
func MustNewStore(db *sql.DB, opts ...Option) *Store {
	store, err := NewStore(db, opts...)
	if err != nil {
		panic(err)
	}

	return store
}

// Append inserts an outbox event with status PENDING using the provided
// executor. Callers must pass their open transaction; a failed insert
// propagates so the enclosing business transaction rolls back.
func (s *Store) Append(ctx context.Context, exec Executor, entry outbox.Entry) (int64, error) {
	if exec == nil {
		return 0, ErrExecutorRequired
	}
	if err := outbox.ValidateEntry(entry, s.cfg.ValidatePayload); err != nil {
		return 0, err
	}
	if entry.TraceID == uuid.Nil {
		entry.TraceID = uuid.New()
	}

	var id int64
	err := exec.QueryRowContext(
		ctx,
		s.queries.insert,
		entry.AggregateType,
		entry.AggregateID,
		entry.EventType,
		entry.Payload,
		entry.TraceID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("outbox postgres: insert failed: %w", err)
	}

	return id, nil
}

// Writer returns an outbox.Writer bound to the given executor, typically the
// caller's open transaction.
func (s *Store) Writer(exec Executor, opts ...outbox.WriterOption) *outbox.Writer {
	return outbox.NewWriter(outbox.AppendFunc(func(ctx context.Context, entry outbox.Entry) (int64, error) {
		return s.Append(ctx, exec, entry)
	}), opts...)
}

// Claim locks and returns a batch of due events using READ COMMITTED +
// FOR UPDATE SKIP LOCKED. The returned batch owns the claim transaction.
func (s *Store) Claim(ctx context.Context, opts outbox.ClaimOptions) (outbox.Batch, error) {
	if opts.BatchSize <= 0 {
		return nil, outbox.ErrInvalidBatchSize
	}
	now := opts.Now
	if now.IsZero() {
		now = s.cfg.Clock.Now()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("outbox postgres: begin tx failed: %w", err)
	}

	rows, err := tx.QueryContext(ctx, s.queries.claimDue, outbox.StatusPending, outbox.StatusFailed, now, opts.BatchSize)
	if err != nil {
		rollbackErr := tx.Rollback()

		return nil, errors.Join(fmt.Errorf("outbox postgres: claim select failed: %w", err), rollbackErr)
	}

	events, err := scanEvents(rows, opts.BatchSize)
	if err != nil {
		rollbackErr := tx.Rollback()

		return nil, errors.Join(err, rollbackErr)
	}
	if len(events) == 0 {
		_ = tx.Rollback()

		return nil, outbox.ErrNoEvents
	}

	return &batch{tx: tx, store: s, events: events}, nil
}

func scanEvents(rows *sql.Rows, capacity int) ([]outbox.Event, error) {
	defer rows.Close()

	events := make([]outbox.Event, 0, capacity)
	for rows.Next() {
		var event outbox.Event
		if err := rows.Scan(
			&event.ID,
			&event.AggregateType,
			&event.AggregateID,
			&event.EventType,
			&event.Payload,
			&event.Status,
			&event.Attempts,
			&event.OccurredAt,
			&event.TraceID,
		); err != nil {
			return nil, fmt.Errorf("outbox postgres: scan failed: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox postgres: rows failed: %w", err)
	}

	return events, nil
}

func (s *Store) markSent(ctx context.Context, tx *sql.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	if _, err := tx.ExecContext(ctx, s.queries.markSent, outbox.StatusSent, s.cfg.Clock.Now(), ids); err != nil {
		return fmt.Errorf("outbox postgres: mark sent failed: %w", err)
	}

	return nil
}

func (s *Store) markFailed(ctx context.Context, tx *sql.Tx, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	rows, err := tx.QueryContext(ctx, s.queries.markFailed, s.cfg.MaxAttempts, outbox.StatusDLQ, outbox.StatusFailed, ids)
	if err != nil {
		return 0, fmt.Errorf("outbox postgres: mark failed failed: %w", err)
	}
	defer rows.Close()

	dead := 0
	for rows.Next() {
		var status outbox.Status
		if err := rows.Scan(&status); err != nil {
			return 0, fmt.Errorf("outbox postgres: mark failed scan failed: %w", err)
		}
		if status == outbox.StatusDLQ {
			dead++
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("outbox postgres: mark failed rows failed: %w", err)
	}

	return dead, nil
}

// CountByStatus returns the number of events with the given status.
func (s *Store) CountByStatus(ctx context.Context, status outbox.Status) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, s.queries.countByStatus, status).Scan(&count); err != nil {
		return 0, fmt.Errorf("outbox postgres: count by status failed: %w", err)
	}

	return count, nil
}

// EventsByStatus returns up to limit events with the given status ordered by
// occurrence time, without claiming them. Intended for monitoring and
// operator tooling.
func (s *Store) EventsByStatus(ctx context.Context, status outbox.Status, limit int) ([]outbox.Event, error) {
	if limit <= 0 {
		return nil, outbox.ErrInvalidBatchSize
	}

	rows, err := s.db.QueryContext(ctx, s.queries.selectByStatus, status, limit)
	if err != nil {
		return nil, fmt.Errorf("outbox postgres: select by status failed: %w", err)
	}

	return scanEvents(rows, limit)
}

// Requeue resets a dead-lettered event to PENDING so the next relay run
// treats it like a fresh event. This is the only externally-permitted
// transition out of DLQ. With resetAttempts the attempt counter restarts
// at zero.
func (s *Store) Requeue(ctx context.Context, id int64, resetAttempts bool) error {
	res, err := s.db.ExecContext(ctx, s.queries.requeue, outbox.StatusPending, resetAttempts, id, outbox.StatusDLQ)
	if err != nil {
		return fmt.Errorf("outbox postgres: requeue failed: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("outbox postgres: requeue rows affected failed: %w", err)
	}
	if affected == 0 {
		var count int
		countErr := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE id = $1", s.table), id).Scan(&count)
		if countErr == nil && count == 0 {
			return fmt.Errorf("%w: id %d", ErrEventNotFound, id)
		}

		return fmt.Errorf("%w: id %d", ErrNotDeadLettered, id)
	}

	return nil
}
