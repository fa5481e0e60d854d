package postgres

import "errors"

var (
	// ErrDBRequired is returned when a nil *sql.DB is provided.
	ErrDBRequired = errors.New("outbox postgres: db is required")
	// ErrExecutorRequired is returned when Append is called with a nil executor.
	ErrExecutorRequired = errors.New("outbox postgres: executor is required")
	// ErrTableNameRequired is returned when the table name is empty.
	ErrTableNameRequired = errors.New("outbox postgres: table name is required")
	// ErrInvalidTableName is returned when the table name has disallowed characters.
	ErrInvalidTableName = errors.New("outbox postgres: invalid table name")
	// ErrEventNotFound is returned when an operation targets a missing event id.
	ErrEventNotFound = errors.New("outbox postgres: event not found")
	// ErrNotDeadLettered is returned when requeueing an event that is not in DLQ.
	ErrNotDeadLettered = errors.New("outbox postgres: event is not dead-lettered")
	// ErrCleanupBeforeRequired is returned when the cleanup cutoff is missing.
	ErrCleanupBeforeRequired = errors.New("outbox postgres: cleanup before time is required")
	// ErrCleanupLimitInvalid is returned when the cleanup limit is negative.
	ErrCleanupLimitInvalid = errors.New("outbox postgres: cleanup limit must be non-negative")
	// ErrCleanupRetentionInvalid is returned when retention is not positive.
	ErrCleanupRetentionInvalid = errors.New("outbox postgres: cleanup retention must be positive")
)
