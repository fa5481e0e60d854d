package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jobwire/outbox"
)

const (
	defaultCleanupLimit      = 10000
	defaultCleanupEvery      = time.Hour
	defaultCleanupLockPrefix = "outbox:cleanup:"
)

// CleanupOptions defines how to delete relayed and dead-lettered events.
// Retention is external housekeeping: the relay itself never deletes rows.
type CleanupOptions struct {
	// Before removes rows older than this timestamp (required).
	Before time.Time
	// Limit caps the number of rows deleted per call (0 uses the default).
	Limit int
	// IncludeDead removes DLQ rows as well, using occurred_at for the cutoff.
	IncludeDead bool
}

// CleanupResult reports how many rows were removed.
type CleanupResult struct {
	Sent int64
	Dead int64
}

// Cleanup removes SENT rows (and optionally DLQ rows) older than opts.Before.
func (s *Store) Cleanup(ctx context.Context, opts CleanupOptions) (CleanupResult, error) {
	if opts.Before.IsZero() {
		return CleanupResult{}, ErrCleanupBeforeRequired
	}
	limit := opts.Limit
	if limit == 0 {
		limit = defaultCleanupLimit
	}
	if limit < 0 {
		return CleanupResult{}, ErrCleanupLimitInvalid
	}

	sent, err := s.cleanupSent(ctx, opts.Before, limit)
	if err != nil {
		return CleanupResult{}, err
	}

	var dead int64
	if remaining := limit - int(sent); opts.IncludeDead && remaining > 0 {
		dead, err = s.cleanupDead(ctx, opts.Before, remaining)
		if err != nil {
			return CleanupResult{}, err
		}
	}

	return CleanupResult{Sent: sent, Dead: dead}, nil
}

func (s *Store) cleanupSent(ctx context.Context, before time.Time, limit int) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.queries.cleanupSent, outbox.StatusSent, before, limit)
	if err != nil {
		return 0, fmt.Errorf("outbox postgres: cleanup sent failed: %w", err)
	}

	return res.RowsAffected()
}

func (s *Store) cleanupDead(ctx context.Context, before time.Time, limit int) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.queries.cleanupDead, outbox.StatusDLQ, before, limit)
	if err != nil {
		return 0, fmt.Errorf("outbox postgres: cleanup dead failed: %w", err)
	}

	return res.RowsAffected()
}

// CleanupMaintainerConfig controls periodic retention cleanup.
type CleanupMaintainerConfig struct {
	// Table is the outbox table name.
	Table string
	// Retention removes rows older than now-retention (required).
	Retention time.Duration
	// CheckEvery is the interval between cleanup runs.
	CheckEvery time.Duration
	// Limit caps the number of rows deleted per run (0 uses the default).
	Limit int
	// IncludeDead removes DLQ rows in addition to SENT rows.
	IncludeDead bool
	// LockName is the advisory lock name. Defaults to outbox:cleanup:<table>.
	LockName string
	// Clock overrides the time source (useful for tests).
	Clock outbox.Clock
	// Logger receives warnings about cleanup failures.
	Logger outbox.Logger
}

// CleanupMaintainer periodically deletes old SENT/DLQ rows, serialized across
// replicas with a Postgres advisory lock.
type CleanupMaintainer struct {
	store *Store
	cfg   CleanupMaintainerConfig
}

// NewCleanupMaintainer creates a cleanup maintainer with defaults applied.
func NewCleanupMaintainer(db *sql.DB, cfg CleanupMaintainerConfig) (*CleanupMaintainer, error) {
	if db == nil {
		return nil, ErrDBRequired
	}
	if cfg.Retention <= 0 {
		return nil, ErrCleanupRetentionInvalid
	}
	if cfg.Clock == nil {
		cfg.Clock = outbox.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = outbox.NopLogger{}
	}
	if cfg.CheckEvery <= 0 {
		cfg.CheckEvery = defaultCleanupEvery
	}
	if cfg.Limit == 0 {
		cfg.Limit = defaultCleanupLimit
	}
	if cfg.Limit < 0 {
		return nil, ErrCleanupLimitInvalid
	}

	store, err := NewStore(db, WithTable(cfg.Table), WithClock(cfg.Clock))
	if err != nil {
		return nil, err
	}
	cfg.Table = store.table
	if cfg.LockName == "" {
		cfg.LockName = defaultCleanupLockPrefix + cfg.Table
	}

	return &CleanupMaintainer{store: store, cfg: cfg}, nil
}

// Run periodically deletes old rows until the context is canceled.
func (m *CleanupMaintainer) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.CheckEvery)
	defer ticker.Stop()

	if _, err := m.Ensure(ctx); err != nil {
		m.cfg.Logger.Warn("outbox cleanup failed", "err", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.Ensure(ctx); err != nil {
				m.cfg.Logger.Warn("outbox cleanup failed", "err", err)
			}
		}
	}
}

// Ensure executes a single cleanup pass. If another replica holds the
// advisory lock the pass is skipped without error.
func (m *CleanupMaintainer) Ensure(ctx context.Context) (CleanupResult, error) {
	conn, err := m.store.db.Conn(ctx)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("outbox postgres: cleanup conn failed: %w", err)
	}
	defer conn.Close()

	var locked bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock(hashtext($1))", m.cfg.LockName).Scan(&locked); err != nil {
		return CleanupResult{}, fmt.Errorf("outbox postgres: cleanup lock failed: %w", err)
	}
	if !locked {
		m.cfg.Logger.Debug("outbox cleanup lock held elsewhere", "lock", m.cfg.LockName)

		return CleanupResult{}, nil
	}
	defer func() {
		_, unlockErr := conn.ExecContext(ctx, "SELECT pg_advisory_unlock(hashtext($1))", m.cfg.LockName)
		if unlockErr != nil {
			m.cfg.Logger.Warn("outbox cleanup unlock failed", "err", unlockErr)
		}
	}()

	before := m.cfg.Clock.Now().Add(-m.cfg.Retention)
	result, err := m.store.Cleanup(ctx, CleanupOptions{
		Before:      before,
		Limit:       m.cfg.Limit,
		IncludeDead: m.cfg.IncludeDead,
	})
	if err != nil {
		return CleanupResult{}, err
	}
	if result.Sent > 0 || result.Dead > 0 {
		m.cfg.Logger.Info("outbox cleanup removed rows", "sent", result.Sent, "dead", result.Dead)
	}

	return result, nil
}
