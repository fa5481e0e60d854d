//go:build integration

package postgres_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/jobwire/outbox"
	"github.com/jobwire/outbox/postgres"
)

func TestStoreAppendClaimMarkSentIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	container, db := startPostgresContainer(t, ctx)
	t.Cleanup(func() {
		_ = db.Close()
		_ = container.Terminate(ctx)
	})

	setupSchema(t, ctx, db)

	store, err := postgres.NewStore(db)
	require.NoError(t, err)

	entries := []outbox.Entry{
		{AggregateType: "JOB", AggregateID: "1", EventType: "CREATED", Payload: json.RawMessage(`{"id":1}`)},
		{AggregateType: "JOB", AggregateID: "2", EventType: "CREATED", Payload: json.RawMessage(`{"id":2}`)},
		{AggregateType: "JOB", AggregateID: "3", EventType: "CREATED", Payload: json.RawMessage(`{"id":3}`)},
	}
	insertEntries(t, ctx, db, store, entries)

	batch1, err := store.Claim(ctx, outbox.ClaimOptions{BatchSize: 2})
	require.NoError(t, err)
	ids1 := collectIDs(batch1.Events())
	require.Len(t, ids1, 2)
	require.NoError(t, batch1.MarkSent(ctx, ids1))
	require.NoError(t, batch1.Commit())

	batch2, err := store.Claim(ctx, outbox.ClaimOptions{BatchSize: 10})
	require.NoError(t, err)
	ids2 := collectIDs(batch2.Events())
	require.Len(t, ids2, 1)
	require.NoError(t, batch2.MarkSent(ctx, ids2))
	require.NoError(t, batch2.Commit())

	_, err = store.Claim(ctx, outbox.ClaimOptions{BatchSize: 1})
	require.ErrorIs(t, err, outbox.ErrNoEvents)

	count, err := store.CountByStatus(ctx, outbox.StatusSent)
	require.NoError(t, err)
	require.Equal(t, 3, count)
}

func TestStoreAppendRollbackLeavesNoRowIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	container, db := startPostgresContainer(t, ctx)
	t.Cleanup(func() {
		_ = db.Close()
		_ = container.Terminate(ctx)
	})

	setupSchema(t, ctx, db)

	store, err := postgres.NewStore(db)
	require.NoError(t, err)

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	id, err := store.Append(ctx, tx, outbox.Entry{
		AggregateType: "JOB", AggregateID: "1", EventType: "CREATED", Payload: json.RawMessage(`{"id":1}`),
	})
	require.NoError(t, err)
	require.NotZero(t, id)
	require.NoError(t, tx.Rollback())

	count, err := store.CountByStatus(ctx, outbox.StatusPending)
	require.NoError(t, err)
	require.Zero(t, count)

	var total int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM outbox_events").Scan(&total))
	require.Zero(t, total)

	_, err = store.Claim(ctx, outbox.ClaimOptions{BatchSize: 10})
	require.ErrorIs(t, err, outbox.ErrNoEvents)
}

func TestStoreClaimOrderIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	container, db := startPostgresContainer(t, ctx)
	t.Cleanup(func() {
		_ = db.Close()
		_ = container.Terminate(ctx)
	})

	setupSchema(t, ctx, db)

	store, err := postgres.NewStore(db)
	require.NoError(t, err)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		_, err := db.ExecContext(ctx,
			"INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, payload, occurred_at, trace_id) VALUES ($1, $2, $3, $4, $5, gen_random_uuid())",
			"JOB", fmt.Sprintf("%d", i), "CREATED", `{}`, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}

	batch, err := store.Claim(ctx, outbox.ClaimOptions{BatchSize: 3})
	require.NoError(t, err)
	events := batch.Events()
	require.Len(t, events, 3)
	for i := 1; i < len(events); i++ {
		require.False(t, events[i].OccurredAt.Before(events[i-1].OccurredAt))
	}
	require.NoError(t, batch.Rollback())
}

func TestStoreSkipLockedIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	container, db := startPostgresContainer(t, ctx)
	t.Cleanup(func() {
		_ = db.Close()
		_ = container.Terminate(ctx)
	})

	setupSchema(t, ctx, db)

	store, err := postgres.NewStore(db)
	require.NoError(t, err)

	entries := []outbox.Entry{
		{AggregateType: "JOB", AggregateID: "1", EventType: "CREATED", Payload: json.RawMessage(`{"id":1}`)},
		{AggregateType: "JOB", AggregateID: "2", EventType: "CREATED", Payload: json.RawMessage(`{"id":2}`)},
	}
	insertEntries(t, ctx, db, store, entries)

	batch1, err := store.Claim(ctx, outbox.ClaimOptions{BatchSize: 1})
	require.NoError(t, err)
	ids1 := collectIDs(batch1.Events())
	require.Len(t, ids1, 1)

	batch2, err := store.Claim(ctx, outbox.ClaimOptions{BatchSize: 1})
	require.NoError(t, err)
	ids2 := collectIDs(batch2.Events())
	require.Len(t, ids2, 1)

	require.NotEqual(t, ids1[0], ids2[0])

	require.NoError(t, batch1.Rollback())
	require.NoError(t, batch2.Rollback())
}

func TestStoreRetryCeilingIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	container, db := startPostgresContainer(t, ctx)
	t.Cleanup(func() {
		_ = db.Close()
		_ = container.Terminate(ctx)
	})

	setupSchema(t, ctx, db)

	store, err := postgres.NewStore(db, postgres.WithMaxAttempts(2))
	require.NoError(t, err)

	entries := []outbox.Entry{{AggregateType: "JOB", AggregateID: "1", EventType: "CREATED", Payload: json.RawMessage(`{"id":1}`)}}
	insertEntries(t, ctx, db, store, entries)

	batch1, err := store.Claim(ctx, outbox.ClaimOptions{BatchSize: 1})
	require.NoError(t, err)
	ids1 := collectIDs(batch1.Events())
	dead, err := batch1.MarkFailed(ctx, ids1)
	require.NoError(t, err)
	require.Zero(t, dead)
	require.NoError(t, batch1.Commit())

	status, attempts := fetchStatus(t, ctx, db, ids1[0])
	require.Equal(t, outbox.StatusFailed, status)
	require.Equal(t, 1, attempts)

	batch2, err := store.Claim(ctx, outbox.ClaimOptions{BatchSize: 1})
	require.NoError(t, err)
	ids2 := collectIDs(batch2.Events())
	require.Equal(t, ids1, ids2)
	dead, err = batch2.MarkFailed(ctx, ids2)
	require.NoError(t, err)
	require.Equal(t, 1, dead)
	require.NoError(t, batch2.Commit())

	status, attempts = fetchStatus(t, ctx, db, ids2[0])
	require.Equal(t, outbox.StatusDLQ, status)
	require.Equal(t, 2, attempts)

	_, err = store.Claim(ctx, outbox.ClaimOptions{BatchSize: 1})
	require.ErrorIs(t, err, outbox.ErrNoEvents)
}

func TestStoreRollbackMakesVisibleIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	container, db := startPostgresContainer(t, ctx)
	t.Cleanup(func() {
		_ = db.Close()
		_ = container.Terminate(ctx)
	})

	setupSchema(t, ctx, db)

	store, err := postgres.NewStore(db)
	require.NoError(t, err)

	entries := []outbox.Entry{{AggregateType: "JOB", AggregateID: "1", EventType: "CREATED", Payload: json.RawMessage(`{"id":1}`)}}
	insertEntries(t, ctx, db, store, entries)

	batch, err := store.Claim(ctx, outbox.ClaimOptions{BatchSize: 1})
	require.NoError(t, err)
	id := collectIDs(batch.Events())[0]
	require.NoError(t, batch.Rollback())

	batch2, err := store.Claim(ctx, outbox.ClaimOptions{BatchSize: 1})
	require.NoError(t, err)
	id2 := collectIDs(batch2.Events())[0]
	require.Equal(t, id, id2)
	require.NoError(t, batch2.Rollback())
}

func TestStoreRequeueIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	container, db := startPostgresContainer(t, ctx)
	t.Cleanup(func() {
		_ = db.Close()
		_ = container.Terminate(ctx)
	})

	setupSchema(t, ctx, db)

	store, err := postgres.NewStore(db, postgres.WithMaxAttempts(1))
	require.NoError(t, err)

	entries := []outbox.Entry{{AggregateType: "JOB", AggregateID: "1", EventType: "CREATED", Payload: json.RawMessage(`{"id":1}`)}}
	insertEntries(t, ctx, db, store, entries)

	batch, err := store.Claim(ctx, outbox.ClaimOptions{BatchSize: 1})
	require.NoError(t, err)
	id := collectIDs(batch.Events())[0]
	dead, err := batch.MarkFailed(ctx, []int64{id})
	require.NoError(t, err)
	require.Equal(t, 1, dead)
	require.NoError(t, batch.Commit())

	require.ErrorIs(t, store.Requeue(ctx, id+1000, false), postgres.ErrEventNotFound)

	require.NoError(t, store.Requeue(ctx, id, true))
	status, attempts := fetchStatus(t, ctx, db, id)
	require.Equal(t, outbox.StatusPending, status)
	require.Zero(t, attempts)

	require.ErrorIs(t, store.Requeue(ctx, id, false), postgres.ErrNotDeadLettered)

	batch2, err := store.Claim(ctx, outbox.ClaimOptions{BatchSize: 1})
	require.NoError(t, err)
	require.Equal(t, id, collectIDs(batch2.Events())[0])
	require.NoError(t, batch2.Rollback())
}

func TestStoreEventsByStatusIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	container, db := startPostgresContainer(t, ctx)
	t.Cleanup(func() {
		_ = db.Close()
		_ = container.Terminate(ctx)
	})

	setupSchema(t, ctx, db)

	store, err := postgres.NewStore(db)
	require.NoError(t, err)

	entries := []outbox.Entry{
		{AggregateType: "JOB", AggregateID: "1", EventType: "CREATED", Payload: json.RawMessage(`{"id":1}`)},
		{AggregateType: "JOB", AggregateID: "2", EventType: "CREATED", Payload: json.RawMessage(`{"id":2}`)},
	}
	insertEntries(t, ctx, db, store, entries)

	pending, err := store.EventsByStatus(ctx, outbox.StatusPending, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	for _, event := range pending {
		require.Equal(t, outbox.StatusPending, event.Status)
		require.NotZero(t, event.TraceID)
	}

	count, err := store.CountByStatus(ctx, outbox.StatusPending)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestStoreCleanupIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	container, db := startPostgresContainer(t, ctx)
	t.Cleanup(func() {
		_ = db.Close()
		_ = container.Terminate(ctx)
	})

	setupSchema(t, ctx, db)

	store, err := postgres.NewStore(db)
	require.NoError(t, err)

	entries := []outbox.Entry{
		{AggregateType: "JOB", AggregateID: "1", EventType: "CREATED", Payload: json.RawMessage(`{"id":1}`)},
		{AggregateType: "JOB", AggregateID: "2", EventType: "CREATED", Payload: json.RawMessage(`{"id":2}`)},
	}
	insertEntries(t, ctx, db, store, entries)

	batch, err := store.Claim(ctx, outbox.ClaimOptions{BatchSize: 2})
	require.NoError(t, err)
	ids := collectIDs(batch.Events())
	require.NoError(t, batch.MarkSent(ctx, ids[:1]))
	dead, err := batch.MarkFailed(ctx, ids[1:])
	require.NoError(t, err)
	require.Zero(t, dead)
	require.NoError(t, batch.Commit())

	result, err := store.Cleanup(ctx, postgres.CleanupOptions{Before: time.Now().UTC().Add(time.Hour)})
	require.NoError(t, err)
	require.Equal(t, int64(1), result.Sent)
	require.Zero(t, result.Dead)

	count, err := store.CountByStatus(ctx, outbox.StatusFailed)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func startPostgresContainer(t *testing.T, ctx context.Context) (testcontainers.Container, *sql.DB) {
	t.Helper()
	port := nat.Port("5432/tcp")
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16.4",
		ExposedPorts: []string{string(port)},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "secret",
			"POSTGRES_DB":       "outbox",
		},
		WaitingFor: wait.ForSQL(port, "pgx", func(host string, port nat.Port) string {
			return fmt.Sprintf("postgres://postgres:secret@%s:%s/outbox?sslmode=disable", host, port.Port())
		}).WithStartupTimeout(2 * time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("start postgres container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("resolve host: %v", err)
	}
	mappedPort, err := container.MappedPort(ctx, port)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("resolve port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://postgres:secret@%s:%s/outbox?sslmode=disable", host, mappedPort.Port())
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("open db: %v", err)
	}
	return container, db
}

func setupSchema(t *testing.T, ctx context.Context, db *sql.DB) {
	t.Helper()
	schema, err := postgres.Schema("outbox_events")
	require.NoError(t, err)
	for _, stmt := range strings.Split(schema, ";\n") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		_, err = db.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}
}

func insertEntries(t *testing.T, ctx context.Context, db *sql.DB, store *postgres.Store, entries []outbox.Entry) {
	t.Helper()
	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	for _, entry := range entries {
		_, err := store.Append(ctx, tx, entry)
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit())
}

func collectIDs(events []outbox.Event) []int64 {
	ids := make([]int64, 0, len(events))
	for _, event := range events {
		ids = append(ids, event.ID)
	}
	return ids
}

func fetchStatus(t *testing.T, ctx context.Context, db *sql.DB, id int64) (outbox.Status, int) {
	t.Helper()
	var status outbox.Status
	var attempts int
	err := db.QueryRowContext(ctx, "SELECT status, attempts FROM outbox_events WHERE id = $1", id).Scan(&status, &attempts)
	require.NoError(t, err)
	return status, attempts
}
