//go:build integration

package redisstream_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/jobwire/outbox"
	"github.com/jobwire/outbox/redisstream"
)

func TestPublisherPublishIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	container, client := startRedisContainer(t, ctx)
	t.Cleanup(func() {
		_ = client.Close()
		_ = container.Terminate(ctx)
	})

	pub, err := redisstream.NewPublisher(client, redisstream.WithStream("job-events-test"))
	require.NoError(t, err)

	event := outbox.Event{
		ID:            7,
		AggregateType: "JOB",
		AggregateID:   "456",
		EventType:     "CREATED",
		Payload:       json.RawMessage(`{"jobId":456}`),
		Attempts:      1,
		OccurredAt:    time.Now().UTC(),
	}
	require.NoError(t, pub.Publish(ctx, event))

	messages, err := client.XRange(ctx, "job-events-test", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, "7", messages[0].Values["id"])
	require.Equal(t, "JOB", messages[0].Values["aggregateType"])
	require.Equal(t, "456", messages[0].Values["aggregateId"])
	require.Equal(t, `{"jobId":456}`, messages[0].Values["payload"])
	require.Equal(t, "1", messages[0].Values["attempts"])
}

func TestEnsureGroupIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	container, client := startRedisContainer(t, ctx)
	t.Cleanup(func() {
		_ = client.Close()
		_ = container.Terminate(ctx)
	})

	require.NoError(t, redisstream.EnsureGroup(ctx, client, "job-events-test", "billing"))
	require.NoError(t, redisstream.EnsureGroup(ctx, client, "job-events-test", "billing"))

	groups, err := client.XInfoGroups(ctx, "job-events-test").Result()
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Equal(t, "billing", groups[0].Name)
}

func startRedisContainer(t *testing.T, ctx context.Context) (testcontainers.Container, *redis.Client) {
	t.Helper()
	port := nat.Port("6379/tcp")
	req := testcontainers.ContainerRequest{
		Image:        "redis:7.4",
		ExposedPorts: []string{string(port)},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("start redis container: %v", err)
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

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, mappedPort.Port())})
	return container, client
}
