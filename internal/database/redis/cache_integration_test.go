//go:build integration

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ds124wfegd/linktracker/internal/entity"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestLinkCache(t *testing.T) {
	ctx := context.Background()
	client := startRedis(t)
	cache := NewLinkCache(client, time.Minute)

	_, err := cache.GetLink(ctx, "doctor1")
	assert.ErrorIs(t, err, entity.ErrCacheMiss)

	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	link := &entity.Link{ID: 7, ShortCode: "doctor1", TargetURL: "https://example.com", CreatedAt: created, UpdatedAt: created}
	require.NoError(t, cache.SetLink(ctx, link))

	got, err := cache.GetLink(ctx, "doctor1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.ID)
	assert.True(t, created.Equal(got.CreatedAt))

	ttl, err := client.TTL(ctx, "link:doctor1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, cache.DeleteLink(ctx, "doctor1"))
	_, err = cache.GetLink(ctx, "doctor1")
	assert.ErrorIs(t, err, entity.ErrCacheMiss)
}
