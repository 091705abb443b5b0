//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(ctx context.Context, t *testing.T) string {
	t.Helper()
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "start redis container")

	endpoint, err := ctr.Endpoint(ctx, "")
	require.NoError(t, err)
	return endpoint
}

func TestRedisStore(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	s := NewRedisStore(&redis.Options{Addr: startRedis(ctx, t)}, "test:")
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Ping(ctx))

	_, found, err := s.Get(ctx, "/api/usgs-proxy?apiUrl=x")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Set(ctx, "/api/usgs-proxy?apiUrl=x", []byte(`{"status":200}`), time.Minute))
	got, found, err := s.Get(ctx, "/api/usgs-proxy?apiUrl=x")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"status":200}`, string(got))

	require.NoError(t, s.Set(ctx, "short", []byte("v"), time.Second))
	require.Eventually(t, func() bool {
		_, found, err := s.Get(ctx, "short")
		return err == nil && !found
	}, 5*time.Second, 100*time.Millisecond, "redis expires entries by ttl")

	require.NoError(t, s.Delete(ctx, "/api/usgs-proxy?apiUrl=x"))
	_, found, err = s.Get(ctx, "/api/usgs-proxy?apiUrl=x")
	require.NoError(t, err)
	assert.False(t, found)
}
