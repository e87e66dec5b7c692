package multiproc

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) redis.UniversalClient {
	t.Helper()
	addr := os.Getenv("REQMETRICS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("REQMETRICS_TEST_REDIS_ADDR not set, skipping redis integration test")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewRedisStore_RequiresClient(t *testing.T) {
	_, err := NewRedisStore(nil, nil, nil)
	assert.Error(t, err)
}

func TestRedisStore_Integration(t *testing.T) {
	ctx := context.Background()
	client := newTestRedis(t)

	ns := "reqmetrics-test-" + uuid.NewString()[:8]
	store, err := NewRedisStore(client, &RedisConfig{Namespace: ns}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Del(ctx, ns+":multiproc") })

	b1, err := New(&Config{FlushInterval: -1}, WithStore(store), WithPID(1))
	require.NoError(t, err)
	b2, err := New(&Config{FlushInterval: -1}, WithStore(store), WithPID(2))
	require.NoError(t, err)

	c1 := prometheus.NewCounter(prometheus.CounterOpts{Name: "redis_total", Help: "r"})
	c2 := prometheus.NewCounter(prometheus.CounterOpts{Name: "redis_total", Help: "r"})
	b1.Registerer().MustRegister(c1)
	b2.Registerer().MustRegister(c2)
	c1.Add(3)
	c2.Add(4)
	require.NoError(t, b2.Flush(ctx))

	total, ok := value(t, b1.Gatherer(), "redis_total")
	require.True(t, ok)
	assert.Equal(t, 7.0, total)

	require.NoError(t, b1.Close(ctx))
	require.NoError(t, b2.Close(ctx))

	entries, err := store.List(ctx)
	require.NoError(t, err)
	for _, e := range entries {
		assert.Equal(t, KindCounter, e.Key.Kind, "关闭后只剩计数器快照")
	}
}
