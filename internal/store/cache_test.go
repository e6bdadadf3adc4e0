package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itstheanurag/fnrunner/internal/model"
)

// countingStore counts route lookups that reach the backing store.
type countingStore struct {
	*Memory
	lookups int
}

func (c *countingStore) GetFunctionByRoute(ctx context.Context, route string) (*model.Definition, error) {
	c.lookups++
	return c.Memory.GetFunctionByRoute(ctx, route)
}

func getTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("FNRUNNER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("FNRUNNER_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping redis test (cannot connect): %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestCachedFunctions_ReadThroughAndInvalidate(t *testing.T) {
	client := getTestRedis(t)
	ctx := context.Background()
	logger := zerolog.Nop()

	backing := &countingStore{Memory: NewMemory()}
	cache := NewCachedFunctions(backing, client, time.Minute, &logger)

	def := newDef(t, "cache-"+uuid.NewString()[:8])
	require.NoError(t, cache.CreateFunction(ctx, def))
	t.Cleanup(func() { client.Del(ctx, routeKey(def.Route)) })

	for i := 0; i < 3; i++ {
		got, err := cache.GetFunctionByRoute(ctx, def.Route)
		require.NoError(t, err)
		assert.Equal(t, def.ID, got.ID)
	}
	assert.Equal(t, 1, backing.lookups)

	def.Code = "print(2)"
	require.NoError(t, cache.UpdateFunction(ctx, def))
	got, err := cache.GetFunctionByRoute(ctx, def.Route)
	require.NoError(t, err)
	assert.Equal(t, "print(2)", got.Code)
	assert.Equal(t, 2, backing.lookups)

	require.NoError(t, cache.DeleteFunction(ctx, def.ID))
	_, err = cache.GetFunctionByRoute(ctx, def.Route)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachedFunctions_FallsThroughWhenRedisIsDown(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { client.Close() })

	backing := NewMemory()
	cache := NewCachedFunctions(backing, client, time.Minute, &logger)

	def := newDef(t, "echo")
	require.NoError(t, cache.CreateFunction(ctx, def))

	got, err := cache.GetFunctionByRoute(ctx, "echo")
	require.NoError(t, err)
	assert.Equal(t, def.ID, got.ID)

	require.NoError(t, cache.DeleteFunction(ctx, def.ID))
}
