//go:build integration

package store

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func redisAddr() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

func requireRedis(t *testing.T) {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: redisAddr()})
	defer client.Close()
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not available at %s: %v", redisAddr(), err)
	}
}

func TestACLCache_SetGetRoundTrip(t *testing.T) {
	requireRedis(t)

	cache, err := NewACLCache(redisAddr(), "", 0)
	require.NoError(t, err)
	defer cache.Close()

	ctx := context.Background()
	cache.Set(ctx, 1, "school/demo", "publish", true)

	allowed, found := cache.Get(ctx, 1, "school/demo", "publish")
	assert.True(t, found)
	assert.True(t, allowed)
}

func TestACLCache_MissReturnsNotFound(t *testing.T) {
	requireRedis(t)

	cache, err := NewACLCache(redisAddr(), "", 0)
	require.NoError(t, err)
	defer cache.Close()

	_, found := cache.Get(context.Background(), 999, "no/such/topic", "subscribe")
	assert.False(t, found)
}
