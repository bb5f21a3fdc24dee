package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisConfigOptions(t *testing.T) {
	cfg := defaultRedisConfig()
	WithRedisAddr("cache.local", 6380)(&cfg)
	WithRedisAuth("secret", 2)(&cfg)

	opts := cfg.options()
	assert.Equal(t, "cache.local:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, "chartsync", cfg.Prefix)
}

func TestRedisUnlockKeepsForeignLock(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	prefix := "chartsync:test:" + t.Name()
	a := NewRedisCacheFromClient(client, prefix)
	b := NewRedisCacheFromClient(client, prefix)
	b.owner = a.owner + "-other"
	key := LockKey("sync", "bitcoin:usd:week1")
	t.Cleanup(func() { client.Del(ctx, a.wrapKey(key)) })

	ok, err := a.TryLock(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, b.Unlock(ctx, key))
	held, err := a.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, held)

	require.NoError(t, a.Unlock(ctx, key))
	held, err = a.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, held)
}
