package state

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	defer s.Close()

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveLastFired(ctx, "r1", at))
	require.NoError(t, s.SaveLastFired(ctx, "r2", at.Add(time.Minute)))

	loaded, err := s.LoadLastFired(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded, 2)
	assert.Equal(t, at, loaded["r1"])

	// Returned map is a copy
	delete(loaded, "r1")
	again, err := s.LoadLastFired(ctx)
	require.NoError(t, err)
	assert.Len(t, again, 2)

	require.NoError(t, s.Forget(ctx, "r1"))
	require.NoError(t, s.Forget(ctx, "missing"))
	again, err = s.LoadLastFired(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]time.Time{"r2": at.Add(time.Minute)}, again)
}

// Requires a local Redis; set REDIS_TEST=1 to run.
func TestRedisStore_RoundTrip(t *testing.T) {
	if os.Getenv("REDIS_TEST") == "" {
		t.Skip("skipping redis test: REDIS_TEST not set")
	}

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	ctx := context.Background()
	key := "auditwatch:test:" + time.Now().Format("150405.000000")
	s, err := NewRedisStore(ctx, RedisConfig{Addr: addr, Key: key})
	require.NoError(t, err)
	defer s.Close()
	defer s.rdb.Del(ctx, key)

	at := time.Date(2025, 3, 1, 12, 0, 0, 123456789, time.UTC)
	require.NoError(t, s.SaveLastFired(ctx, "r1", at))
	require.NoError(t, s.rdb.HSet(ctx, key, "broken", "yesterday").Err())

	loaded, err := s.LoadLastFired(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]time.Time{"r1": at}, loaded)

	require.NoError(t, s.Forget(ctx, "r1"))
	loaded, err = s.LoadLastFired(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestNewRedisStoreFromClient_DefaultKey(t *testing.T) {
	s := NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: "localhost:0"}), "")
	defer s.Close()
	assert.Equal(t, DefaultKey, s.key)
}
