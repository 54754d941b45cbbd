package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testClient(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set, skipping integration test")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opt)
	require.NoError(t, client.Ping(context.Background()).Err())
	return client
}

func TestLimiter_AllowWithinCapacity(t *testing.T) {
	client := testClient(t)
	defer client.Close()
	logger := zap.NewNop()

	cfg := Config{
		User:   Bucket{Capacity: 3, RefillPerS: 1},
		IP:     Bucket{Capacity: 100, RefillPerS: 100},
		Global: Bucket{Capacity: 1000, RefillPerS: 1000},
	}
	l := New(client, logger, cfg)
	ctx := context.Background()
	_ = l.Reset(ctx, ScopeUser, "u1")

	for i := 0; i < 3; i++ {
		d := l.Allow(ctx, "u1", "1.2.3.4")
		assert.True(t, d.Allowed, "request %d should be allowed", i)
	}

	d := l.Allow(ctx, "u1", "1.2.3.4")
	assert.False(t, d.Allowed)
	assert.Equal(t, ScopeUser, d.Scope)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
}

func TestLimiter_RefillsOverTime(t *testing.T) {
	client := testClient(t)
	defer client.Close()
	logger := zap.NewNop()

	cfg := Config{
		User:   Bucket{Capacity: 1, RefillPerS: 5},
		IP:     Bucket{Capacity: 100, RefillPerS: 100},
		Global: Bucket{Capacity: 1000, RefillPerS: 1000},
	}
	l := New(client, logger, cfg)
	ctx := context.Background()
	_ = l.Reset(ctx, ScopeUser, "u2")

	assert.True(t, l.Allow(ctx, "u2", "1.2.3.4").Allowed)
	assert.False(t, l.Allow(ctx, "u2", "1.2.3.4").Allowed)

	time.Sleep(300 * time.Millisecond)
	assert.True(t, l.Allow(ctx, "u2", "1.2.3.4").Allowed)
}

func TestLimiter_FailsOpenOnBrokenConnection(t *testing.T) {
	logger := zap.NewNop()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
	defer client.Close()

	l := New(client, logger, DefaultConfig())
	d := l.Allow(context.Background(), "u3", "5.6.7.8")
	assert.True(t, d.Allowed, "limiter must fail open when the store is unreachable")
}
