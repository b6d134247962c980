package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/himera-trader/pkg/config"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr:        mr.Addr(),
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestRedisLimiter_AllowsWithinLimit(t *testing.T) {
	client, _ := setupTestRedis(t)
	limiter := NewRedisLimiter(client, testLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := limiter.Check(ctx, "test:allows", 5, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, 5-(i+1), result.Remaining)
	}
}

func TestRedisLimiter_BlocksWhenExceeded(t *testing.T) {
	client, _ := setupTestRedis(t)
	limiter := NewRedisLimiter(client, testLogger())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		result, err := limiter.Check(ctx, "test:blocks", 2, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i < 2, result.Allowed, "attempt %d", i)
	}

	// rejected attempts are not stored
	n, err := client.ZCard(ctx, KeyPrefix+"test:blocks").Result()
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestRedisLimiter_SlidingWindow(t *testing.T) {
	client, _ := setupTestRedis(t)
	clock := newClock()
	limiter := NewRedisLimiter(client, testLogger())
	limiter.now = clock.now
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := limiter.Check(ctx, "test:window", 2, time.Second)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}

	result, err := limiter.Check(ctx, "test:window", 2, time.Second)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, time.Second, result.RetryAfter(clock.now()))

	clock.advance(1100 * time.Millisecond)

	result, err = limiter.Check(ctx, "test:window", 2, time.Second)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestAdaptiveLimiter_FallsBackWithHalfBudget(t *testing.T) {
	client, mr := setupTestRedis(t)
	mr.Close()

	limiter := NewAdaptiveLimiter(NewRedisLimiter(client, testLogger()), NewMemoryLimiter(testLogger()), testLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := limiter.Check(ctx, "user:1", 4, time.Minute)
		require.NoError(t, err)
	}

	result, err := limiter.Check(ctx, "user:1", 4, time.Minute)
	assert.ErrorIs(t, err, ErrLimitExceeded)
	assert.False(t, result.Allowed)
}

func TestAdaptiveLimiter_PrimaryRejection(t *testing.T) {
	client, _ := setupTestRedis(t)
	limiter := NewAdaptiveLimiter(NewRedisLimiter(client, testLogger()), NewMemoryLimiter(testLogger()), testLogger())
	ctx := context.Background()

	_, err := limiter.Check(ctx, "user:2", 1, time.Minute)
	require.NoError(t, err)

	_, err = limiter.Check(ctx, "user:2", 1, time.Minute)
	assert.ErrorIs(t, err, ErrLimitExceeded)
}

func TestMemoryLimiter_Cleanup(t *testing.T) {
	clock := newClock()
	limiter := NewMemoryLimiter(testLogger())
	limiter.now = clock.now

	_, err := limiter.Check(context.Background(), "a", 1, time.Minute)
	require.NoError(t, err)
	_, err = limiter.Check(context.Background(), "a", 1, time.Minute)
	assert.ErrorIs(t, err, ErrLimitExceeded)

	assert.Equal(t, 0, limiter.Cleanup(time.Hour))
	clock.advance(2 * time.Hour)
	assert.Equal(t, 1, limiter.Cleanup(time.Hour))
}

func TestMemoryLimiter_RunJanitorStopsOnCancel(t *testing.T) {
	limiter := NewMemoryLimiter(testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		limiter.RunJanitor(ctx, time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestRedisLimiter_KeyExpires(t *testing.T) {
	client, mr := setupTestRedis(t)
	limiter := NewRedisLimiter(client, testLogger())

	_, err := limiter.Check(context.Background(), "user:idle", 5, time.Minute)
	require.NoError(t, err)

	mr.FastForward(3 * time.Minute)
	assert.False(t, mr.Exists(KeyPrefix+"user:idle"))
}

func TestRules(t *testing.T) {
	rules := NewRules(config.RateLimitConfig{
		Enabled:   true,
		PerUser:   config.RateLimitRule{Limit: 30, Window: "1m"},
		Commands:  config.RateLimitCommands{Price: config.RateLimitRule{Limit: 10, Window: "30s"}},
		Whitelist: []int64{42},
	})

	assert.True(t, rules.Enabled())
	assert.True(t, rules.IsWhitelisted(42))
	assert.False(t, rules.IsWhitelisted(7))

	limit, window, err := rules.GetCommandLimit("price")
	require.NoError(t, err)
	assert.Equal(t, 10, limit)
	assert.Equal(t, 30*time.Second, window)

	_, _, err = rules.GetCommandLimit("long")
	assert.ErrorIs(t, err, ErrNoRule)

	_, _, err = rules.GetCommandLimit("start")
	assert.ErrorIs(t, err, ErrNoRule)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
