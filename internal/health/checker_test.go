package health

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestChecker_AllHealthy(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	c := NewChecker(discardLogger(), 0)
	c.AddCheck("redis", NewRedisChecker(rdb))
	c.AddOptional("cache", CheckFunc(func(context.Context) error { return nil }))

	report := c.Check(context.Background())
	assert.Equal(t, StatusOK, report.Status)
	assert.True(t, report.Healthy())
	assert.Equal(t, StatusOK, report.Components["redis"].Status)
	assert.Equal(t, []string{"cache", "redis"}, c.Names())
}

func TestChecker_OptionalFailureDegrades(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	c := NewChecker(discardLogger(), 0)
	c.AddOptional("redis", NewRedisChecker(rdb))
	c.AddCheck("telegram", CheckFunc(func(context.Context) error { return nil }))

	report := c.Check(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.True(t, report.Healthy())
	assert.NotEmpty(t, report.Components["redis"].Error)
}

func TestChecker_CriticalFailureIsDown(t *testing.T) {
	c := NewChecker(discardLogger(), 0)
	c.AddOptional("db", CheckFunc(func(context.Context) error { return errors.New("refused") }))
	c.AddCheck("telegram", NewTelegramChecker(nil))

	report := c.Check(context.Background())
	assert.Equal(t, StatusDown, report.Status)
	assert.False(t, report.Healthy())
	require.Contains(t, report.Components, "telegram")
	assert.True(t, report.Components["telegram"].Critical)
}

func TestChecker_TimeoutApplied(t *testing.T) {
	c := NewChecker(discardLogger(), 20*time.Millisecond)
	c.AddCheck("slow", CheckFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	start := time.Now()
	report := c.Check(context.Background())
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, context.DeadlineExceeded.Error(), report.Components["slow"].Error)
}

func TestChecker_IgnoresEmptyRegistrations(t *testing.T) {
	c := NewChecker(nil, 0)
	c.AddCheck("", CheckFunc(func(context.Context) error { return nil }))
	c.AddCheck("nil", nil)

	assert.Empty(t, c.Names())
	assert.Equal(t, StatusOK, c.Check(context.Background()).Status)
}
