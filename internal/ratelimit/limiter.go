// Package ratelimit implements sliding-window request limits backed by Redis with an in-memory fallback.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// KeyPrefix namespaces limiter keys in Redis.
const KeyPrefix = "ratelimit:"

// Result captures the outcome of a rate-limit evaluation.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns how long the caller should wait before the next attempt, rounded up to a second.
func (r *Result) RetryAfter(now time.Time) time.Duration {
	if r == nil || r.Allowed || !r.ResetAt.After(now) {
		return 0
	}
	return (r.ResetAt.Sub(now) + time.Second - 1).Truncate(time.Second)
}

// Limiter describes a rate-limiting strategy interface.
type Limiter interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

// ErrLimitExceeded indicates the rate limit has been reached for the key.
var ErrLimitExceeded = errors.New("rate limit exceeded")
