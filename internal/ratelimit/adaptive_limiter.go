package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rateLimitChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ratelimit_checks_total",
		Help: "Total number of rate limit checks by backend and result.",
	}, []string{"backend", "result"})

	rateLimitRedisErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ratelimit_redis_errors_total",
		Help: "Total number of Redis errors encountered by the limiter.",
	})
)

// AdaptiveLimiter delegates to a primary (Redis) limiter and falls back to
// a stricter in-memory limiter when the primary fails. Both backends report
// a rejection as ErrLimitExceeded.
type AdaptiveLimiter struct {
	primary  Limiter
	fallback Limiter
	log      *slog.Logger
}

var _ Limiter = (*AdaptiveLimiter)(nil)

// NewAdaptiveLimiter creates a limiter that adapts between Redis and in-memory backends.
// primary may be nil, in which case every check goes to the fallback.
func NewAdaptiveLimiter(primary, fallback Limiter, log *slog.Logger) *AdaptiveLimiter {
	if log == nil {
		log = slog.Default()
	}

	return &AdaptiveLimiter{
		primary:  primary,
		fallback: fallback,
		log:      log,
	}
}

// Check evaluates the limit using the primary backend, falling back to memory on errors.
func (a *AdaptiveLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	if a.primary != nil {
		result, err := a.primary.Check(ctx, key, limit, window)
		if err == nil || errors.Is(err, ErrLimitExceeded) {
			allowed := err == nil && result != nil && result.Allowed
			rateLimitChecksTotal.WithLabelValues("redis", resultLabel(allowed)).Inc()
			if !allowed {
				return result, ErrLimitExceeded
			}
			return result, nil
		}

		rateLimitRedisErrorsTotal.Inc()
		a.log.Warn("redis limiter failed, falling back to in-memory", slog.String("key", key), slog.Any("error", err))
	}

	// Each replica only sees its own traffic while Redis is down, so halve the budget.
	fallbackLimit := limit / 2
	if fallbackLimit <= 0 {
		fallbackLimit = 1
	}

	result, err := a.fallback.Check(ctx, key, fallbackLimit, window)
	if err != nil && !errors.Is(err, ErrLimitExceeded) {
		return result, err
	}

	allowed := err == nil && result != nil && result.Allowed
	rateLimitChecksTotal.WithLabelValues("memory", resultLabel(allowed)).Inc()
	if !allowed {
		return result, ErrLimitExceeded
	}

	return result, nil
}

func resultLabel(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "rejected"
}
