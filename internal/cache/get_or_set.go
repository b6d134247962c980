package cache

import (
	"context"
	"time"
)

// GetOrSet returns the cached value for key or computes it. A computed value is
// returned immediately and written to the store in the background.
func GetOrSet[T any](ctx context.Context, s *Store, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	var cached T
	if s.Get(ctx, key, &cached) {
		return cached, nil
	}

	value, err := compute(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	s.SetAsync(ctx, key, value, ttl)
	return value, nil
}
