package ratelimit

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// staleAfter is how long an idle key survives a janitor sweep.
const staleAfter = 5 * time.Minute

// MemoryLimiter is a process-local sliding-window Limiter used while Redis is unavailable.
// Redis keys expire on their own; the in-memory log is swept by RunJanitor.
type MemoryLimiter struct {
	mu   sync.Mutex
	hits map[string][]time.Time
	log  *slog.Logger
	now  func() time.Time
}

var _ Limiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter returns an empty MemoryLimiter.
func NewMemoryLimiter(log *slog.Logger) *MemoryLimiter {
	if log == nil {
		log = slog.Default()
	}

	return &MemoryLimiter{
		hits: make(map[string][]time.Time),
		log:  log,
		now:  time.Now,
	}
}

// Check admits the request when fewer than limit requests for key fall inside window.
// Rejected attempts are not recorded.
func (m *MemoryLimiter) Check(_ context.Context, key string, limit int, window time.Duration) (*Result, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := now.Add(-window)
	hits := m.hits[key]
	if i := slices.IndexFunc(hits, func(t time.Time) bool { return !t.Before(cutoff) }); i > 0 {
		hits = slices.Delete(hits, 0, i)
	} else if i < 0 {
		hits = hits[:0]
	}

	allowed := len(hits) < limit
	if allowed {
		hits = append(hits, now)
	}
	m.hits[key] = hits

	result := &Result{
		Allowed:   allowed,
		Remaining: max(limit-len(hits), 0),
		ResetAt:   now.Add(window),
	}
	if len(hits) > 0 {
		result.ResetAt = hits[0].Add(window)
	}

	if !allowed {
		return result, ErrLimitExceeded
	}
	return result, nil
}

// Cleanup drops keys whose newest request is older than maxAge and returns how many were removed.
func (m *MemoryLimiter) Cleanup(maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}

	cutoff := m.now().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, hits := range m.hits {
		if len(hits) == 0 || hits[len(hits)-1].Before(cutoff) {
			delete(m.hits, key)
			removed++
		}
	}
	return removed
}

// RunJanitor calls Cleanup every interval until ctx is done.
func (m *MemoryLimiter) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Cleanup(staleAfter); n > 0 {
				m.log.Debug("rate limit keys cleaned", slog.Int("keys_removed", n))
			}
		}
	}
}
