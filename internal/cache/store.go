// Package cache provides a two-tier key/value store: Redis as the primary
// backend and an in-process map that takes over whenever Redis fails.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	appredis "github.com/Proton-105/himera-trader/pkg/redis"
	"github.com/Proton-105/himera-trader/pkg/metrics"
)

const (
	tierPrimary = "primary"
	tierMemory  = "memory"

	defaultWriteTimeout = 2 * time.Second
)

// ErrPrimaryUnavailable is wrapped by primary-only operations when the backend cannot serve them.
var ErrPrimaryUnavailable = errors.New("cache: primary backend unavailable")

// Backend is the primary storage. Get must return appredis.Nil for missing keys.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the clock used for memory-tier expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithWriteTimeout bounds asynchronous writes started by SetAsync and GetOrSet.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		if timeout > 0 {
			s.writeTimeout = timeout
		}
	}
}

// Store is a best-effort cache. Backend failures are logged and absorbed by the memory tier;
// they are never returned to callers.
type Store struct {
	primary      Backend
	memory       *memoryTier
	log          *slog.Logger
	now          func() time.Time
	writeTimeout time.Duration
	pending      conc.WaitGroup

	// writesMu is held shared by a running write-back and exclusively by an invalidation,
	// so a delete never interleaves with a write it has to cancel.
	writesMu sync.RWMutex
	writes   map[*pendingWrite]struct{}
}

type pendingWrite struct {
	key   string
	stale bool
}

// New creates a Store. primary may be nil, in which case only the memory tier is used.
func New(primary Backend, log *slog.Logger, opts ...Option) *Store {
	if log == nil {
		log = slog.Default()
	}

	s := &Store{
		primary:      primary,
		log:          log,
		now:          time.Now,
		writeTimeout: defaultWriteTimeout,
		writes:       make(map[*pendingWrite]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.memory = newMemoryTier(s.now)

	return s
}

// Set stores value under key for ttl; ttl <= 0 stores without expiry.
// Only an encoding failure is reported.
func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}

	if s.primary != nil {
		err := s.primary.Set(ctx, key, data, ttl)
		if err == nil {
			metrics.RecordCacheOperation("set", tierPrimary, "ok")
			return nil
		}
		s.degraded("set", key, err)
	}

	s.memory.set(key, data, ttl)
	metrics.RecordCacheOperation("set", tierMemory, "ok")
	return nil
}

// Get decodes the value stored under key into dst and reports whether it was found.
// Undecodable entries are treated as misses.
func (s *Store) Get(ctx context.Context, key string, dst any) bool {
	if s.primary != nil {
		data, err := s.primary.Get(ctx, key)
		switch {
		case err == nil:
			if s.decode(key, data, dst) {
				metrics.RecordCacheOperation("get", tierPrimary, "hit")
				return true
			}
		case errors.Is(err, appredis.Nil):
			metrics.RecordCacheOperation("get", tierPrimary, "miss")
		default:
			s.degraded("get", key, err)
		}
	}

	data, ok := s.memory.get(key)
	if !ok || !s.decode(key, data, dst) {
		metrics.RecordCacheOperation("get", tierMemory, "miss")
		return false
	}

	metrics.RecordCacheOperation("get", tierMemory, "hit")
	return true
}

// Delete removes key from both tiers. It reports true when either tier removed it without error.
// Write-backs for key that have not landed yet are dropped.
func (s *Store) Delete(ctx context.Context, key string) bool {
	s.invalidate(func(k string) bool { return k == key })

	primaryOK := false
	if s.primary != nil {
		if err := s.primary.Delete(ctx, key); err != nil {
			s.degraded("delete", key, err)
		} else {
			primaryOK = true
		}
	}

	memoryOK := s.memory.delete(key)
	return primaryOK || memoryOK
}

// DeletePrefix removes every key starting with prefix from both tiers and returns the number removed.
// Pending write-backs under prefix are dropped.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) int {
	s.invalidate(func(k string) bool { return strings.HasPrefix(k, prefix) })

	removed := 0

	if s.primary != nil {
		keys, err := s.primary.Keys(ctx, prefix+"*")
		if err != nil {
			s.degraded("scan", prefix, err)
		}
		for _, key := range keys {
			if err := s.primary.Delete(ctx, key); err != nil {
				s.degraded("delete", key, err)
				continue
			}
			removed++
		}
	}

	return removed + s.memory.deletePrefix(prefix)
}

// Exists reports whether key is present in the primary backend. Not served during outages.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if s.primary == nil {
		return false, ErrPrimaryUnavailable
	}
	ok, err := s.primary.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrPrimaryUnavailable, err)
	}
	return ok, nil
}

// TTL returns the remaining lifetime of key in the primary backend. Not served during outages.
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	if s.primary == nil {
		return 0, ErrPrimaryUnavailable
	}
	ttl, err := s.primary.TTL(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPrimaryUnavailable, err)
	}
	return ttl, nil
}

// Expire updates the lifetime of key in the primary backend. Not served during outages.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if s.primary == nil {
		return false, ErrPrimaryUnavailable
	}
	ok, err := s.primary.Expire(ctx, key, ttl)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrPrimaryUnavailable, err)
	}
	return ok, nil
}

// SetAsync writes value in the background on a context detached from ctx's cancellation.
// Failures are logged and counted only. A Delete or DeletePrefix covering key that runs
// before the write lands cancels it.
func (s *Store) SetAsync(ctx context.Context, key string, value any, ttl time.Duration) {
	detached := context.WithoutCancel(ctx)

	w := &pendingWrite{key: key}
	s.writesMu.Lock()
	s.writes[w] = struct{}{}
	s.writesMu.Unlock()

	s.pending.Go(func() {
		defer s.forget(w)

		s.writesMu.RLock()
		defer s.writesMu.RUnlock()

		if w.stale {
			s.log.Debug("cache write-back dropped after invalidation", slog.String("key", key))
			return
		}

		wctx, cancel := context.WithTimeout(detached, s.writeTimeout)
		defer cancel()

		if err := s.Set(wctx, key, value, ttl); err != nil {
			metrics.RecordWriteBack(false)
			s.log.Warn("cache write-back failed", slog.String("key", key), slog.Any("error", err))
			return
		}
		metrics.RecordWriteBack(true)
	})
}

// invalidate marks matching pending writes stale. Taking the lock exclusively waits out
// writes already in flight, so the caller's delete removes whatever they stored.
func (s *Store) invalidate(match func(key string) bool) {
	s.writesMu.Lock()
	defer s.writesMu.Unlock()

	for w := range s.writes {
		if match(w.key) {
			w.stale = true
		}
	}
}

func (s *Store) forget(w *pendingWrite) {
	s.writesMu.Lock()
	delete(s.writes, w)
	s.writesMu.Unlock()
}

// Wait blocks until every pending asynchronous write has finished.
func (s *Store) Wait() {
	s.pending.Wait()
}

// RunJanitor purges expired memory-tier entries every interval until ctx is cancelled.
func (s *Store) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("cache janitor stopped", slog.String("reason", ctx.Err().Error()))
			return
		case <-ticker.C:
			if removed := s.memory.purgeExpired(); removed > 0 {
				s.log.Debug("expired cache entries purged", slog.Int("entries_removed", removed))
			}
		}
	}
}

func (s *Store) decode(key string, data []byte, dst any) bool {
	if err := json.Unmarshal(data, dst); err != nil {
		s.log.Warn("cache entry could not be decoded", slog.String("key", key), slog.Any("error", err))
		return false
	}
	return true
}

func (s *Store) degraded(op, key string, err error) {
	metrics.RecordCacheOperation(op, tierPrimary, "error")
	metrics.RecordCacheFallback(op)
	s.log.Warn("primary cache failed, using in-memory tier",
		slog.String("op", op),
		slog.String("key", key),
		slog.Any("error", err),
	)
}
