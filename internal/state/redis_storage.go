package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	userStateKeyPattern = "dialog:state:%d"
	// DefaultStateTTL expires abandoned dialogs.
	DefaultStateTTL = 15 * time.Minute
)

// RedisStorage persists dialog states in Redis. Keys expire after the TTL so abandoned dialogs clean themselves up.
type RedisStorage struct {
	client redis.Cmdable
	ttl    time.Duration
	log    *slog.Logger
	now    func() time.Time
}

// NewRedisStorage initializes a Redis-backed Storage implementation.
func NewRedisStorage(client redis.Cmdable, ttl time.Duration, log *slog.Logger) *RedisStorage {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}

	return &RedisStorage{
		client: client,
		ttl:    ttl,
		log:    log,
		now:    time.Now,
	}
}

// GetState returns the stored user state or ErrStateNotFound when absent.
func (s *RedisStorage) GetState(ctx context.Context, userID int64) (*UserState, error) {
	data, err := s.client.Get(ctx, redisUserStateKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrStateNotFound
		}

		s.log.Error("failed to get state from redis", slog.Int64("user_id", userID), slog.Any("error", err))
		return nil, err
	}

	var state UserState
	if err := json.Unmarshal(data, &state); err != nil {
		s.log.Error("failed to decode user state", slog.Int64("user_id", userID), slog.Any("error", err))
		return nil, err
	}

	return &state, nil
}

// SetState saves the provided user state and restarts its TTL.
func (s *RedisStorage) SetState(ctx context.Context, userID int64, state *UserState) error {
	state.UpdatedAt = s.now().UTC()

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode user state: %w", err)
	}

	if err := s.client.Set(ctx, redisUserStateKey(userID), data, s.ttl).Err(); err != nil {
		s.log.Error("failed to save state in redis", slog.Int64("user_id", userID), slog.Any("error", err))
		return err
	}

	return nil
}

// ClearState removes the stored state for the given user.
func (s *RedisStorage) ClearState(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, redisUserStateKey(userID)).Err(); err != nil {
		s.log.Error("failed to clear user state", slog.Int64("user_id", userID), slog.Any("error", err))
		return err
	}

	return nil
}

func redisUserStateKey(userID int64) string {
	return fmt.Sprintf(userStateKeyPattern, userID)
}
