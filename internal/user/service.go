// Package user keeps bot user profiles, caching them in Redis in front of PostgreSQL.
package user

import (
	"context"
	"log/slog"
	"time"

	"github.com/Proton-105/himera-trader/internal/domain"
	"github.com/Proton-105/himera-trader/internal/repository"
)

// DefaultTouchInterval bounds how often an active user's row is rewritten.
const DefaultTouchInterval = 5 * time.Minute

// Service is a UserRepository that skips the database for users seen within the touch interval.
// last_seen_at therefore lags by at most that interval.
type Service struct {
	repo     repository.UserRepository
	cache    *Cache
	interval time.Duration
	log      *slog.Logger
}

var _ repository.UserRepository = (*Service)(nil)

// NewService constructs a new Service instance.
func NewService(repo repository.UserRepository, cache *Cache, interval time.Duration, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultTouchInterval
	}

	return &Service{repo: repo, cache: cache, interval: interval, log: log}
}

// FindByTelegramID reads through the cache.
func (s *Service) FindByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	if cached := s.cached(ctx, telegramID); cached != nil {
		return cached, nil
	}

	user, err := s.repo.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	s.store(ctx, user)

	return user, nil
}

// Upsert writes the user unless an identical profile was stored within the touch interval.
func (s *Service) Upsert(ctx context.Context, user *domain.User) (bool, error) {
	if cached := s.cached(ctx, user.TelegramID); cached != nil && sameProfile(cached, user) {
		user.ID = cached.ID
		user.CreatedAt = cached.CreatedAt
		user.LastSeenAt = cached.LastSeenAt
		return false, nil
	}

	created, err := s.repo.Upsert(ctx, user)
	if err != nil {
		s.logError("upsert", user.TelegramID, err)
		return false, err
	}
	s.store(ctx, user)

	return created, nil
}

func (s *Service) cached(ctx context.Context, telegramID int64) *domain.User {
	user, err := s.cache.Get(ctx, telegramID)
	if err != nil {
		s.logError("cache_get", telegramID, err)
		return nil
	}
	return user
}

func (s *Service) store(ctx context.Context, user *domain.User) {
	if err := s.cache.Set(ctx, user, s.interval); err != nil {
		s.logError("cache_set", user.TelegramID, err)
	}
}

func sameProfile(a, b *domain.User) bool {
	return a.FirstName == b.FirstName &&
		a.LastName == b.LastName &&
		a.Username == b.Username &&
		a.LanguageCode == b.LanguageCode
}

func (s *Service) logError(operation string, telegramID int64, err error) {
	s.log.Warn("user service operation failed",
		slog.String("operation", operation),
		slog.Int64("telegram_id", telegramID),
		slog.Any("error", err),
	)
}
