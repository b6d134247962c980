package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/himera-trader/internal/bot/handlers"
	apperrors "github.com/Proton-105/himera-trader/internal/errors"
	"github.com/Proton-105/himera-trader/internal/ratelimit"
)

// RateLimitMiddleware enforces per-user and per-command limits for incoming Telegram updates.
type RateLimitMiddleware struct {
	limiter ratelimit.Limiter
	rules   *ratelimit.Rules
	log     *slog.Logger
	now     func() time.Time
}

// NewRateLimitMiddleware constructs a rate-limit middleware component.
func NewRateLimitMiddleware(limiter ratelimit.Limiter, rules *ratelimit.Rules, log *slog.Logger) *RateLimitMiddleware {
	if log == nil {
		log = slog.Default()
	}

	return &RateLimitMiddleware{
		limiter: limiter,
		rules:   rules,
		log:     log,
		now:     time.Now,
	}
}

// Handle rejects updates over the limit with a rate limit AppError so the
// error middleware can answer in the user's language. Limiter failures let the update through.
func (m *RateLimitMiddleware) Handle(next handlers.Handler) handlers.Handler {
	if next == nil {
		return nil
	}

	return func(c telebot.Context) error {
		if m.limiter == nil || !m.rules.Enabled() || c == nil {
			return next(c)
		}

		sender := c.Sender()
		if sender == nil || m.rules.IsWhitelisted(sender.ID) {
			return next(c)
		}

		ctx := context.Background()

		if limit, window, err := m.rules.GetPerUserLimit(); err == nil {
			if rejected := m.check(ctx, fmt.Sprintf("user:%d", sender.ID), limit, window, sender.ID); rejected != nil {
				return rejected
			}
		}

		command := CommandName(c)
		if limit, window, err := m.rules.GetCommandLimit(command); err == nil {
			key := fmt.Sprintf("user:%d:cmd:%s", sender.ID, command)
			if rejected := m.check(ctx, key, limit, window, sender.ID); rejected != nil {
				return rejected
			}
		}

		return next(c)
	}
}

func (m *RateLimitMiddleware) check(ctx context.Context, key string, limit int, window time.Duration, userID int64) error {
	result, err := m.limiter.Check(ctx, key, limit, window)
	switch {
	case err == nil && result != nil && result.Allowed:
		return nil
	case err == nil, errors.Is(err, ratelimit.ErrLimitExceeded):
		retryAfter := int(result.RetryAfter(m.now()).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		m.log.Warn("rate limit exceeded", slog.Int64("user_id", userID), slog.String("key", key), slog.Int("retry_after", retryAfter))
		return apperrors.NewRateLimitError(retryAfter)
	default:
		m.log.Warn("rate limiter error", slog.Int64("user_id", userID), slog.String("key", key), slog.Any("error", err))
		return nil
	}
}
