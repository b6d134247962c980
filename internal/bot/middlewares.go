package bot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/himera-trader/internal/bot/handlers"
	"github.com/Proton-105/himera-trader/internal/bot/keyboard"
	"github.com/Proton-105/himera-trader/internal/domain"
	apperrors "github.com/Proton-105/himera-trader/internal/errors"
	"github.com/Proton-105/himera-trader/internal/i18n"
	"github.com/Proton-105/himera-trader/internal/repository"
	"github.com/Proton-105/himera-trader/pkg/logger"
)

const registrationTimeout = 3 * time.Second

// RecoveryMiddleware catches panics, reports them via the centralized handler, and notifies the user.
func RecoveryMiddleware(log *slog.Logger, errHandler *apperrors.Handler) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic recovered in handler", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))

					userMsg := "⚠️ Something went wrong. Please try again later."
					if errHandler != nil {
						if msg, _ := errHandler.Handle(handlers.RequestContext(c), fmt.Errorf("panic recovered: %v", r), handlers.Lang(c)); msg != "" {
							userMsg = msg
						}
					}

					if c != nil {
						if sendErr := c.Send(userMsg); sendErr != nil {
							log.Error("failed to notify user about panic", slog.Any("error", sendErr))
						}
					}

					err = nil
				}
			}()

			return next(c)
		}
	}
}

// ErrorHandlingMiddleware turns handler errors into a localized reply. Retryable
// price failures get a retry button for the symbol.
func ErrorHandlingMiddleware(errHandler *apperrors.Handler, messages *i18n.Manager, log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}
	if errHandler == nil {
		errHandler = apperrors.NewHandler(log, false, messages)
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			err := next(c)
			if err == nil || c == nil {
				return nil
			}

			lang := handlers.Lang(c)
			userMsg, retryable := errHandler.Handle(handlers.RequestContext(c), err, lang)

			var opts []any
			if appErr, ok := apperrors.As(err); ok && retryable && appErr.Params["symbol"] != "" {
				markup, buildErr := keyboard.PriceRetry(messages.Translator(lang), appErr.Params["symbol"])
				if buildErr != nil {
					log.Warn("failed to build retry button", slog.Any("error", buildErr))
				} else {
					opts = append(opts, markup)
				}
			}

			if sendErr := c.Send(userMsg, opts...); sendErr != nil {
				log.Error("failed to send error reply", slog.Any("error", sendErr))
			}

			return nil
		}
	}
}

// LoggingMiddleware attaches a correlation id to the update and logs its handling.
func LoggingMiddleware(log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			start := time.Now()

			ctx := logger.WithCorrelationID(handlers.RequestContext(c), "")
			handlers.WithRequestContext(c, ctx)

			userID := int64(0)
			if c.Sender() != nil {
				userID = c.Sender().ID
			}

			action := c.Text()
			if cb := c.Callback(); cb != nil {
				action = cb.Data
			}

			scoped := log.With(
				slog.Int64("user_id", userID),
				slog.String("action", action),
				slog.String("correlation_id", logger.CorrelationIDFromContext(ctx)),
			)

			scoped.Debug("handling update")
			err := next(c)
			scoped.Info("handled update",
				slog.Duration("duration", time.Since(start)),
				slog.Any("error", err),
			)

			return err
		}
	}
}

// AuthMiddleware registers the sender and refreshes its profile on every update.
// A storage failure is logged and the update continues without a user record.
func AuthMiddleware(users repository.UserRepository, log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		if next == nil {
			return nil
		}

		return func(c telebot.Context) error {
			if users == nil || c == nil || c.Sender() == nil {
				return next(c)
			}

			sender := c.Sender()
			user := &domain.User{
				TelegramID:   sender.ID,
				FirstName:    sender.FirstName,
				LastName:     sender.LastName,
				Username:     sender.Username,
				LanguageCode: sender.LanguageCode,
				LastSeenAt:   time.Now().UTC(),
			}

			ctx, cancel := context.WithTimeout(handlers.RequestContext(c), registrationTimeout)
			created, err := users.Upsert(ctx, user)
			cancel()

			if err != nil {
				log.Warn("user registration failed", slog.Int64("user_id", sender.ID), slog.Any("error", err))
				return next(c)
			}

			if created {
				log.Info("created new user", slog.Int64("user_id", sender.ID))
			}
			handlers.SetUser(c, user, created)

			return next(c)
		}
	}
}
