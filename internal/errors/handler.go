package errors

import (
	"context"
	"errors"
	"log/slog"

	"github.com/getsentry/sentry-go"

	"github.com/Proton-105/himera-trader/internal/i18n"
	"github.com/Proton-105/himera-trader/pkg/logger"
)

const genericMessageKey = "errors.generic"

const genericMessage = "Something went wrong. Please try again later"

type Handler struct {
	log           *slog.Logger
	sentryEnabled bool
	messages      *i18n.Manager
}

// NewHandler builds a Handler. messages may be nil, in which case UserMessage is returned as is.
func NewHandler(log *slog.Logger, sentryEnabled bool, messages *i18n.Manager) *Handler {
	if log == nil {
		log = slog.Default()
	}

	return &Handler{
		log:           log,
		sentryEnabled: sentryEnabled,
		messages:      messages,
	}
}

// Handle logs err, reports severe errors to Sentry and returns the localized
// user-facing message together with the retryable flag.
func (h *Handler) Handle(ctx context.Context, err error, lang string) (string, bool) {
	if err == nil {
		return "", false
	}

	if ctx == nil {
		ctx = context.Background()
	}

	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		attrs := []slog.Attr{
			slog.String("code", appErr.Code),
			slog.String("message", appErr.Message),
			slog.String("severity", string(appErr.Severity)),
			slog.Bool("retryable", appErr.Retryable),
		}
		if cause := appErr.Unwrap(); cause != nil {
			attrs = append(attrs, slog.String("cause", cause.Error()))
		}

		if correlationID := logger.CorrelationIDFromContext(ctx); correlationID != "" {
			attrs = append(attrs, slog.String("correlation_id", correlationID))
		}

		level := slog.LevelError
		if appErr.Severity == SeverityLow {
			level = slog.LevelWarn
		}
		h.log.LogAttrs(ctx, level, "application error", attrs...)

		if h.sentryEnabled && (appErr.Severity == SeverityCritical || appErr.Severity == SeverityHigh) {
			h.sendToSentry(err)
		}

		return h.localize(appErr, lang), appErr.Retryable
	}

	attrs := []slog.Attr{
		slog.String("message", err.Error()),
		slog.String("severity", string(SeverityHigh)),
		slog.Bool("retryable", false),
	}

	if correlationID := logger.CorrelationIDFromContext(ctx); correlationID != "" {
		attrs = append(attrs, slog.String("correlation_id", correlationID))
	}

	h.log.LogAttrs(ctx, slog.LevelError, "unknown error", attrs...)

	if h.sentryEnabled {
		h.sendToSentry(err)
	}

	return h.translate(lang, genericMessageKey, nil, genericMessage), false
}

func (h *Handler) localize(appErr *AppError, lang string) string {
	fallback := appErr.UserMessage
	if fallback == "" {
		fallback = h.translate(lang, genericMessageKey, nil, genericMessage)
	}

	if appErr.MessageKey == "" {
		return fallback
	}
	return h.translate(lang, appErr.MessageKey, appErr.Params, fallback)
}

func (h *Handler) translate(lang, key string, params map[string]string, fallback string) string {
	if h.messages == nil {
		return fallback
	}

	text := h.messages.Translator(lang).Tf(key, params)
	if text == "" || text == key {
		return fallback
	}
	return text
}

func (h *Handler) sendToSentry(err error) {
	if err == nil {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		var appErr *AppError
		if errors.As(err, &appErr) && appErr != nil {
			if appErr.Code != "" {
				scope.SetTag("code", appErr.Code)
			}

			if appErr.Severity != "" {
				scope.SetTag("severity", string(appErr.Severity))
			}
		}

		sentry.CaptureException(err)
	})
}
