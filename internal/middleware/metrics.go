package middleware

import (
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/himera-trader/internal/bot/handlers"
	apperrors "github.com/Proton-105/himera-trader/internal/errors"
	"github.com/Proton-105/himera-trader/pkg/metrics"
)

// Metrics measures execution time and status for bot handlers, reporting them to Prometheus.
func Metrics(next handlers.Handler) handlers.Handler {
	if next == nil {
		return nil
	}

	return func(c telebot.Context) error {
		start := time.Now()
		err := next(c)

		command := CommandName(c)
		status := "ok"
		if err != nil {
			status = "error"
			recordError(err)
		}

		metrics.RecordCommand(command, status, time.Since(start))

		return err
	}
}

func recordError(err error) {
	code, severity := "unknown", string(apperrors.SeverityHigh)
	if appErr, ok := apperrors.As(err); ok {
		code, severity = appErr.Code, string(appErr.Severity)
	}
	metrics.RecordError(code, severity)
}
