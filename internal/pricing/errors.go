package pricing

import (
	"errors"

	apperrors "github.com/Proton-105/himera-trader/internal/errors"
	"github.com/Proton-105/himera-trader/internal/provider"
)

// ErrorKind classifies a failed resolution. It is carried as the AppError code.
type ErrorKind string

const (
	KindTokenNotFound ErrorKind = "TOKEN_NOT_FOUND"
	KindTimeout       ErrorKind = "TIMEOUT_ERROR"
	KindRateLimited   ErrorKind = "RATE_LIMIT_EXCEEDED"
	KindNetwork       ErrorKind = "NETWORK_ERROR"
	KindServer        ErrorKind = "SERVER_ERROR"
	KindUnknown       ErrorKind = "UNKNOWN_ERROR"
)

// Retryable reports whether retrying the same request may succeed.
func (k ErrorKind) Retryable() bool {
	return k != KindTokenNotFound
}

// KindOf returns the ErrorKind of an error returned by the Resolver, or KindUnknown.
func KindOf(err error) ErrorKind {
	switch kind := ErrorKind(apperrors.CodeOf(err)); kind {
	case KindTokenNotFound, KindTimeout, KindRateLimited, KindNetwork, KindServer, KindUnknown:
		return kind
	default:
		return KindUnknown
	}
}

// errSkipped marks a provider that cannot serve a symbol without calling out, e.g. an unmapped reference id.
var errSkipped = errors.New("provider skipped")

func newError(kind ErrorKind, symbol string, cause error) *apperrors.AppError {
	return apperrors.NewPriceError(string(kind), symbol, kind.Retryable(), cause)
}

func kindFromProvider(kind provider.Kind) ErrorKind {
	switch kind {
	case provider.KindNotFound:
		return KindTokenNotFound
	case provider.KindTimeout:
		return KindTimeout
	case provider.KindRateLimited:
		return KindRateLimited
	case provider.KindNetwork:
		return KindNetwork
	case provider.KindServer:
		return KindServer
	default:
		return KindUnknown
	}
}

// attemptKind maps one failed provider attempt to an ErrorKind.
func attemptKind(err error) ErrorKind {
	switch {
	case errors.Is(err, errSkipped):
		return KindTokenNotFound
	case errors.Is(err, ErrInvalidData):
		return KindUnknown
	default:
		return kindFromProvider(provider.KindOf(err))
	}
}

// terminalKind is TOKEN_NOT_FOUND when every attempt found nothing, otherwise the
// last other failure in chain order.
func terminalKind(attempts []ErrorKind) ErrorKind {
	terminal := KindTokenNotFound
	for _, kind := range attempts {
		if kind != KindTokenNotFound {
			terminal = kind
		}
	}
	return terminal
}
