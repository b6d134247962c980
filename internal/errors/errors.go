package errors

import (
	"errors"
	"fmt"
	"strings"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AppError is the error type surfaced to bot and HTTP handlers.
// MessageKey selects the localized text; UserMessage is the fallback when no catalog has it.
type AppError struct {
	Code        string
	Message     string
	UserMessage string
	MessageKey  string
	Params      map[string]string
	Severity    Severity
	Retryable   bool
	cause       error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

func (e *AppError) Cause() error {
	return e.Unwrap()
}

// As returns the AppError in err's chain, if any.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		return appErr, true
	}
	return nil, false
}

// CodeOf returns the code of the AppError in err's chain, or an empty string.
func CodeOf(err error) string {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return ""
}

func NewValidationError(msg string) *AppError {
	return &AppError{
		Code:        "E100",
		Message:     msg,
		UserMessage: fmt.Sprintf("Invalid input. %s", msg),
		MessageKey:  "errors.validation",
		Params:      map[string]string{"details": msg},
		Severity:    SeverityLow,
		Retryable:   false,
	}
}

func NewDatabaseError(cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	return &AppError{
		Code:        "E200",
		Message:     fmt.Sprintf("Database error: %s", underlyingMsg),
		UserMessage: "Temporary problem, please try again later",
		MessageKey:  "errors.temporary",
		Severity:    SeverityHigh,
		Retryable:   true,
		cause:       cause,
	}
}

func NewExternalAPIError(apiName string, cause error) *AppError {
	return &AppError{
		Code:        "E300",
		Message:     fmt.Sprintf("External API error: %s", apiName),
		UserMessage: "Service is temporarily unavailable",
		MessageKey:  "errors.unavailable",
		Severity:    SeverityMedium,
		Retryable:   true,
		cause:       cause,
	}
}

func NewRateLimitError(retryAfter int) *AppError {
	return &AppError{
		Code:        "E500",
		Message:     fmt.Sprintf("Rate limit exceeded: retry after %d seconds", retryAfter),
		UserMessage: fmt.Sprintf("Too many requests. Try again in %d seconds", retryAfter),
		MessageKey:  "errors.rate_limited",
		Params:      map[string]string{"seconds": fmt.Sprint(retryAfter)},
		Severity:    SeverityLow,
		Retryable:   false,
	}
}

// NewPriceError reports that no upstream could resolve symbol. code is one of the
// price error kinds, e.g. TOKEN_NOT_FOUND; it also selects the message key.
func NewPriceError(code, symbol string, retryable bool, cause error) *AppError {
	severity := SeverityMedium
	userMessage := fmt.Sprintf("Price for %s is temporarily unavailable", symbol)
	if !retryable {
		severity = SeverityLow
		userMessage = fmt.Sprintf("Token %s not found", symbol)
	}

	return &AppError{
		Code:        code,
		Message:     fmt.Sprintf("price resolution failed for %s: %s", symbol, code),
		UserMessage: userMessage,
		MessageKey:  "errors.price." + strings.ToLower(code),
		Params:      map[string]string{"symbol": symbol},
		Severity:    severity,
		Retryable:   retryable,
		cause:       cause,
	}
}
