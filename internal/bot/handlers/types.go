package handlers

import (
	"context"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/himera-trader/internal/domain"
)

// Handler processes bot commands.
type Handler func(c telebot.Context) error

// CallbackHandler processes inline callback events.
type CallbackHandler func(c telebot.Context) error

// Middleware wraps handlers with additional behavior.
type Middleware func(Handler) Handler

// Keys under which middlewares store per-update values in telebot.Context.
const (
	requestContextKey = "request_ctx"
	userKey           = "user"
	userCreatedKey    = "user_created"
)

// WithRequestContext attaches ctx to the update so handlers can pass it downstream.
func WithRequestContext(c telebot.Context, ctx context.Context) {
	c.Set(requestContextKey, ctx)
}

// RequestContext returns the context attached by WithRequestContext, or context.Background.
func RequestContext(c telebot.Context) context.Context {
	if c != nil {
		if ctx, ok := c.Get(requestContextKey).(context.Context); ok && ctx != nil {
			return ctx
		}
	}
	return context.Background()
}

// SetUser records the registered user for the update.
func SetUser(c telebot.Context, user *domain.User, created bool) {
	c.Set(userKey, user)
	c.Set(userCreatedKey, created)
}

// UserFrom returns the user stored by SetUser and whether it was created by this update.
func UserFrom(c telebot.Context) (*domain.User, bool) {
	if c == nil {
		return nil, false
	}
	user, _ := c.Get(userKey).(*domain.User)
	created, _ := c.Get(userCreatedKey).(bool)
	return user, created
}

// Lang returns the sender's Telegram language code.
func Lang(c telebot.Context) string {
	if c == nil || c.Sender() == nil {
		return ""
	}
	return c.Sender().LanguageCode
}
