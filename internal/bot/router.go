package bot

import (
	"log/slog"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/himera-trader/internal/bot/handlers"
)

// Router dispatches commands, callbacks and plain text through a shared middleware chain.
// All registration happens in newRouter before the bot starts polling; Route is then
// read-only and safe for concurrent updates.
type Router struct {
	commands    map[string]handlers.Handler
	callbacks   map[string]handlers.CallbackHandler
	fallback    handlers.Handler
	middlewares []handlers.Middleware
	log         *slog.Logger
}

// NewRouter builds a Router with empty registries.
func NewRouter(log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}

	return &Router{
		commands:  make(map[string]handlers.Handler),
		callbacks: make(map[string]handlers.CallbackHandler),
		log:       log,
	}
}

// RegisterCommand registers a handler for a bot command such as "/price".
func (r *Router) RegisterCommand(cmd string, h handlers.Handler) {
	r.commands[strings.ToLower(cmd)] = h
}

// RegisterCallback registers a handler for a callback unique; data "unique" and "unique:payload" both match.
func (r *Router) RegisterCallback(unique string, h handlers.CallbackHandler) {
	r.callbacks[unique] = h
}

// Use appends a middleware; the first registered runs outermost.
func (r *Router) Use(mw handlers.Middleware) {
	r.middlewares = append(r.middlewares, mw)
}

// SetDefault sets the handler for text that is not a known command.
func (r *Router) SetDefault(h handlers.Handler) {
	r.fallback = h
}

// Route directs the incoming update to the matching handler.
func (r *Router) Route(c telebot.Context) error {
	if c == nil {
		return nil
	}

	h := r.resolve(c)
	if h == nil {
		return nil
	}

	for i := len(r.middlewares) - 1; i >= 0; i-- {
		h = r.middlewares[i](h)
	}
	return h(c)
}

func (r *Router) resolve(c telebot.Context) handlers.Handler {
	if cb := c.Callback(); cb != nil {
		unique, _, _ := strings.Cut(cb.Data, ":")
		if h, ok := r.callbacks[unique]; ok && h != nil {
			return handlers.Handler(h)
		}
		r.log.Info("no callback handler found", slog.String("data", cb.Data))
		return nil
	}

	text := strings.TrimSpace(c.Text())
	if strings.HasPrefix(text, "/") {
		if h, ok := r.commands[commandOf(text)]; ok {
			return h
		}
	}
	return r.fallback
}

// commandOf returns the lower-cased first word without a trailing @botname.
func commandOf(text string) string {
	word, _, _ := strings.Cut(text, " ")
	word, _, _ = strings.Cut(word, "@")
	return strings.ToLower(word)
}
