// Package bot wires Telegram updates to the price commands through a middleware chain.
package bot

import (
	"fmt"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/himera-trader/internal/bot/handlers"
	"github.com/Proton-105/himera-trader/internal/bot/keyboard"
	apperrors "github.com/Proton-105/himera-trader/internal/errors"
	"github.com/Proton-105/himera-trader/internal/i18n"
	"github.com/Proton-105/himera-trader/internal/middleware"
	"github.com/Proton-105/himera-trader/internal/repository"
	"github.com/Proton-105/himera-trader/internal/state"
	"github.com/Proton-105/himera-trader/pkg/config"
)

// Deps are the collaborators of the bot. Users, Dialogs and RateLimit may be nil.
type Deps struct {
	Prices     handlers.PriceService
	Users      repository.UserRepository
	Dialogs    state.StateMachine
	Messages   *i18n.Manager
	ErrHandler *apperrors.Handler
	RateLimit  *middleware.RateLimitMiddleware
}

// Bot wraps telebot.Bot with application dependencies required for handling updates.
type Bot struct {
	telebot *telebot.Bot
	router  *Router
	log     *slog.Logger
}

// New builds a telegram bot instance configured according to the application settings.
func New(cfg config.BotConfig, log *slog.Logger, deps Deps) (*Bot, error) {
	if log == nil {
		log = slog.Default()
	}

	settings := telebot.Settings{
		Token: cfg.Token,
		OnError: func(err error, c telebot.Context) {
			log.Error("telebot error", slog.Any("error", err))
		},
	}

	if cfg.Mode == "webhook" {
		settings.Poller = &telebot.Webhook{
			Listen:   cfg.WebhookListen,
			Endpoint: &telebot.WebhookEndpoint{PublicURL: cfg.WebhookURL},
		}
	} else {
		settings.Poller = &telebot.LongPoller{
			Timeout: cfg.Timeout,
		}
	}

	tb, err := telebot.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("initialize telebot: %w", err)
	}

	b := &Bot{
		telebot: tb,
		router:  newRouter(deps, log),
		log:     log,
	}

	b.telebot.Handle(telebot.OnText, b.router.Route)
	b.telebot.Handle(telebot.OnCallback, b.router.Route)

	return b, nil
}

// newRouter assembles the middleware chain and command table. The order of Use calls is the
// order in which middlewares see an update.
func newRouter(deps Deps, log *slog.Logger) *Router {
	router := NewRouter(log)

	errHandler := deps.ErrHandler
	if errHandler == nil {
		errHandler = apperrors.NewHandler(log, false, deps.Messages)
	}

	router.Use(RecoveryMiddleware(log, errHandler))
	router.Use(LoggingMiddleware(log))
	router.Use(ErrorHandlingMiddleware(errHandler, deps.Messages, log))
	if deps.RateLimit != nil {
		router.Use(deps.RateLimit.Handle)
	}
	router.Use(AuthMiddleware(deps.Users, log))
	router.Use(middleware.Metrics)

	prices := handlers.NewPriceHandler(deps.Prices, deps.Messages, log)

	router.RegisterCommand(CommandStart, handlers.NewStartHandler(deps.Messages, log))
	router.RegisterCommand(CommandHelp, handlers.NewHelpHandler(deps.Messages))
	router.RegisterCommand(CommandPrice, prices.Command)
	router.RegisterCommand(CommandLong, handlers.NewOrderHandler(handlers.SideLong, deps.Prices, deps.Messages, log))
	router.RegisterCommand(CommandShort, handlers.NewOrderHandler(handlers.SideShort, deps.Prices, deps.Messages, log))
	router.RegisterCallback(keyboard.CallbackPriceRetry, prices.Retry)

	var dialog *handlers.OrderDialog
	if deps.Dialogs != nil {
		dialog = handlers.NewOrderDialog(deps.Dialogs, deps.Prices, deps.Messages, log)
		router.RegisterCommand(CommandCancel, dialog.Cancel)
	}
	router.SetDefault(handlers.NewMenuHandler(deps.Messages, dialog))

	return router
}

// Start publishes the command list and runs the telegram bot event loop. It blocks until Stop.
func (b *Bot) Start() {
	if b.telebot == nil {
		return
	}

	if err := b.telebot.SetCommands(commandList()); err != nil {
		b.log.Warn("failed to publish bot commands", slog.Any("error", err))
	}

	b.telebot.Start()
}

// Stop gracefully stops the telegram bot.
func (b *Bot) Stop() {
	if b.telebot == nil {
		return
	}

	b.log.Info("stopping telegram bot...")
	b.telebot.Stop()
}

// Telebot exposes the underlying telebot.Bot instance for integrations such as health checks.
func (b *Bot) Telebot() *telebot.Bot {
	return b.telebot
}

func commandList() []telebot.Command {
	return []telebot.Command{
		{Text: "price", Description: "Current price: /price BTC ETH"},
		{Text: "long", Description: "Long preview: /long BTC 100 5"},
		{Text: "short", Description: "Short preview: /short ETH 50 3"},
		{Text: "cancel", Description: "Abort the current dialog"},
		{Text: "help", Description: "List commands"},
	}
}
