package handlers

import (
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/himera-trader/internal/bot/keyboard"
	"github.com/Proton-105/himera-trader/internal/i18n"
	"github.com/Proton-105/himera-trader/internal/state"
)

// OrderDialog collects an order preview step by step: side from the menu, then the ticker,
// then margin and leverage.
type OrderDialog struct {
	fsm      state.StateMachine
	prices   PriceService
	messages *i18n.Manager
	log      *slog.Logger
}

func NewOrderDialog(fsm state.StateMachine, prices PriceService, messages *i18n.Manager, log *slog.Logger) *OrderDialog {
	if log == nil {
		log = slog.Default()
	}
	return &OrderDialog{fsm: fsm, prices: prices, messages: messages, log: log}
}

// Begin starts a dialog for side, replacing any dialog in progress.
func (d *OrderDialog) Begin(c telebot.Context, side Side) error {
	t := d.messages.Translator(Lang(c))

	err := d.fsm.SetState(RequestContext(c), c.Sender().ID, state.StateOrderSymbol, map[string]string{state.KeySide: string(side)})
	if err != nil {
		d.log.Warn("order dialog unavailable", slog.Int64("user_id", c.Sender().ID), slog.Any("error", err))
		return c.Send(t.Tf("order.usage", map[string]string{"side": string(side)}))
	}

	return c.Send(t.Tf("order.ask_symbol", map[string]string{"side": string(side)}))
}

// Continue feeds free text into the sender's dialog. It reports false when no dialog is active.
func (d *OrderDialog) Continue(c telebot.Context) (bool, error) {
	if c.Sender() == nil {
		return false, nil
	}

	ctx := RequestContext(c)
	userID := c.Sender().ID

	st, err := d.fsm.GetState(ctx, userID)
	if err != nil {
		d.log.Warn("order dialog state unavailable", slog.Int64("user_id", userID), slog.Any("error", err))
		return false, nil
	}

	t := d.messages.Translator(Lang(c))
	side := Side(st.Context[state.KeySide])

	switch st.CurrentState {
	case state.StateOrderSymbol:
		symbols := parseSymbols(strings.Fields(c.Text()))
		if len(symbols) != 1 {
			return true, c.Send(t.Tf("order.ask_symbol", map[string]string{"side": string(side)}))
		}

		data, err := d.prices.GetTokenPrice(ctx, symbols[0])
		if err != nil {
			return true, err
		}

		if err := d.fsm.TransitionTo(ctx, userID, state.StateOrderMargin, map[string]string{state.KeySymbol: data.Symbol}); err != nil {
			return true, err
		}
		return true, c.Send(t.Tf("order.ask_margin", map[string]string{
			"symbol": data.Symbol,
			"price":  formatPrice(decimal.NewFromFloat(data.Price)),
		}))

	case state.StateOrderMargin:
		args := strings.Fields(c.Text())
		if len(args) < 1 || len(args) > 2 {
			return true, c.Send(t.Tf("order.ask_margin_again", map[string]string{"symbol": st.Context[state.KeySymbol]}))
		}

		margin, leverage, rejection := parseOrderInput(t, args)
		if rejection != "" {
			return true, c.Send(rejection)
		}

		if err := d.fsm.ClearState(ctx, userID); err != nil {
			return true, err
		}
		return true, sendPreview(c, t, d.prices, d.log, side, st.Context[state.KeySymbol], margin, leverage)

	default:
		return false, nil
	}
}

// Cancel serves /cancel.
func (d *OrderDialog) Cancel(c telebot.Context) error {
	if c.Sender() == nil {
		return nil
	}
	t := d.messages.Translator(Lang(c))
	ctx := RequestContext(c)

	st, err := d.fsm.GetState(ctx, c.Sender().ID)
	if err != nil {
		return err
	}
	if st.CurrentState == state.StateIdle {
		return c.Send(t.T("cancel.nothing"), keyboard.MainMenu(t))
	}

	if err := d.fsm.ClearState(ctx, c.Sender().ID); err != nil {
		return err
	}
	return c.Send(t.T("cancel.done"), keyboard.MainMenu(t))
}
