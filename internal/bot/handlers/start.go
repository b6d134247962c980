package handlers

import (
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/himera-trader/internal/bot/keyboard"
	"github.com/Proton-105/himera-trader/internal/i18n"
)

// NewStartHandler greets the user and shows the main menu. Registration happens in the auth middleware.
func NewStartHandler(messages *i18n.Manager, log *slog.Logger) Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(c telebot.Context) error {
		sender := c.Sender()
		if sender == nil {
			log.Warn("start handler invoked without sender")
			return nil
		}

		t := messages.Translator(Lang(c))

		key := "start.welcome_back"
		if _, created := UserFrom(c); created {
			key = "start.welcome"
		}

		name := sender.FirstName
		if name == "" {
			name = sender.Username
		}

		text := t.Tf(key, map[string]string{"name": name}) + "\n\n" + t.T("help.text")
		return c.Send(text, keyboard.MainMenu(t))
	}
}

// NewHelpHandler lists the available commands.
func NewHelpHandler(messages *i18n.Manager) Handler {
	return func(c telebot.Context) error {
		t := messages.Translator(Lang(c))
		return c.Send(t.T("help.text"), keyboard.MainMenu(t))
	}
}

// NewMenuHandler answers presses of the reply keyboard and routes other text into an active
// order dialog. dialog may be nil, in which case Long and Short show command usage.
func NewMenuHandler(messages *i18n.Manager, dialog *OrderDialog) Handler {
	return func(c telebot.Context) error {
		t := messages.Translator(Lang(c))

		switch keyboard.MenuKey(t, c.Text()) {
		case keyboard.MenuPrice:
			return c.Send(t.T("price.usage"))
		case keyboard.MenuLong:
			return beginOrder(c, t, dialog, SideLong)
		case keyboard.MenuShort:
			return beginOrder(c, t, dialog, SideShort)
		case keyboard.MenuHelp:
			return c.Send(t.T("help.text"), keyboard.MainMenu(t))
		}

		if dialog != nil {
			if handled, err := dialog.Continue(c); handled {
				return err
			}
		}
		return c.Send(t.T("help.text"), keyboard.MainMenu(t))
	}
}

func beginOrder(c telebot.Context, t i18n.Translator, dialog *OrderDialog, side Side) error {
	if dialog == nil || c.Sender() == nil {
		return c.Send(t.Tf("order.usage", map[string]string{"side": string(side)}))
	}
	return dialog.Begin(c, side)
}
