package keyboard

import (
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/himera-trader/internal/i18n"
)

// Main menu entries; the bot matches incoming text against their translations.
const (
	MenuPrice = "main_menu.price"
	MenuLong  = "main_menu.long"
	MenuShort = "main_menu.short"
	MenuHelp  = "main_menu.help"
)

// MainMenu builds a localized reply keyboard for the bot main menu.
func MainMenu(t i18n.Translator) *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{
		ResizeKeyboard:  true,
		OneTimeKeyboard: false,
	}

	markup.Reply(
		markup.Row(markup.Text(lookup(t, MenuPrice))),
		markup.Row(markup.Text(lookup(t, MenuLong)), markup.Text(lookup(t, MenuShort))),
		markup.Row(markup.Text(lookup(t, MenuHelp))),
	)

	return markup
}

// MenuKey returns the main menu key whose translation equals text, or "".
func MenuKey(t i18n.Translator, text string) string {
	for _, key := range []string{MenuPrice, MenuLong, MenuShort, MenuHelp} {
		if lookup(t, key) == text {
			return key
		}
	}
	return ""
}

func lookup(t i18n.Translator, key string) string {
	if t == nil {
		return key
	}
	return t.T(key)
}
