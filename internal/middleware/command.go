package middleware

import (
	"strings"

	telebot "gopkg.in/telebot.v3"
)

// CommandName returns a low-cardinality name for the update: the command without
// its slash or @bot suffix, the callback unique prefix, or "text".
func CommandName(c telebot.Context) string {
	if c == nil {
		return "unknown"
	}

	if cb := c.Callback(); cb != nil {
		data := strings.TrimPrefix(strings.TrimSpace(cb.Data), "\f")
		unique, _, _ := strings.Cut(data, ":")
		unique, _, _ = strings.Cut(unique, "|")
		if unique == "" {
			return "callback"
		}
		return "cb_" + unique
	}

	text := strings.TrimSpace(c.Text())
	if text == "" {
		return "unknown"
	}
	if !strings.HasPrefix(text, "/") {
		return "text"
	}

	word, _, _ := strings.Cut(text, " ")
	word, _, _ = strings.Cut(word, "@")
	return strings.ToLower(strings.TrimPrefix(word, "/"))
}
