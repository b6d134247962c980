package keyboard_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/himera-trader/internal/bot/keyboard"
)

type mockTranslator struct {
	translations map[string]string
}

func newTranslator(translations map[string]string) *mockTranslator {
	return &mockTranslator{translations: translations}
}

func (m *mockTranslator) T(key string) string {
	if val, ok := m.translations[key]; ok {
		return val
	}
	return key
}

func (m *mockTranslator) Tf(key string, _ map[string]string) string { return m.T(key) }

func (m *mockTranslator) Lang() string { return "en" }

func TestMainMenu(t *testing.T) {
	translator := newTranslator(map[string]string{
		keyboard.MenuPrice: "Prices",
		keyboard.MenuLong:  "Long",
		keyboard.MenuShort: "Short",
		keyboard.MenuHelp:  "Help",
	})

	markup := keyboard.MainMenu(translator)
	assert.True(t, markup.ResizeKeyboard)

	expectedRows := [][]string{
		{"Prices"},
		{"Long", "Short"},
		{"Help"},
	}

	require.Len(t, markup.ReplyKeyboard, len(expectedRows))
	for i, row := range expectedRows {
		require.Len(t, markup.ReplyKeyboard[i], len(row))
		for j, text := range row {
			assert.Equal(t, text, markup.ReplyKeyboard[i][j].Text)
		}
	}

	assert.Equal(t, keyboard.MenuShort, keyboard.MenuKey(translator, "Short"))
	assert.Empty(t, keyboard.MenuKey(translator, "Portfolio"))
}
