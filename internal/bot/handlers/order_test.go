package handlers

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNewOrderPreview(t *testing.T) {
	entry := decimal.RequireFromString("2500")
	margin := decimal.RequireFromString("100")

	long := NewOrderPreview(SideLong, "ETH", entry, margin, 10)
	assert.Equal(t, "1000", long.Notional.String())
	assert.Equal(t, "0.4", long.Size.String())
	assert.Equal(t, "2250", long.Liquidation.String())

	short := NewOrderPreview(SideShort, "ETH", entry, margin, 10)
	assert.Equal(t, "2750", short.Liquidation.String())
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "1234.50", formatPrice(decimal.NewFromFloat(1234.5)))
	assert.Equal(t, "0.00001234", formatPrice(decimal.NewFromFloat(0.0000123412)))
	assert.Equal(t, "0.5", formatPrice(decimal.NewFromFloat(0.5)))
	assert.Equal(t, "0", formatPrice(decimal.Zero))

	assert.Equal(t, "1.50B", formatCompact(decimal.NewFromInt(1_500_000_000)))
	assert.Equal(t, "12.35K", formatCompact(decimal.NewFromFloat(12_345)))
	assert.Equal(t, "999.00", formatCompact(decimal.NewFromInt(999)))

	assert.Equal(t, "+2.00", formatChange(2))
	assert.Equal(t, "-0.13", formatChange(-0.126))
	assert.Equal(t, "0.00", formatChange(0))
}

func TestParseSymbols(t *testing.T) {
	assert.Equal(t, []string{"BTC", "ETH"}, parseSymbols([]string{"btc,eth", "$BTC", " "}))

	many := make([]string, 0, MaxSymbolsPerRequest+5)
	for i := 0; i < MaxSymbolsPerRequest+5; i++ {
		many = append(many, string(rune('A'+i)))
	}
	assert.Len(t, parseSymbols(many), MaxSymbolsPerRequest)
}
