package handlers

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Proton-105/himera-trader/internal/domain"
	"github.com/Proton-105/himera-trader/internal/i18n"
)

var (
	thousand = decimal.NewFromInt(1_000)
	million  = decimal.NewFromInt(1_000_000)
	billion  = decimal.NewFromInt(1_000_000_000)
)

// formatPrice keeps two decimals above one unit and up to eight significant decimals below it.
func formatPrice(d decimal.Decimal) string {
	if d.Abs().GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return d.StringFixed(2)
	}
	s := d.StringFixed(8)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	if s == "" || s == "-" {
		return "0"
	}
	return s
}

// formatCompact renders large amounts as 1.23K, 4.56M or 7.89B.
func formatCompact(d decimal.Decimal) string {
	abs := d.Abs()
	switch {
	case abs.GreaterThanOrEqual(billion):
		return d.Div(billion).StringFixed(2) + "B"
	case abs.GreaterThanOrEqual(million):
		return d.Div(million).StringFixed(2) + "M"
	case abs.GreaterThanOrEqual(thousand):
		return d.Div(thousand).StringFixed(2) + "K"
	default:
		return d.StringFixed(2)
	}
}

func formatChange(change float64) string {
	d := decimal.NewFromFloat(change).Round(2)
	if d.IsPositive() {
		return "+" + d.StringFixed(2)
	}
	return d.StringFixed(2)
}

func priceCard(t i18n.Translator, data domain.CachedTokenData) string {
	cached := ""
	if data.IsCached {
		cached = t.T("price.cached")
	}

	name := data.Name
	if name == "" {
		name = data.Symbol
	}

	return strings.TrimSpace(t.Tf("price.card", map[string]string{
		"symbol": data.Symbol,
		"name":   name,
		"price":  formatPrice(decimal.NewFromFloat(data.Price)),
		"change": formatChange(data.Change24h),
		"volume": formatCompact(decimal.NewFromFloat(data.Volume24h)),
		"source": string(data.Source),
		"cached": cached,
	}))
}
