package handlers

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/himera-trader/internal/i18n"
)

// Side is the direction of an order preview.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

const (
	defaultLeverage = 1
	// MaxLeverage is the highest leverage accepted in an order preview.
	MaxLeverage = 50
)

// OrderPreview is the sizing of a leveraged position at the current price.
type OrderPreview struct {
	Side        Side
	Symbol      string
	Entry       decimal.Decimal
	Margin      decimal.Decimal
	Leverage    int64
	Notional    decimal.Decimal
	Size        decimal.Decimal
	Liquidation decimal.Decimal
}

// NewOrderPreview sizes a position. Liquidation ignores fees and maintenance margin.
func NewOrderPreview(side Side, symbol string, entry, margin decimal.Decimal, leverage int64) OrderPreview {
	lev := decimal.NewFromInt(leverage)
	notional := margin.Mul(lev)

	move := entry.Div(lev)
	liquidation := entry.Sub(move)
	if side == SideShort {
		liquidation = entry.Add(move)
	}

	return OrderPreview{
		Side:        side,
		Symbol:      symbol,
		Entry:       entry,
		Margin:      margin,
		Leverage:    leverage,
		Notional:    notional,
		Size:        notional.DivRound(entry, 8),
		Liquidation: liquidation,
	}
}

// NewOrderHandler serves "/long|/short SYM MARGIN [LEVERAGE]". It only previews the
// order; execution belongs to the trading backend.
func NewOrderHandler(side Side, prices PriceService, messages *i18n.Manager, log *slog.Logger) Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(c telebot.Context) error {
		t := messages.Translator(Lang(c))

		args := commandArgs(c.Text())
		if len(args) < 2 || len(args) > 3 {
			return c.Send(t.Tf("order.usage", map[string]string{"side": string(side)}))
		}

		symbols := parseSymbols(args[:1])
		if len(symbols) == 0 {
			return c.Send(t.Tf("order.usage", map[string]string{"side": string(side)}))
		}

		margin, leverage, rejection := parseOrderInput(t, args[1:])
		if rejection != "" {
			return c.Send(rejection)
		}

		return sendPreview(c, t, prices, log, side, symbols[0], margin, leverage)
	}
}

// parseOrderInput reads "MARGIN [LEVERAGE]". A non-empty rejection is the localized reason the input was refused.
func parseOrderInput(t i18n.Translator, args []string) (decimal.Decimal, int64, string) {
	margin, err := decimal.NewFromString(args[0])
	if err != nil || !margin.IsPositive() {
		return decimal.Zero, 0, t.T("order.invalid_margin")
	}

	leverage := int64(defaultLeverage)
	if len(args) > 1 {
		leverage, err = strconv.ParseInt(args[1], 10, 64)
		if err != nil || leverage < 1 || leverage > MaxLeverage {
			return decimal.Zero, 0, t.Tf("order.invalid_leverage", map[string]string{"max": strconv.Itoa(MaxLeverage)})
		}
	}

	return margin, leverage, ""
}

func sendPreview(c telebot.Context, t i18n.Translator, prices PriceService, log *slog.Logger, side Side, symbol string, margin decimal.Decimal, leverage int64) error {
	data, err := prices.GetTokenPrice(RequestContext(c), symbol)
	if err != nil {
		return err
	}

	entry := decimal.NewFromFloat(data.Price)
	if !entry.IsPositive() {
		log.Warn("order preview with non-positive price", slog.String("symbol", data.Symbol), slog.String("source", string(data.Source)))
		return c.Send(t.T("errors.unavailable"))
	}

	preview := NewOrderPreview(side, data.Symbol, entry, margin, leverage)
	return c.Send(renderPreview(t, preview))
}

func renderPreview(t i18n.Translator, p OrderPreview) string {
	return t.Tf("order.preview", map[string]string{
		"side":        strings.ToUpper(string(p.Side)),
		"symbol":      p.Symbol,
		"price":       formatPrice(p.Entry),
		"margin":      p.Margin.StringFixed(2),
		"leverage":    strconv.FormatInt(p.Leverage, 10),
		"size":        p.Size.String(),
		"notional":    p.Notional.StringFixed(2),
		"liquidation": formatPrice(p.Liquidation),
	})
}
