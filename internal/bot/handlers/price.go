package handlers

import (
	"context"
	"log/slog"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/himera-trader/internal/bot/keyboard"
	"github.com/Proton-105/himera-trader/internal/domain"
	"github.com/Proton-105/himera-trader/internal/i18n"
)

// MaxSymbolsPerRequest bounds a single /price command.
const MaxSymbolsPerRequest = 10

// PriceService is the part of the price resolver the bot uses.
type PriceService interface {
	GetTokenPrice(ctx context.Context, symbol string) (*domain.CachedTokenData, error)
	GetMultipleTokenPrices(ctx context.Context, symbols []string) []domain.CachedTokenData
}

// PriceHandler serves /price and the retry button.
type PriceHandler struct {
	prices   PriceService
	messages *i18n.Manager
	log      *slog.Logger
}

// NewPriceHandler builds a PriceHandler.
func NewPriceHandler(prices PriceService, messages *i18n.Manager, log *slog.Logger) *PriceHandler {
	if log == nil {
		log = slog.Default()
	}
	return &PriceHandler{prices: prices, messages: messages, log: log}
}

// Command handles "/price SYM [SYM...]". A single symbol failure is returned as an error
// so the error middleware can localize it and offer a retry.
func (h *PriceHandler) Command(c telebot.Context) error {
	t := h.messages.Translator(Lang(c))

	symbols := parseSymbols(commandArgs(c.Text()))
	if len(symbols) == 0 {
		return c.Send(t.T("price.usage"))
	}

	if len(symbols) == 1 {
		return h.single(c, t, symbols[0])
	}

	ctx := RequestContext(c)
	results := h.prices.GetMultipleTokenPrices(ctx, symbols)

	found := make(map[string]bool, len(results))
	cards := make([]string, 0, len(results)+1)
	for _, data := range results {
		found[data.Symbol] = true
		cards = append(cards, priceCard(t, data))
	}

	var missing []string
	for _, symbol := range symbols {
		if !found[symbol] {
			missing = append(missing, symbol)
		}
	}
	if len(missing) > 0 {
		cards = append(cards, t.Tf("price.none_found", map[string]string{"symbols": strings.Join(missing, ", ")}))
	}

	return c.Send(strings.Join(cards, "\n\n"))
}

// Retry handles the price_retry:<SYM> callback.
func (h *PriceHandler) Retry(c telebot.Context) error {
	if err := c.Respond(); err != nil {
		h.log.Warn("failed to answer callback", slog.Any("error", err))
	}

	_, symbol, _ := keyboard.DecodeCallback(c.Callback().Data)
	symbols := parseSymbols([]string{symbol})
	if len(symbols) == 0 {
		return nil
	}

	return h.single(c, h.messages.Translator(Lang(c)), symbols[0])
}

func (h *PriceHandler) single(c telebot.Context, t i18n.Translator, symbol string) error {
	data, err := h.prices.GetTokenPrice(RequestContext(c), symbol)
	if err != nil {
		return err
	}

	return c.Send(priceCard(t, *data))
}

// commandArgs returns the words after the command itself.
func commandArgs(text string) []string {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return fields
	}
	return fields[1:]
}

// parseSymbols upper-cases, strips a leading '$' and de-duplicates, keeping order.
func parseSymbols(args []string) []string {
	seen := make(map[string]bool, len(args))
	symbols := make([]string, 0, len(args))

	for _, arg := range args {
		for _, part := range strings.Split(arg, ",") {
			symbol := strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(part), "$"))
			if symbol == "" || seen[symbol] {
				continue
			}
			seen[symbol] = true
			symbols = append(symbols, symbol)
			if len(symbols) == MaxSymbolsPerRequest {
				return symbols
			}
		}
	}
	return symbols
}
