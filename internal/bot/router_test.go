package bot

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/himera-trader/internal/bot/handlers"
	"github.com/Proton-105/himera-trader/internal/domain"
	apperrors "github.com/Proton-105/himera-trader/internal/errors"
	"github.com/Proton-105/himera-trader/internal/i18n"
	"github.com/Proton-105/himera-trader/internal/middleware"
	"github.com/Proton-105/himera-trader/internal/ratelimit"
	"github.com/Proton-105/himera-trader/internal/testutil"
	"github.com/Proton-105/himera-trader/pkg/config"
	"github.com/Proton-105/himera-trader/pkg/logger"
)

type fakePrices struct {
	data map[string]domain.TokenData
	errs map[string]error
}

func (f *fakePrices) GetTokenPrice(_ context.Context, symbol string) (*domain.CachedTokenData, error) {
	if err, ok := f.errs[symbol]; ok {
		return nil, err
	}
	if data, ok := f.data[symbol]; ok {
		return &domain.CachedTokenData{TokenData: data}, nil
	}
	return nil, apperrors.NewPriceError("TOKEN_NOT_FOUND", symbol, false, nil)
}

func (f *fakePrices) GetMultipleTokenPrices(ctx context.Context, symbols []string) []domain.CachedTokenData {
	var out []domain.CachedTokenData
	for _, s := range symbols {
		if data, err := f.GetTokenPrice(ctx, s); err == nil {
			out = append(out, *data)
		}
	}
	return out
}

type fakeUsers struct {
	created bool
	err     error
	calls   int
}

func (f *fakeUsers) FindByTelegramID(context.Context, int64) (*domain.User, error) {
	return nil, errors.New("not used")
}

func (f *fakeUsers) Upsert(_ context.Context, user *domain.User) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	user.ID = 7
	return f.created, nil
}

func testDeps(t *testing.T) Deps {
	t.Helper()

	messages, err := i18n.Load("en")
	require.NoError(t, err)

	prices := &fakePrices{
		data: map[string]domain.TokenData{
			"BTC": {Symbol: "BTC", Name: "Bitcoin", Price: 64000, Change24h: 1.5, Volume24h: 2_500_000, Source: domain.SourceBinance},
			"ETH": {Symbol: "ETH", Name: "Ethereum", Price: 3000, Change24h: -2, Volume24h: 900, Source: domain.SourceAggregator},
		},
		errs: map[string]error{
			"SLOW": apperrors.NewPriceError("TIMEOUT_ERROR", "SLOW", true, nil),
		},
	}

	return Deps{Prices: prices, Messages: messages}
}

func newTestRouter(t *testing.T, users *fakeUsers, rl *middleware.RateLimitMiddleware) *Router {
	t.Helper()

	deps := testDeps(t)
	deps.RateLimit = rl
	if users != nil {
		deps.Users = users
	}
	return newRouter(deps, testutil.DiscardLogger())
}

func sender() *telebot.User {
	return &telebot.User{ID: 10, FirstName: "Ann", LanguageCode: "en"}
}

func TestRouter_PriceSingle(t *testing.T) {
	r := newTestRouter(t, nil, nil)
	c := testutil.NewMessage(sender(), "/price btc")

	require.NoError(t, r.Route(c))

	text := c.LastText()
	assert.Contains(t, text, "BTC (Bitcoin)")
	assert.Contains(t, text, "Price: $64000.00")
	assert.Contains(t, text, "24h: +1.50%")
	assert.Contains(t, text, "Volume 24h: $2.50M")
	assert.Contains(t, text, "Source: binance")
}

func TestRouter_PriceBatchReportsMissing(t *testing.T) {
	r := newTestRouter(t, nil, nil)
	c := testutil.NewMessage(sender(), "/price@himera_bot ETH, $btc DOGE eth")

	require.NoError(t, r.Route(c))

	text := c.LastText()
	assert.Less(t, strings.Index(text, "ETH (Ethereum)"), strings.Index(text, "BTC (Bitcoin)"))
	assert.Contains(t, text, "No prices found for DOGE")
}

func TestRouter_PriceUsage(t *testing.T) {
	r := newTestRouter(t, nil, nil)
	c := testutil.NewMessage(sender(), "/price")

	require.NoError(t, r.Route(c))
	assert.Equal(t, "Usage: /price SYMBOL [SYMBOL...]", c.LastText())
}

func TestRouter_PriceErrors(t *testing.T) {
	r := newTestRouter(t, nil, nil)

	notFound := testutil.NewMessage(sender(), "/price DOGE")
	require.NoError(t, r.Route(notFound))
	assert.Equal(t, "Token DOGE not found", notFound.LastText())
	assert.Nil(t, notFound.Sent()[0].Markup())

	slow := testutil.NewMessage(sender(), "/price slow")
	require.NoError(t, r.Route(slow))
	assert.Equal(t, "Price providers for SLOW timed out, try again", slow.LastText())

	markup := slow.Sent()[0].Markup()
	require.NotNil(t, markup)
	assert.Equal(t, "price_retry:SLOW", markup.InlineKeyboard[0][0].Data)
}

func TestRouter_PriceRetryCallback(t *testing.T) {
	r := newTestRouter(t, nil, nil)
	c := testutil.NewCallback(sender(), "price_retry:ETH")

	require.NoError(t, r.Route(c))
	assert.Equal(t, 1, c.Responded())
	assert.Contains(t, c.LastText(), "ETH (Ethereum)")
}

func TestRouter_OrderPreview(t *testing.T) {
	r := newTestRouter(t, nil, nil)

	long := testutil.NewMessage(sender(), "/long BTC 100 5")
	require.NoError(t, r.Route(long))
	text := long.LastText()
	assert.Contains(t, text, "LONG BTC preview")
	assert.Contains(t, text, "Margin: $100.00 x5")
	assert.Contains(t, text, "Position: 0.0078125 BTC ($500.00)")
	assert.Contains(t, text, "Liquidation ≈ $51200.00")

	short := testutil.NewMessage(sender(), "/short eth 30")
	require.NoError(t, r.Route(short))
	assert.Contains(t, short.LastText(), "Liquidation ≈ $6000.00")
}

func TestRouter_OrderValidation(t *testing.T) {
	r := newTestRouter(t, nil, nil)

	tests := []struct {
		text string
		want string
	}{
		{"/long", "Usage: /long SYMBOL MARGIN [LEVERAGE]"},
		{"/short BTC -5", "Margin must be a positive number"},
		{"/long BTC abc", "Margin must be a positive number"},
		{"/long BTC 10 100", "Leverage must be between 1 and 50"},
		{"/long DOGE 10", "Token DOGE not found"},
	}

	for _, tt := range tests {
		c := testutil.NewMessage(sender(), tt.text)
		require.NoError(t, r.Route(c))
		assert.Equal(t, tt.want, c.LastText(), tt.text)
	}
}

func TestRouter_StartRegistersUser(t *testing.T) {
	users := &fakeUsers{created: true}
	r := newTestRouter(t, users, nil)

	c := testutil.NewMessage(sender(), "/start")
	require.NoError(t, r.Route(c))

	assert.Equal(t, 1, users.calls)
	assert.True(t, strings.HasPrefix(c.LastText(), "Welcome to Himera, Ann!"))
	require.NotNil(t, c.Sent()[0].Markup())
	assert.True(t, c.Sent()[0].Markup().ResizeKeyboard)

	users.created = false
	again := testutil.NewMessage(sender(), "/start")
	require.NoError(t, r.Route(again))
	assert.True(t, strings.HasPrefix(again.LastText(), "Welcome back, Ann!"))
}

func TestRouter_StartSurvivesStorageFailure(t *testing.T) {
	users := &fakeUsers{err: errors.New("db down")}
	r := newTestRouter(t, users, nil)

	c := testutil.NewMessage(sender(), "/start")
	require.NoError(t, r.Route(c))
	assert.True(t, strings.HasPrefix(c.LastText(), "Welcome back, Ann!"))
}

func TestRouter_MenuAndFallback(t *testing.T) {
	r := newTestRouter(t, nil, nil)

	menu := testutil.NewMessage(sender(), "📈 Long")
	require.NoError(t, r.Route(menu))
	assert.Equal(t, "Usage: /long SYMBOL MARGIN [LEVERAGE]", menu.LastText())

	other := testutil.NewMessage(sender(), "/unknown")
	require.NoError(t, r.Route(other))
	assert.Contains(t, other.LastText(), "/price SYMBOL")
}

func TestRouter_RateLimitedReply(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(testutil.DiscardLogger())
	rules := ratelimit.NewRules(config.RateLimitConfig{
		Enabled:  true,
		Commands: config.RateLimitCommands{Price: config.RateLimitRule{Limit: 1, Window: "1m"}},
	})
	r := newTestRouter(t, nil, middleware.NewRateLimitMiddleware(limiter, rules, testutil.DiscardLogger()))

	first := testutil.NewMessage(sender(), "/price BTC")
	require.NoError(t, r.Route(first))
	assert.Contains(t, first.LastText(), "BTC (Bitcoin)")

	second := testutil.NewMessage(sender(), "/price BTC")
	require.NoError(t, r.Route(second))
	assert.Regexp(t, `^Too many requests\. Try again in \d+ seconds$`, second.LastText())
}

func TestRouter_RecoversFromPanic(t *testing.T) {
	r := newTestRouter(t, nil, nil)
	r.RegisterCommand("/boom", func(telebot.Context) error { panic("kaboom") })

	c := testutil.NewMessage(sender(), "/boom")
	require.NoError(t, r.Route(c))
	assert.Equal(t, "Something went wrong. Please try again later", c.LastText())
}

func TestRouter_CorrelationIDPerUpdate(t *testing.T) {
	r := newTestRouter(t, nil, nil)

	var seen context.Context
	r.RegisterCommand("/ctx", func(c telebot.Context) error {
		seen = handlers.RequestContext(c)
		return nil
	})

	require.NoError(t, r.Route(testutil.NewMessage(sender(), "/ctx")))
	require.NotNil(t, seen)

	first := logger.CorrelationIDFromContext(seen)
	assert.NotEmpty(t, first)

	require.NoError(t, r.Route(testutil.NewMessage(sender(), "/ctx")))
	assert.NotEqual(t, first, logger.CorrelationIDFromContext(seen))
}

func TestCommandOf(t *testing.T) {
	assert.Equal(t, "/price", commandOf("/PRICE@himera_bot btc"))
	assert.Equal(t, "/start", commandOf("/start"))
}
