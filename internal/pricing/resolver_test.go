package pricing

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/himera-trader/internal/cache"
	"github.com/Proton-105/himera-trader/internal/domain"
	apperrors "github.com/Proton-105/himera-trader/internal/errors"
	"github.com/Proton-105/himera-trader/internal/provider"
	"github.com/Proton-105/himera-trader/internal/provider/aggregator"
	"github.com/Proton-105/himera-trader/internal/provider/binance"
	"github.com/Proton-105/himera-trader/internal/provider/coingecko"
	"github.com/Proton-105/himera-trader/internal/provider/hyperliquid"
	appredis "github.com/Proton-105/himera-trader/pkg/redis"
)

type mockAggregator struct{ mock.Mock }

func (m *mockAggregator) Trending(ctx context.Context) ([]aggregator.Record, error) {
	args := m.Called(ctx)
	records, _ := args.Get(0).([]aggregator.Record)
	return records, args.Error(1)
}

type mockMid struct{ mock.Mock }

func (m *mockMid) Mid(ctx context.Context, coin string) (hyperliquid.Mid, error) {
	args := m.Called(ctx, coin)
	mid, _ := args.Get(0).(hyperliquid.Mid)
	return mid, args.Error(1)
}

type mockExchange struct{ mock.Mock }

func (m *mockExchange) Price(ctx context.Context, pair string) (*binance.TickerPrice, error) {
	args := m.Called(ctx, pair)
	price, _ := args.Get(0).(*binance.TickerPrice)
	return price, args.Error(1)
}

func (m *mockExchange) Stats24h(ctx context.Context, pair string) (*binance.Ticker24h, error) {
	args := m.Called(ctx, pair)
	stats, _ := args.Get(0).(*binance.Ticker24h)
	return stats, args.Error(1)
}

type mockReference struct{ mock.Mock }

func (m *mockReference) SimplePrice(ctx context.Context, id string) (coingecko.SimplePrice, error) {
	args := m.Called(ctx, id)
	price, _ := args.Get(0).(coingecko.SimplePrice)
	return price, args.Error(1)
}

type fixture struct {
	mr       *miniredis.Miniredis
	store    *cache.Store
	agg      *mockAggregator
	mid      *mockMid
	exchange *mockExchange
	ref      *mockReference
	resolver *Resolver
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{
		mr:       mr,
		store:    cache.New(appredis.Wrap(client), testLogger()),
		agg:      &mockAggregator{},
		mid:      &mockMid{},
		exchange: &mockExchange{},
		ref:      &mockReference{},
	}

	f.resolver = NewResolver(f.store, Providers{
		Aggregator:  f.agg,
		Hyperliquid: f.mid,
		Binance:     f.exchange,
		Coingecko:   f.ref,
	}, Config{
		TTL:          time.Minute,
		Aliases:      map[string]string{"BTC": "WBTC", "ETH": "WETH"},
		QuoteAsset:   "USDT",
		ReferenceIDs: map[string]string{"BTC": "bitcoin", "ETH": "ethereum"},
	}, testLogger(), WithClock(func() time.Time { return fixedNow }))

	return f
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func wrappedListing() []aggregator.Record {
	return []aggregator.Record{
		{"symbol": "WBTC", "name": "Wrapped Bitcoin", "price": "$65,000.50", "change24h": 1.5, "volume24h": "1000000", "market_cap": 1e12},
		{"ticker": "WETH", "token_name": "Wrapped Ether", "price_usd": 3200.0, "price_change_24h": -0.4, "total_volume": 500000},
	}
}

func notFound(name, what string) error {
	return provider.NotFound(name, what)
}

func TestResolver_SecondLookupIsCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.agg.On("Trending", mock.Anything).Return(wrappedListing(), nil).Once()

	first, err := f.resolver.GetTokenPrice(ctx, "BTC")
	require.NoError(t, err)
	assert.False(t, first.IsCached)
	assert.Nil(t, first.CacheMeta)
	assert.Equal(t, domain.SourceAggregator, first.Source)
	assert.Equal(t, "BTC", first.Symbol)
	assert.Equal(t, 65000.50, first.Price)

	f.store.Wait()

	second, err := f.resolver.GetTokenPrice(ctx, "BTC")
	require.NoError(t, err)
	assert.True(t, second.IsCached)
	require.NotNil(t, second.CacheMeta)
	assert.Equal(t, "token_price_BTC", second.CacheMeta.Key)
	assert.Equal(t, time.Minute, second.CacheMeta.TTL)
	assert.Equal(t, first.TokenData, second.TokenData)

	f.agg.AssertNumberOfCalls(t, "Trending", 1)
}

func TestResolver_FallsThroughToSecondProvider(t *testing.T) {
	f := newFixture(t)
	f.agg.On("Trending", mock.Anything).Return(wrappedListing(), nil)
	f.mid.On("Mid", mock.Anything, "SOL").Return(hyperliquid.Mid{Coin: "SOL", Px: "150.25"}, nil)

	got, err := f.resolver.GetTokenPrice(context.Background(), "sol")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceHyperliquid, got.Source)
	assert.Equal(t, 150.25, got.Price)

	f.exchange.AssertNotCalled(t, "Price", mock.Anything, mock.Anything)
}

func TestResolver_ExchangeUsesQuotePair(t *testing.T) {
	f := newFixture(t)
	f.agg.On("Trending", mock.Anything).Return(nil, &provider.Error{Provider: aggregator.Name, Kind: provider.KindServer})
	f.mid.On("Mid", mock.Anything, "DOGE").Return(hyperliquid.Mid{}, notFound(hyperliquid.Name, "DOGE"))
	f.exchange.On("Price", mock.Anything, "DOGEUSDT").Return(&binance.TickerPrice{Symbol: "DOGEUSDT", Price: "0.12"}, nil)
	f.exchange.On("Stats24h", mock.Anything, "DOGEUSDT").Return(&binance.Ticker24h{
		Symbol: "DOGEUSDT", PriceChangePercent: "3.5", QuoteVolume: "90000", HighPrice: "0.13", LowPrice: "0.11",
	}, nil)

	got, err := f.resolver.GetTokenPrice(context.Background(), "DOGE")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceBinance, got.Source)
	assert.Equal(t, 0.12, got.Price)
	assert.Equal(t, 3.5, got.Change24h)
	assert.Equal(t, 0.13, got.High24h)
}

func TestResolver_ReferenceProviderLast(t *testing.T) {
	f := newFixture(t)
	f.agg.On("Trending", mock.Anything).Return([]aggregator.Record{}, nil)
	f.mid.On("Mid", mock.Anything, "ETH").Return(hyperliquid.Mid{}, notFound(hyperliquid.Name, "ETH"))
	f.exchange.On("Price", mock.Anything, "ETHUSDT").Return(nil, &provider.Error{Provider: binance.Name, Kind: provider.KindTimeout})

	usd, change, vol := 3100.0, 1.0, 2000.0
	f.ref.On("SimplePrice", mock.Anything, "ethereum").Return(coingecko.SimplePrice{USD: &usd, USD24hChange: &change, USD24hVol: &vol}, nil)

	got, err := f.resolver.GetTokenPrice(context.Background(), "ETH")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceCoingecko, got.Source)
	assert.Equal(t, "Ethereum", got.Name)
	assert.Equal(t, 3100.0, got.Price)
}

func TestResolver_BatchOmitsFailures(t *testing.T) {
	f := newFixture(t)
	f.agg.On("Trending", mock.Anything).Return(wrappedListing(), nil)
	f.mid.On("Mid", mock.Anything, "NOPE123").Return(hyperliquid.Mid{}, notFound(hyperliquid.Name, "NOPE123"))
	f.exchange.On("Price", mock.Anything, "NOPE123USDT").Return(nil, notFound(binance.Name, "NOPE123USDT"))

	got := f.resolver.GetMultipleTokenPrices(context.Background(), []string{"BTC", "NOPE123", "ETH"})

	require.Len(t, got, 2)
	assert.Equal(t, "BTC", got[0].Symbol)
	assert.Equal(t, "ETH", got[1].Symbol)
	f.ref.AssertNotCalled(t, "SimplePrice", mock.Anything, mock.Anything)
}

func TestResolver_NegativePriceMovesToNextProvider(t *testing.T) {
	f := newFixture(t)
	f.agg.On("Trending", mock.Anything).Return([]aggregator.Record{
		{"symbol": "ETH", "name": "Ether", "price": -5, "change24h": 0, "volume24h": 10},
	}, nil)
	f.mid.On("Mid", mock.Anything, "ETH").Return(hyperliquid.Mid{Coin: "ETH", Px: 3000.0}, nil)

	got, err := f.resolver.GetTokenPrice(context.Background(), "ETH")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceHyperliquid, got.Source)
	assert.Equal(t, 3000.0, got.Price)
}

func TestResolver_EmptyExchangePayloadFallsThrough(t *testing.T) {
	f := newFixture(t)
	f.agg.On("Trending", mock.Anything).Return([]aggregator.Record{}, nil)
	f.mid.On("Mid", mock.Anything, "BTC").Return(hyperliquid.Mid{}, notFound(hyperliquid.Name, "BTC"))
	f.exchange.On("Price", mock.Anything, "BTCUSDT").Return(&binance.TickerPrice{}, nil)
	f.exchange.On("Stats24h", mock.Anything, "BTCUSDT").Return(&binance.Ticker24h{}, nil)

	usd, change, vol := 64000.0, 2.0, 5e9
	f.ref.On("SimplePrice", mock.Anything, "bitcoin").Return(coingecko.SimplePrice{USD: &usd, USD24hChange: &change, USD24hVol: &vol}, nil)

	got, err := f.resolver.GetTokenPrice(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceCoingecko, got.Source)
	assert.Equal(t, 64000.0, got.Price)
	f.exchange.AssertCalled(t, "Stats24h", mock.Anything, "BTCUSDT")
}

func TestResolver_AliasResolvesWrappedTicker(t *testing.T) {
	f := newFixture(t)
	f.agg.On("Trending", mock.Anything).Return([]aggregator.Record{
		{"symbol": "WBTC", "name": "Wrapped BTC", "price": 64000, "change24h": 0.1, "volume24h": 1},
	}, nil)

	got, err := f.resolver.GetTokenPrice(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceAggregator, got.Source)
	assert.Equal(t, "Wrapped BTC", got.Name)
}

func TestResolver_CacheKeyIsNormalized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.agg.On("Trending", mock.Anything).Return(wrappedListing(), nil).Once()

	_, err := f.resolver.GetTokenPrice(ctx, "btc")
	require.NoError(t, err)
	f.store.Wait()

	assert.True(t, f.mr.Exists("token_price_BTC"))

	got, err := f.resolver.GetTokenPrice(ctx, "BTC ")
	require.NoError(t, err)
	assert.True(t, got.IsCached)
}

func TestResolver_ClearTokenCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.agg.On("Trending", mock.Anything).Return(wrappedListing(), nil)

	_, err := f.resolver.GetTokenPrice(ctx, "ETH")
	require.NoError(t, err)
	f.store.Wait()

	assert.True(t, f.resolver.ClearTokenCache(ctx, "eth"))

	got, err := f.resolver.GetTokenPrice(ctx, "ETH")
	require.NoError(t, err)
	assert.False(t, got.IsCached)
	f.agg.AssertNumberOfCalls(t, "Trending", 2)
}

// slowBackend delays every write so write-backs are still pending when a test moves on.
type slowBackend struct {
	*appredis.Client
	delay time.Duration
}

func (b *slowBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	time.Sleep(b.delay)
	return b.Client.Set(ctx, key, value, ttl)
}

func TestResolver_ClearWinsOverPendingWriteBack(t *testing.T) {
	f := newFixture(t)
	client := redis.NewClient(&redis.Options{Addr: f.mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	store := cache.New(&slowBackend{Client: appredis.Wrap(client), delay: 30 * time.Millisecond}, testLogger())
	resolver := NewResolver(store, Providers{Aggregator: f.agg}, Config{
		TTL:     time.Minute,
		Aliases: map[string]string{"ETH": "WETH"},
	}, testLogger())
	f.agg.On("Trending", mock.Anything).Return(wrappedListing(), nil)
	ctx := context.Background()

	first, err := resolver.GetTokenPrice(ctx, "ETH")
	require.NoError(t, err)
	assert.False(t, first.IsCached)

	resolver.ClearTokenCache(ctx, "ETH")
	store.Wait()

	second, err := resolver.GetTokenPrice(ctx, "ETH")
	require.NoError(t, err)
	assert.False(t, second.IsCached)
	f.agg.AssertNumberOfCalls(t, "Trending", 2)

	resolver.ClearAllTokenCache(ctx)
	store.Wait()
	assert.False(t, f.mr.Exists(CacheKey("ETH")))
}

func TestResolver_ClearAllTokenCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.agg.On("Trending", mock.Anything).Return(wrappedListing(), nil)

	f.resolver.GetMultipleTokenPrices(ctx, []string{"BTC", "ETH"})
	f.store.Wait()
	require.NoError(t, f.mr.Set("unrelated", "1"))

	assert.Equal(t, 2, f.resolver.ClearAllTokenCache(ctx))
	assert.True(t, f.mr.Exists("unrelated"))
}

func TestResolver_AllNotFound(t *testing.T) {
	f := newFixture(t)
	f.agg.On("Trending", mock.Anything).Return([]aggregator.Record{}, nil)
	f.mid.On("Mid", mock.Anything, "ZZZ").Return(hyperliquid.Mid{}, notFound(hyperliquid.Name, "ZZZ"))
	f.exchange.On("Price", mock.Anything, "ZZZUSDT").Return(nil, notFound(binance.Name, "ZZZUSDT"))

	_, err := f.resolver.GetTokenPrice(context.Background(), "ZZZ")
	require.Error(t, err)

	assert.Equal(t, KindTokenNotFound, KindOf(err))
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.False(t, appErr.Retryable)
	assert.Equal(t, "errors.price.token_not_found", appErr.MessageKey)
	f.ref.AssertNotCalled(t, "SimplePrice", mock.Anything, mock.Anything)
}

func TestResolver_TerminalKindIsLastRealFailure(t *testing.T) {
	f := newFixture(t)
	f.agg.On("Trending", mock.Anything).Return(nil, &provider.Error{Provider: aggregator.Name, Kind: provider.KindRateLimited, Status: 429})
	f.mid.On("Mid", mock.Anything, "BTC").Return(hyperliquid.Mid{}, notFound(hyperliquid.Name, "BTC"))
	f.exchange.On("Price", mock.Anything, "BTCUSDT").Return(nil, &provider.Error{Provider: binance.Name, Kind: provider.KindServer, Status: 503})
	f.ref.On("SimplePrice", mock.Anything, "bitcoin").Return(coingecko.SimplePrice{}, notFound(coingecko.Name, "bitcoin"))

	_, err := f.resolver.GetTokenPrice(context.Background(), "BTC")

	assert.Equal(t, KindServer, KindOf(err))
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.True(t, appErr.Retryable)
}

func TestResolver_EmptySymbol(t *testing.T) {
	f := newFixture(t)

	_, err := f.resolver.GetTokenPrice(context.Background(), "   ")
	assert.Equal(t, KindTokenNotFound, KindOf(err))
	f.agg.AssertNotCalled(t, "Trending", mock.Anything)
}

func TestResolver_CoalescesConcurrentMisses(t *testing.T) {
	f := newFixture(t)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	f.agg.On("Trending", mock.Anything).Run(func(mock.Arguments) {
		once.Do(func() { close(started) })
		<-release
	}).Return(wrappedListing(), nil)

	const callers = 5
	results := make([]*domain.CachedTokenData, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.resolver.GetTokenPrice(context.Background(), "BTC")
			assert.NoError(t, err)
			results[i] = res
		}()
	}

	<-started
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	f.agg.AssertNumberOfCalls(t, "Trending", 1)
	for _, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, 65000.50, res.Price)
	}
}

func TestResolver_CallerContextEndingMapsKind(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	f.agg.On("Trending", mock.Anything).Run(func(mock.Arguments) { <-release }).Return([]aggregator.Record{}, nil)
	resolver := NewResolver(f.store, Providers{Aggregator: f.agg}, Config{TTL: time.Minute}, testLogger())

	cancelled, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := resolver.GetTokenPrice(cancelled, "ETH")
	require.Error(t, err)
	assert.Equal(t, KindUnknown, KindOf(err))
	assert.ErrorIs(t, err, context.Canceled)

	expired, cancelTimeout := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelTimeout()
	_, err = resolver.GetTokenPrice(expired, "SOL")
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResolver_SurvivesCacheOutage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.agg.On("Trending", mock.Anything).Return(wrappedListing(), nil).Once()

	f.mr.Close()

	first, err := f.resolver.GetTokenPrice(ctx, "ETH")
	require.NoError(t, err)
	assert.False(t, first.IsCached)
	f.store.Wait()

	second, err := f.resolver.GetTokenPrice(ctx, "ETH")
	require.NoError(t, err)
	assert.True(t, second.IsCached)
}

func TestResolver_SetTTL(t *testing.T) {
	f := newFixture(t)

	f.resolver.SetTTL(5 * time.Minute)
	assert.Equal(t, 5*time.Minute, f.resolver.TTL())

	f.resolver.SetTTL(0)
	assert.Equal(t, defaultTTL, f.resolver.TTL())
}

func TestResolver_RefreshBypassesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.agg.On("Trending", mock.Anything).Return(wrappedListing(), nil)

	_, err := f.resolver.GetTokenPrice(ctx, "BTC")
	require.NoError(t, err)
	f.store.Wait()

	got, err := f.resolver.Refresh(ctx, "BTC")
	require.NoError(t, err)
	assert.False(t, got.IsCached)
	f.agg.AssertNumberOfCalls(t, "Trending", 2)
}
