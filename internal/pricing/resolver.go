// Package pricing resolves ticker symbols into validated price records.
//
// A lookup consults the cache first. On a miss the upstreams are tried strictly
// in order (aggregator, mid-price feed, exchange ticker, reference API) and the
// first record that normalizes and validates is returned and written back to the
// cache in the background. Concurrent misses for the same symbol share one
// upstream resolution.
package pricing

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"golang.org/x/sync/singleflight"

	"github.com/Proton-105/himera-trader/internal/domain"
	"github.com/Proton-105/himera-trader/internal/provider"
	"github.com/Proton-105/himera-trader/internal/provider/aggregator"
	"github.com/Proton-105/himera-trader/internal/provider/binance"
	"github.com/Proton-105/himera-trader/internal/provider/coingecko"
	"github.com/Proton-105/himera-trader/internal/provider/hyperliquid"
	"github.com/Proton-105/himera-trader/pkg/metrics"
)

// CacheKeyPrefix namespaces price entries in the cache.
const CacheKeyPrefix = "token_price_"

const defaultTTL = 60 * time.Second

// CacheKey returns the cache key for symbol.
func CacheKey(symbol string) string {
	return CacheKeyPrefix + NormalizeSymbol(symbol)
}

// Cache is the storage the resolver needs. *cache.Store satisfies it.
type Cache interface {
	Get(ctx context.Context, key string, dst any) bool
	SetAsync(ctx context.Context, key string, value any, ttl time.Duration)
	Delete(ctx context.Context, key string) bool
	DeletePrefix(ctx context.Context, prefix string) int
}

// TrendingLister is the primary aggregator listing.
type TrendingLister interface {
	Trending(ctx context.Context) ([]aggregator.Record, error)
}

// MidPricer looks up a mid price by exact ticker.
type MidPricer interface {
	Mid(ctx context.Context, coin string) (hyperliquid.Mid, error)
}

// ExchangeTicker serves quote-paired exchange tickers.
type ExchangeTicker interface {
	Price(ctx context.Context, pair string) (*binance.TickerPrice, error)
	Stats24h(ctx context.Context, pair string) (*binance.Ticker24h, error)
}

// ReferencePricer serves quotes keyed by reference coin id.
type ReferencePricer interface {
	SimplePrice(ctx context.Context, id string) (coingecko.SimplePrice, error)
}

// Providers are the upstreams in resolution order. A nil provider is skipped.
type Providers struct {
	Aggregator  TrendingLister
	Hyperliquid MidPricer
	Binance     ExchangeTicker
	Coingecko   ReferencePricer
}

// Config configures a Resolver.
type Config struct {
	TTL        time.Duration
	Aliases    map[string]string
	QuoteAsset string
	// ReferenceIDs maps tickers to reference coin ids. Unmapped tickers skip the reference provider.
	ReferenceIDs map[string]string
}

// cacheEntry is what the resolver stores per symbol.
type cacheEntry struct {
	Data      domain.TokenData `json:"data"`
	TTL       time.Duration    `json:"ttl"`
	CreatedAt time.Time        `json:"created_at"`
}

type step struct {
	source domain.Source
	fetch  func(ctx context.Context, symbol string) (domain.TokenData, error)
}

// Resolver is the price query surface used by bot commands, the HTTP API and the refresh job.
type Resolver struct {
	cache      Cache
	matcher    *Matcher
	normalizer *Normalizer
	refIDs     map[string]string
	chain      []step
	ttl        atomic.Int64
	group      singleflight.Group
	log        *slog.Logger
	now        func() time.Time
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithClock overrides the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// NewResolver builds a Resolver over cache and the given upstreams.
func NewResolver(cache Cache, providers Providers, cfg Config, log *slog.Logger, opts ...Option) *Resolver {
	if log == nil {
		log = slog.Default()
	}

	r := &Resolver{
		cache:   cache,
		matcher: NewMatcher(cfg.Aliases, cfg.QuoteAsset),
		refIDs:  make(map[string]string, len(cfg.ReferenceIDs)),
		log:     log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.normalizer = NewNormalizer(r.now)
	r.SetTTL(cfg.TTL)

	for ticker, id := range cfg.ReferenceIDs {
		r.refIDs[NormalizeSymbol(ticker)] = id
	}

	if providers.Aggregator != nil {
		r.chain = append(r.chain, step{domain.SourceAggregator, r.fromAggregator(providers.Aggregator)})
	}
	if providers.Hyperliquid != nil {
		r.chain = append(r.chain, step{domain.SourceHyperliquid, r.fromMid(providers.Hyperliquid)})
	}
	if providers.Binance != nil {
		r.chain = append(r.chain, step{domain.SourceBinance, r.fromExchange(providers.Binance)})
	}
	if providers.Coingecko != nil {
		r.chain = append(r.chain, step{domain.SourceCoingecko, r.fromReference(providers.Coingecko)})
	}

	return r
}

// SetTTL changes the cache lifetime used for subsequent write-backs. Non-positive values restore the default.
func (r *Resolver) SetTTL(ttl time.Duration) {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	r.ttl.Store(int64(ttl))
}

// TTL returns the current cache lifetime.
func (r *Resolver) TTL() time.Duration {
	return time.Duration(r.ttl.Load())
}

// GetTokenPrice returns the price record for symbol, from cache when fresh.
// On failure the error is an *errors.AppError whose code is an ErrorKind.
func (r *Resolver) GetTokenPrice(ctx context.Context, symbol string) (*domain.CachedTokenData, error) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, newError(KindTokenNotFound, symbol, errors.New("empty symbol"))
	}

	key := CacheKey(symbol)

	var entry cacheEntry
	if r.cache.Get(ctx, key, &entry) {
		metrics.RecordResolution("cached")
		return &domain.CachedTokenData{
			TokenData: entry.Data,
			IsCached:  true,
			CacheMeta: &domain.CacheMeta{Key: key, TTL: entry.TTL, CreatedAt: entry.CreatedAt},
		}, nil
	}

	return r.resolveShared(ctx, symbol, key)
}

// Refresh bypasses the cache lookup, resolves symbol upstream and stores the result.
func (r *Resolver) Refresh(ctx context.Context, symbol string) (*domain.CachedTokenData, error) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, newError(KindTokenNotFound, symbol, errors.New("empty symbol"))
	}
	return r.resolveShared(ctx, symbol, CacheKey(symbol))
}

// GetMultipleTokenPrices resolves every symbol concurrently. Symbols that fail are
// omitted; the rest keep their input order.
func (r *Resolver) GetMultipleTokenPrices(ctx context.Context, symbols []string) []domain.CachedTokenData {
	results := make([]*domain.CachedTokenData, len(symbols))

	var wg conc.WaitGroup
	for i, symbol := range symbols {
		wg.Go(func() {
			data, err := r.GetTokenPrice(ctx, symbol)
			if err != nil {
				r.log.Debug("batch price lookup dropped symbol", slog.String("symbol", symbol), slog.Any("error", err))
				return
			}
			results[i] = data
		})
	}
	wg.Wait()

	out := make([]domain.CachedTokenData, 0, len(symbols))
	for _, data := range results {
		if data != nil {
			out = append(out, *data)
		}
	}
	return out
}

// ClearTokenCache drops the cached record of symbol.
func (r *Resolver) ClearTokenCache(ctx context.Context, symbol string) bool {
	return r.cache.Delete(ctx, CacheKey(symbol))
}

// ClearAllTokenCache drops every cached price record and returns how many were removed.
func (r *Resolver) ClearAllTokenCache(ctx context.Context) int {
	return r.cache.DeletePrefix(ctx, CacheKeyPrefix)
}

// resolveShared runs one upstream resolution per key at a time. The shared work is detached
// from the caller's cancellation; each caller still stops waiting when its own ctx ends.
func (r *Resolver) resolveShared(ctx context.Context, symbol, key string) (*domain.CachedTokenData, error) {
	detached := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (any, error) {
		return r.resolve(detached, symbol, key)
	})

	select {
	case res := <-ch:
		if res.Shared {
			metrics.RecordCoalesced()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		data := *res.Val.(*domain.CachedTokenData)
		return &data, nil
	case <-ctx.Done():
		kind := KindUnknown
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = KindTimeout
		}
		return nil, newError(kind, symbol, ctx.Err())
	}
}

func (r *Resolver) resolve(ctx context.Context, symbol, key string) (*domain.CachedTokenData, error) {
	kinds := make([]ErrorKind, 0, len(r.chain))
	var lastErr error

	for _, s := range r.chain {
		start := time.Now()
		data, err := s.fetch(ctx, symbol)
		elapsed := time.Since(start)

		if err != nil {
			kind := attemptKind(err)
			kinds = append(kinds, kind)
			lastErr = err

			metrics.RecordProviderAttempt(string(s.source), attemptResult(err), elapsed)
			r.logAttempt(s.source, symbol, kind, err)
			continue
		}

		metrics.RecordProviderAttempt(string(s.source), "ok", elapsed)
		metrics.RecordResolution(string(s.source))

		ttl := r.TTL()
		r.cache.SetAsync(ctx, key, cacheEntry{Data: data, TTL: ttl, CreatedAt: r.now()}, ttl)

		return &domain.CachedTokenData{TokenData: data}, nil
	}

	kind := terminalKind(kinds)
	metrics.RecordResolution(string(kind))
	r.log.Warn("price resolution failed",
		slog.String("symbol", symbol),
		slog.String("kind", string(kind)),
		slog.Int("providers", len(r.chain)),
	)

	return nil, newError(kind, symbol, lastErr)
}

func (r *Resolver) logAttempt(source domain.Source, symbol string, kind ErrorKind, err error) {
	attrs := []any{
		slog.String("provider", string(source)),
		slog.String("symbol", symbol),
		slog.String("kind", string(kind)),
		slog.Any("error", err),
	}
	if kind == KindTokenNotFound {
		r.log.Debug("provider has no price", attrs...)
		return
	}
	r.log.Warn("provider attempt failed", attrs...)
}

func attemptResult(err error) string {
	switch {
	case errors.Is(err, errSkipped):
		return "skipped"
	case errors.Is(err, ErrInvalidData):
		return "invalid"
	default:
		return string(provider.KindOf(err))
	}
}

func (r *Resolver) fromAggregator(p TrendingLister) func(context.Context, string) (domain.TokenData, error) {
	return func(ctx context.Context, symbol string) (domain.TokenData, error) {
		records, err := p.Trending(ctx)
		if err != nil {
			return domain.TokenData{}, err
		}

		rec, ok := Match(r.matcher, records, symbol, func(rec aggregator.Record) (string, string) {
			sym, _ := pick(rec, symbolFields)
			name, _ := pick(rec, nameFields)
			return stringOf(sym), stringOf(name)
		})
		if !ok {
			return domain.TokenData{}, provider.NotFound(aggregator.Name, symbol)
		}
		return r.normalizer.FromAggregator(rec, symbol)
	}
}

func (r *Resolver) fromMid(p MidPricer) func(context.Context, string) (domain.TokenData, error) {
	return func(ctx context.Context, symbol string) (domain.TokenData, error) {
		mid, err := p.Mid(ctx, symbol)
		if err != nil {
			return domain.TokenData{}, err
		}
		return r.normalizer.FromMid(mid, symbol)
	}
}

func (r *Resolver) fromExchange(p ExchangeTicker) func(context.Context, string) (domain.TokenData, error) {
	return func(ctx context.Context, symbol string) (domain.TokenData, error) {
		pair := r.matcher.Pair(symbol)

		price, err := p.Price(ctx, pair)
		if err != nil {
			return domain.TokenData{}, err
		}
		stats, err := p.Stats24h(ctx, pair)
		if err != nil {
			return domain.TokenData{}, err
		}
		return r.normalizer.FromExchange(price, stats, symbol)
	}
}

func (r *Resolver) fromReference(p ReferencePricer) func(context.Context, string) (domain.TokenData, error) {
	return func(ctx context.Context, symbol string) (domain.TokenData, error) {
		id, ok := r.refIDs[symbol]
		if !ok {
			return domain.TokenData{}, errSkipped
		}

		quote, err := p.SimplePrice(ctx, id)
		if err != nil {
			return domain.TokenData{}, err
		}
		return r.normalizer.FromReference(quote, id, symbol)
	}
}

func stringOf(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
