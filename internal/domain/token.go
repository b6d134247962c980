package domain

import "time"

// Source identifies the upstream that produced a TokenData.
type Source string

const (
	SourceAggregator  Source = "aggregator"
	SourceHyperliquid Source = "hyperliquid"
	SourceBinance     Source = "binance"
	SourceCoingecko   Source = "coingecko"
)

// Supply describes token supply figures. Zero means unknown.
type Supply struct {
	Circulating float64 `json:"circulating"`
	Total       float64 `json:"total"`
	Max         float64 `json:"max"`
}

// TokenData is the canonical price record. Values are never mutated once built;
// each refresh produces a new one.
type TokenData struct {
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	Change24h float64   `json:"change_24h"`
	Volume24h float64   `json:"volume_24h"`
	MarketCap float64   `json:"market_cap"`
	High24h   float64   `json:"high_24h"`
	Low24h    float64   `json:"low_24h"`
	Supply    Supply    `json:"supply"`
	UpdatedAt time.Time `json:"updated_at"`
	Source    Source    `json:"source"`
}

// CacheMeta describes the cache entry a CachedTokenData was served from.
type CacheMeta struct {
	Key       string        `json:"key"`
	TTL       time.Duration `json:"ttl"`
	CreatedAt time.Time     `json:"created_at"`
}

// CachedTokenData is a TokenData annotated with its cache provenance.
type CachedTokenData struct {
	TokenData
	IsCached  bool       `json:"is_cached"`
	CacheMeta *CacheMeta `json:"cache_meta,omitempty"`
}
