package pricing

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/Proton-105/himera-trader/internal/domain"
	"github.com/Proton-105/himera-trader/internal/provider/aggregator"
	"github.com/Proton-105/himera-trader/internal/provider/binance"
	"github.com/Proton-105/himera-trader/internal/provider/coingecko"
	"github.com/Proton-105/himera-trader/internal/provider/hyperliquid"
)

// ErrInvalidData is wrapped by every ValidationError.
var ErrInvalidData = errors.New("invalid price data")

// Field is a bit set of canonical fields present in an upstream record.
type Field uint8

const (
	FieldSymbol Field = 1 << iota
	FieldName
	FieldPrice
	FieldChange24h
	FieldVolume24h

	requiredFields = FieldSymbol | FieldName | FieldPrice | FieldChange24h | FieldVolume24h
)

var fieldNames = []struct {
	field Field
	name  string
}{
	{FieldSymbol, "symbol"},
	{FieldName, "name"},
	{FieldPrice, "price"},
	{FieldChange24h, "change24h"},
	{FieldVolume24h, "volume24h"},
}

// ValidationError describes a record rejected by Validate.
type ValidationError struct {
	Source   domain.Source
	Symbol   string
	Missing  []string
	Negative []string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ","))
	}
	if len(e.Negative) > 0 {
		parts = append(parts, "negative "+strings.Join(e.Negative, ","))
	}
	return fmt.Sprintf("%s record for %s: %s", e.Source, e.Symbol, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidData
}

// Validate rejects records lacking a required field or carrying a negative price, volume or market cap.
func Validate(data domain.TokenData, present Field) error {
	verr := &ValidationError{Source: data.Source, Symbol: data.Symbol}

	for _, f := range fieldNames {
		if present&f.field == 0 {
			verr.Missing = append(verr.Missing, f.name)
		}
	}
	if data.Price < 0 {
		verr.Negative = append(verr.Negative, "price")
	}
	if data.Volume24h < 0 {
		verr.Negative = append(verr.Negative, "volume24h")
	}
	if data.MarketCap < 0 {
		verr.Negative = append(verr.Negative, "marketCap")
	}

	if len(verr.Missing) > 0 || len(verr.Negative) > 0 {
		return verr
	}
	return nil
}

// Coerce converts an upstream value to float64. Plain numeric strings, including
// exponent notation, parse as is; otherwise everything except digits, '.' and '-' is
// stripped first. nil, empty or unparseable input yields 0.
func Coerce(v any) float64 {
	var raw string

	switch t := v.(type) {
	case nil:
		return 0
	case float64:
		return finite(t)
	case float32:
		return finite(float64(t))
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case int32:
		return float64(t)
	case uint64:
		return float64(t)
	case json.Number:
		raw = t.String()
	case string:
		raw = t
	case *float64:
		if t == nil {
			return 0
		}
		return finite(*t)
	default:
		raw = fmt.Sprint(t)
	}

	raw = strings.TrimSpace(raw)
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return finite(f)
	}

	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || r == '.' || r == '-' {
			return r
		}
		return -1
	}, raw)
	if cleaned == "" {
		return 0
	}

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return finite(f)
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// Candidate source field names per canonical field, most common first.
var (
	symbolFields      = []string{"symbol", "ticker", "token_symbol", "tokenSymbol", "baseSymbol"}
	nameFields        = []string{"name", "token_name", "tokenName", "title"}
	priceFields       = []string{"price", "price_usd", "priceUsd", "priceUSD", "current_price", "usd_price", "last_price"}
	changeFields      = []string{"change24h", "change_24h", "price_change_24h", "priceChange24h", "price_change_percentage_24h", "percent_change_24h"}
	volumeFields      = []string{"volume24h", "volume_24h", "volume24hUsd", "volumeUsd24h", "total_volume", "volume"}
	marketCapFields   = []string{"market_cap", "marketCap", "mcap", "fdv"}
	highFields        = []string{"high24h", "high_24h", "high"}
	lowFields         = []string{"low24h", "low_24h", "low"}
	circulatingFields = []string{"circulating_supply", "circulatingSupply"}
	totalSupplyFields = []string{"total_supply", "totalSupply"}
	maxSupplyFields   = []string{"max_supply", "maxSupply"}
	updatedAtFields   = []string{"updated_at", "updatedAt", "last_updated"}
)

// pick returns the first non-nil candidate.
func pick(rec map[string]any, candidates []string) (any, bool) {
	for _, key := range candidates {
		if v, ok := rec[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// Normalizer maps provider records into validated TokenData.
type Normalizer struct {
	now func() time.Time
}

// NewNormalizer returns a Normalizer stamping records with now; nil means time.Now.
func NewNormalizer(now func() time.Time) *Normalizer {
	if now == nil {
		now = time.Now
	}
	return &Normalizer{now: now}
}

// FromAggregator maps a listing record. symbol is the canonical requested ticker.
func (n *Normalizer) FromAggregator(rec aggregator.Record, symbol string) (domain.TokenData, error) {
	var present Field

	data := domain.TokenData{Symbol: symbol, Source: domain.SourceAggregator, UpdatedAt: n.now()}

	if v, ok := pick(rec, symbolFields); ok && fmt.Sprint(v) != "" {
		present |= FieldSymbol
	}
	if v, ok := pick(rec, nameFields); ok {
		if name := strings.TrimSpace(fmt.Sprint(v)); name != "" {
			data.Name = name
			present |= FieldName
		}
	}
	if v, ok := pick(rec, priceFields); ok {
		data.Price = Coerce(v)
		present |= FieldPrice
	}
	if v, ok := pick(rec, changeFields); ok {
		data.Change24h = Coerce(v)
		present |= FieldChange24h
	}
	if v, ok := pick(rec, volumeFields); ok {
		data.Volume24h = Coerce(v)
		present |= FieldVolume24h
	}

	numeric := []struct {
		dst        *float64
		candidates []string
	}{
		{&data.MarketCap, marketCapFields},
		{&data.High24h, highFields},
		{&data.Low24h, lowFields},
		{&data.Supply.Circulating, circulatingFields},
		{&data.Supply.Total, totalSupplyFields},
		{&data.Supply.Max, maxSupplyFields},
	}
	for _, f := range numeric {
		if v, ok := pick(rec, f.candidates); ok {
			*f.dst = Coerce(v)
		}
	}

	if v, ok := pick(rec, updatedAtFields); ok {
		if s, isString := v.(string); isString {
			if ts, err := time.Parse(time.RFC3339, s); err == nil {
				data.UpdatedAt = ts
			}
		}
	}

	if err := Validate(data, present); err != nil {
		return domain.TokenData{}, err
	}
	return data, nil
}

// FromMid maps a mid price. The feed carries no 24h statistics, so those are reported as zero.
func (n *Normalizer) FromMid(mid hyperliquid.Mid, symbol string) (domain.TokenData, error) {
	present := FieldChange24h | FieldVolume24h
	if mid.Coin != "" {
		present |= FieldSymbol | FieldName
	}
	if mid.Px != nil {
		present |= FieldPrice
	}

	data := domain.TokenData{
		Symbol:    symbol,
		Name:      symbol,
		Price:     Coerce(mid.Px),
		Source:    domain.SourceHyperliquid,
		UpdatedAt: n.now(),
	}

	if err := Validate(data, present); err != nil {
		return domain.TokenData{}, err
	}
	return data, nil
}

// FromExchange maps the exchange's separate price and 24h payloads.
func (n *Normalizer) FromExchange(price *binance.TickerPrice, stats *binance.Ticker24h, symbol string) (domain.TokenData, error) {
	var present Field
	data := domain.TokenData{Symbol: symbol, Name: symbol, Source: domain.SourceBinance, UpdatedAt: n.now()}

	if price != nil {
		if price.Symbol != "" {
			present |= FieldSymbol | FieldName
		}
		if price.Price != "" {
			data.Price = Coerce(price.Price)
			present |= FieldPrice
		}
	}
	if stats != nil {
		if stats.PriceChangePercent != "" {
			data.Change24h = Coerce(stats.PriceChangePercent)
			present |= FieldChange24h
		}
		if stats.QuoteVolume != "" {
			data.Volume24h = Coerce(stats.QuoteVolume)
			present |= FieldVolume24h
		}
		data.High24h = Coerce(stats.HighPrice)
		data.Low24h = Coerce(stats.LowPrice)
	}

	if err := Validate(data, present); err != nil {
		return domain.TokenData{}, err
	}
	return data, nil
}

// FromReference maps a reference quote. The coin id doubles as the display name.
func (n *Normalizer) FromReference(quote coingecko.SimplePrice, id, symbol string) (domain.TokenData, error) {
	present := FieldSymbol
	data := domain.TokenData{Symbol: symbol, Source: domain.SourceCoingecko, UpdatedAt: n.now()}

	if id != "" {
		data.Name = displayName(id)
		present |= FieldName
	}
	if quote.USD != nil {
		data.Price = Coerce(quote.USD)
		present |= FieldPrice
	}
	if quote.USD24hChange != nil {
		data.Change24h = Coerce(quote.USD24hChange)
		present |= FieldChange24h
	}
	if quote.USD24hVol != nil {
		data.Volume24h = Coerce(quote.USD24hVol)
		present |= FieldVolume24h
	}
	data.MarketCap = Coerce(quote.USDMarketCap)

	if err := Validate(data, present); err != nil {
		return domain.TokenData{}, err
	}
	return data, nil
}

// displayName turns a coin id such as "the-open-network" into "The Open Network".
func displayName(id string) string {
	words := strings.FieldsFunc(id, func(r rune) bool { return r == '-' || r == '_' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
