package pricing

import "strings"

// Matcher resolves a requested ticker against heterogeneous provider listings.
type Matcher struct {
	aliases map[string]string
	quote   string
}

// NewMatcher returns a Matcher. Alias keys and values are compared upper-cased;
// quote is the asset appended when probing quote-paired symbols, e.g. USDT.
func NewMatcher(aliases map[string]string, quote string) *Matcher {
	normalized := make(map[string]string, len(aliases))
	for from, to := range aliases {
		from, to = NormalizeSymbol(from), NormalizeSymbol(to)
		if from != "" && to != "" {
			normalized[from] = to
		}
	}

	return &Matcher{aliases: normalized, quote: NormalizeSymbol(quote)}
}

// NormalizeSymbol trims and upper-cases a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Alias returns the provider-side representation of ticker, or ticker itself.
func (m *Matcher) Alias(ticker string) string {
	ticker = NormalizeSymbol(ticker)
	if alias, ok := m.aliases[ticker]; ok {
		return alias
	}
	return ticker
}

// Pair returns ticker suffixed with the quote asset, e.g. BTCUSDT.
func (m *Matcher) Pair(ticker string) string {
	return NormalizeSymbol(ticker) + m.quote
}

// Match returns the first record matching ticker. fields extracts a record's symbol and display name.
// Rules are tried in order across the whole listing and the first hit wins:
// exact symbol (alias first, then the raw ticker), alias within the name,
// then ticker, alias and their quote pairs within the symbol.
func Match[R any](m *Matcher, records []R, ticker string, fields func(R) (symbol, name string)) (R, bool) {
	var zero R

	ticker = NormalizeSymbol(ticker)
	if ticker == "" || len(records) == 0 {
		return zero, false
	}
	alias := m.Alias(ticker)

	type entry struct {
		symbol string
		name   string
	}
	entries := make([]entry, len(records))
	for i, rec := range records {
		symbol, name := fields(rec)
		entries[i] = entry{symbol: NormalizeSymbol(symbol), name: NormalizeSymbol(name)}
	}

	for _, want := range dedupe(alias, ticker) {
		for i, e := range entries {
			if e.symbol == want {
				return records[i], true
			}
		}
	}

	for i, e := range entries {
		if e.name != "" && strings.Contains(e.name, alias) {
			return records[i], true
		}
	}

	probes := []string{ticker, alias}
	if m.quote != "" {
		probes = append(probes, ticker+m.quote, alias+m.quote)
	}
	for _, probe := range dedupe(probes...) {
		for i, e := range entries {
			if e.symbol != "" && strings.Contains(e.symbol, probe) {
				return records[i], true
			}
		}
	}

	return zero, false
}

func dedupe(values ...string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
