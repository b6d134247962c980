// Package binance is a client for the public spot ticker endpoints.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Proton-105/himera-trader/internal/provider"
)

// Name identifies this upstream in errors, logs and metrics.
const Name = "binance"

// DefaultBaseURL is the public REST endpoint.
const DefaultBaseURL = "https://api.binance.com"

// codeInvalidSymbol is returned with HTTP 400 for pairs that are not listed.
const codeInvalidSymbol = -1121

// TickerPrice is the /api/v3/ticker/price payload.
type TickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// Ticker24h is the /api/v3/ticker/24hr payload.
type Ticker24h struct {
	Symbol             string `json:"symbol"`
	PriceChangePercent string `json:"priceChangePercent"`
	LastPrice          string `json:"lastPrice"`
	HighPrice          string `json:"highPrice"`
	LowPrice           string `json:"lowPrice"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quoteVolume"`
}

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Client is a client for the exchange ticker API.
type Client struct {
	baseURL    string
	httpClient provider.HTTPClient
}

// Option is a configuration option for the exchange client.
type Option func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient provider.HTTPClient) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// New creates an exchange ticker client.
func New(options ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: http.DefaultClient,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Price returns the last traded price of pair, e.g. BTCUSDT.
func (c *Client) Price(ctx context.Context, pair string) (*TickerPrice, error) {
	var out TickerPrice
	if err := c.get(ctx, "/api/v3/ticker/price", pair, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats24h returns rolling 24h statistics of pair.
func (c *Client) Stats24h(ctx context.Context, pair string) (*Ticker24h, error) {
	var out Ticker24h
	if err := c.get(ctx, "/api/v3/ticker/24hr", pair, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path, pair string, dst any) error {
	query := url.Values{}
	query.Set("symbol", strings.ToUpper(pair))

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return &provider.Error{Provider: Name, Kind: provider.KindUnknown, Err: fmt.Errorf("creating request: %w", err)}
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return provider.Transport(Name, err)
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		break

	case http.StatusBadRequest:
		var apiErr apiError
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Code == codeInvalidSymbol {
			return provider.NotFound(Name, pair)
		}
		return &provider.Error{Provider: Name, Kind: provider.KindUnknown, Status: res.StatusCode, Err: fmt.Errorf("bad request: %s", raw)}

	default:
		return provider.Status(Name, res)
	}

	if err := json.NewDecoder(res.Body).Decode(dst); err != nil {
		return provider.Decode(Name, err)
	}
	return nil
}
