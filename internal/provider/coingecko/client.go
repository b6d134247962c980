// Package coingecko is a client for the reference simple-price API.
package coingecko

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Proton-105/himera-trader/internal/provider"
)

// Name identifies this upstream in errors, logs and metrics.
const Name = "coingecko"

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://api.coingecko.com/api/v3"

// SimplePrice is one coin entry of the /simple/price payload. Missing figures stay nil.
type SimplePrice struct {
	USD          *float64 `json:"usd"`
	USD24hChange *float64 `json:"usd_24h_change"`
	USD24hVol    *float64 `json:"usd_24h_vol"`
	USDMarketCap *float64 `json:"usd_market_cap"`
}

// Client is a client for the reference price API.
type Client struct {
	baseURL    string
	httpClient provider.HTTPClient
	header     http.Header
}

// Option is a configuration option for the reference price client.
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

// WithAPIKey sends the demo API key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if key != "" {
			c.header.Set("x-cg-demo-api-key", key)
		}
	}
}

// New creates a reference price client.
func New(options ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// SimplePrices returns USD quotes keyed by coin id. Unknown ids are absent from the map.
func (c *Client) SimplePrices(ctx context.Context, ids ...string) (map[string]SimplePrice, error) {
	query := url.Values{}
	query.Set("ids", strings.Join(ids, ","))
	query.Set("vs_currencies", "usd")
	query.Set("include_24hr_change", "true")
	query.Set("include_24hr_vol", "true")
	query.Set("include_market_cap", "true")

	reqURL := fmt.Sprintf("%s/simple/price?%s", c.baseURL, query.Encode())

	out := map[string]SimplePrice{}
	if err := provider.Get(ctx, c.httpClient, Name, reqURL, c.header, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SimplePrice returns the USD quote of a single coin id.
func (c *Client) SimplePrice(ctx context.Context, id string) (SimplePrice, error) {
	prices, err := c.SimplePrices(ctx, id)
	if err != nil {
		return SimplePrice{}, err
	}
	price, ok := prices[id]
	if !ok || price.USD == nil {
		return SimplePrice{}, provider.NotFound(Name, id)
	}
	return price, nil
}
