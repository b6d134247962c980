// Package hyperliquid is a client for the mid-price feed.
package hyperliquid

import (
	"context"
	"net/http"
	"strings"

	"github.com/Proton-105/himera-trader/internal/provider"
)

// Name identifies this upstream in errors, logs and metrics.
const Name = "hyperliquid"

// Mid is the current mid price of a coin. Px arrives as a string or a number.
type Mid struct {
	Coin string `json:"coin"`
	Px   any    `json:"px"`
}

type midsResponse struct {
	Data []Mid `json:"data"`
}

// Client is a client for the mid-price API.
type Client struct {
	baseURL    string
	httpClient provider.HTTPClient
}

// Option is a configuration option for the mid-price client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient provider.HTTPClient) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// New creates a mid-price client rooted at baseURL.
func New(baseURL string, options ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Mids returns every listed mid price.
func (c *Client) Mids(ctx context.Context) ([]Mid, error) {
	var body midsResponse
	if err := provider.Get(ctx, c.httpClient, Name, c.baseURL+"/mids", nil, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// Mid returns the mid price for coin, matched exactly and case-insensitively.
func (c *Client) Mid(ctx context.Context, coin string) (Mid, error) {
	mids, err := c.Mids(ctx)
	if err != nil {
		return Mid{}, err
	}
	for _, mid := range mids {
		if strings.EqualFold(mid.Coin, coin) {
			return mid, nil
		}
	}
	return Mid{}, provider.NotFound(Name, coin)
}
