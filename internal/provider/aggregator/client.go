// Package aggregator is a client for the primary market-data aggregator's trending-token listing.
package aggregator

import (
	"context"
	"net/http"
	"strings"

	"github.com/Proton-105/himera-trader/internal/provider"
)

// Name identifies this upstream in errors, logs and metrics.
const Name = "aggregator"

// Record is one listing entry. Field names vary between listing versions,
// so records stay untyped until normalization.
type Record map[string]any

type trendingResponse struct {
	Data []Record `json:"data"`
}

// Client is a client for the aggregator API.
type Client struct {
	baseURL    string
	httpClient provider.HTTPClient
	header     http.Header
}

// Option is a configuration option for the aggregator client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient provider.HTTPClient) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithAPIKey authenticates requests with a bearer key.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if key != "" {
			c.header.Set("Authorization", "Bearer "+key)
		}
	}
}

// New creates an aggregator client rooted at baseURL.
func New(baseURL string, options ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		header:     http.Header{},
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Trending returns the current trending listing.
func (c *Client) Trending(ctx context.Context) ([]Record, error) {
	var body trendingResponse
	if err := provider.Get(ctx, c.httpClient, Name, c.baseURL+"/tokens/trending", c.header, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}
