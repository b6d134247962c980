// Package httpx builds the outbound HTTP clients used for upstream price APIs.
package httpx

import (
	"net"
	"net/http"
	"time"
)

const defaultUserAgent = "himera-trader/1.0"

// Client is a small wrapper around http.Client with pooled transport defaults.
// It satisfies the HTTPClient interfaces declared by the provider packages.
type Client struct {
	HTTP      *http.Client
	UserAgent string
	Headers   map[string]string
}

// New returns a Client whose requests are bounded by timeout.
func New(timeout time.Duration) *Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 3 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		MaxConnsPerHost:       50,
		ForceAttemptHTTP2:     true,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   3 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: timeout,
	}

	return &Client{
		HTTP:      &http.Client{Timeout: timeout, Transport: transport},
		UserAgent: defaultUserAgent,
	}
}

// WithHeader returns c with an extra default header applied to every request.
func (c *Client) WithHeader(key, value string) *Client {
	if c.Headers == nil {
		c.Headers = make(map[string]string)
	}
	c.Headers[key] = value
	return c
}

// Do sends req after applying the default User-Agent and headers it does not already carry.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	for k, v := range c.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return c.HTTP.Do(req)
}
