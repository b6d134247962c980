// Package provider holds what the upstream price API clients share: the
// HTTPClient contract and the typed failure every client returns.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
)

// HTTPClient describes an HTTP client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Kind classifies a failed upstream call.
type Kind string

const (
	KindNotFound    Kind = "not_found"
	KindTimeout     Kind = "timeout"
	KindRateLimited Kind = "rate_limited"
	KindNetwork     Kind = "network"
	KindServer      Kind = "server"
	KindUnknown     Kind = "unknown"
)

// Error is returned by every provider client.
type Error struct {
	Provider string
	Kind     Kind
	Status   int
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	msg := fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// KindOf extracts the Kind of err. Errors not produced by a provider client are classified
// by their transport shape, falling back to KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var perr *Error
	if errors.As(err, &perr) && perr != nil {
		return perr.Kind
	}
	if isTimeout(err) {
		return KindTimeout
	}
	return KindUnknown
}

// NotFound reports that the upstream has no data for what was requested.
func NotFound(name, what string) *Error {
	return &Error{Provider: name, Kind: KindNotFound, Err: fmt.Errorf("%s not listed", what)}
}

// Transport classifies an error returned by HTTPClient.Do.
func Transport(name string, err error) *Error {
	kind := KindNetwork
	if isTimeout(err) {
		kind = KindTimeout
	}
	return &Error{Provider: name, Kind: kind, Err: err}
}

// Decode wraps a response body that could not be parsed.
func Decode(name string, err error) *Error {
	return &Error{Provider: name, Kind: KindUnknown, Err: fmt.Errorf("decoding response: %w", err)}
}

// Status classifies a non-2xx response. The body is drained and attached for diagnostics.
func Status(name string, res *http.Response) *Error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 512))

	e := &Error{Provider: name, Status: res.StatusCode}
	switch {
	case res.StatusCode == http.StatusNotFound:
		e.Kind = KindNotFound
	case res.StatusCode == http.StatusTooManyRequests, res.StatusCode == http.StatusTeapot:
		e.Kind = KindRateLimited
	case res.StatusCode == http.StatusRequestTimeout, res.StatusCode == http.StatusGatewayTimeout:
		e.Kind = KindTimeout
	case res.StatusCode >= http.StatusInternalServerError:
		e.Kind = KindServer
	default:
		e.Kind = KindUnknown
	}
	if len(body) > 0 {
		e.Err = errors.New(string(body))
	}
	return e
}

// Get performs a GET against url and decodes a 200 response into dst.
// Any other outcome is returned as *Error.
func Get(ctx context.Context, client HTTPClient, name, url string, header http.Header, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return &Error{Provider: name, Kind: KindUnknown, Err: fmt.Errorf("creating request: %w", err)}
	}
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	req.Header.Set("Accept", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return Transport(name, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return Status(name, res)
	}

	if err := json.NewDecoder(res.Body).Decode(dst); err != nil {
		if isTimeout(err) {
			return Transport(name, err)
		}
		return Decode(name, err)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
