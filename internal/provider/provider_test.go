package provider_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Proton-105/himera-trader/internal/provider"
)

func TestGet_ClassifiesStatus(t *testing.T) {
	t.Parallel()

	cases := map[int]provider.Kind{
		http.StatusNotFound:            provider.KindNotFound,
		http.StatusTooManyRequests:     provider.KindRateLimited,
		http.StatusInternalServerError: provider.KindServer,
		http.StatusBadGateway:          provider.KindServer,
		http.StatusGatewayTimeout:      provider.KindTimeout,
		http.StatusForbidden:           provider.KindUnknown,
	}

	for status, want := range cases {
		// Arrange: an upstream that always answers with status.
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}))

		// Act
		var dst map[string]any
		err := provider.Get(context.Background(), srv.Client(), "test", srv.URL, nil, &dst)
		srv.Close()

		// Assert
		var perr *provider.Error
		require.ErrorAs(t, err, &perr)
		require.Equalf(t, want, perr.Kind, "status %d", status)
		require.Equal(t, status, perr.Status)
	}
}

func TestGet_Timeout(t *testing.T) {
	t.Parallel()

	// Arrange: an upstream slower than the client timeout.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)

	client := srv.Client()
	client.Timeout = 50 * time.Millisecond

	// Act
	var dst map[string]any
	err := provider.Get(context.Background(), client, "test", srv.URL, nil, &dst)

	// Assert
	require.Equal(t, provider.KindTimeout, provider.KindOf(err))
}

func TestGet_NetworkAndDecode(t *testing.T) {
	t.Parallel()

	// Arrange: a closed server refuses connections.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))

	var dst map[string]any
	err := provider.Get(context.Background(), srv.Client(), "test", srv.URL, nil, &dst)
	require.Equal(t, provider.KindUnknown, provider.KindOf(err))

	srv.Close()
	err = provider.Get(context.Background(), http.DefaultClient, "test", srv.URL, nil, &dst)
	require.Equal(t, provider.KindNetwork, provider.KindOf(err))
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	require.Equal(t, provider.Kind(""), provider.KindOf(nil))
	require.Equal(t, provider.KindTimeout, provider.KindOf(context.DeadlineExceeded))
	require.Equal(t, provider.KindUnknown, provider.KindOf(errors.New("boom")))
	require.Equal(t, provider.KindNotFound, provider.KindOf(provider.NotFound("x", "BTC")))
}
