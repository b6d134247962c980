package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	telebot "gopkg.in/telebot.v3"

	apperrors "github.com/Proton-105/himera-trader/internal/errors"
	"github.com/Proton-105/himera-trader/internal/middleware"
	"github.com/Proton-105/himera-trader/internal/ratelimit"
	"github.com/Proton-105/himera-trader/internal/testutil"
	"github.com/Proton-105/himera-trader/pkg/config"
	"github.com/Proton-105/himera-trader/pkg/logger"
)

type stubLimiter struct {
	calls  []string
	result func(key string) (*ratelimit.Result, error)
}

func (s *stubLimiter) Check(_ context.Context, key string, _ int, _ time.Duration) (*ratelimit.Result, error) {
	s.calls = append(s.calls, key)
	return s.result(key)
}

func okHandler(called *int) func(telebot.Context) error {
	return func(telebot.Context) error {
		*called++
		return nil
	}
}

func rules(enabled bool) *ratelimit.Rules {
	return ratelimit.NewRules(config.RateLimitConfig{
		Enabled:   enabled,
		PerUser:   config.RateLimitRule{Limit: 30, Window: "1m"},
		Commands:  config.RateLimitCommands{Price: config.RateLimitRule{Limit: 5, Window: "1m"}},
		Whitelist: []int64{99},
	})
}

func TestCommandName(t *testing.T) {
	user := &telebot.User{ID: 1}

	tests := []struct {
		ctx  telebot.Context
		want string
	}{
		{testutil.NewMessage(user, "/price btc eth"), "price"},
		{testutil.NewMessage(user, "/Long@himera_bot SOL 100"), "long"},
		{testutil.NewMessage(user, "hello"), "text"},
		{testutil.NewMessage(user, ""), "unknown"},
		{testutil.NewCallback(user, "price_retry:BTC"), "cb_price_retry"},
		{testutil.NewCallback(user, "\fprice_retry|BTC"), "cb_price_retry"},
		{nil, "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, middleware.CommandName(tt.ctx))
	}
}

func TestRateLimit_RejectsWithAppError(t *testing.T) {
	resetAt := time.Now().Add(20 * time.Second)
	limiter := &stubLimiter{result: func(key string) (*ratelimit.Result, error) {
		if key == "user:1:cmd:price" {
			return &ratelimit.Result{Allowed: false, ResetAt: resetAt}, ratelimit.ErrLimitExceeded
		}
		return &ratelimit.Result{Allowed: true, Remaining: 10}, nil
	}}
	mw := middleware.NewRateLimitMiddleware(limiter, rules(true), testutil.DiscardLogger())

	called := 0
	err := mw.Handle(okHandler(&called))(testutil.NewMessage(&telebot.User{ID: 1}, "/price BTC"))

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "E500", appErr.Code)
	assert.InDelta(t, 20, mustAtoi(t, appErr.Params["seconds"]), 1)
	assert.Zero(t, called)
	assert.Equal(t, []string{"user:1", "user:1:cmd:price"}, limiter.calls)
}

func TestRateLimit_PrimaryRejectionWithoutError(t *testing.T) {
	limiter := &stubLimiter{result: func(string) (*ratelimit.Result, error) {
		return &ratelimit.Result{Allowed: false}, nil
	}}
	mw := middleware.NewRateLimitMiddleware(limiter, rules(true), testutil.DiscardLogger())

	called := 0
	err := mw.Handle(okHandler(&called))(testutil.NewMessage(&telebot.User{ID: 1}, "/start"))
	assert.Equal(t, "E500", apperrors.CodeOf(err))
	assert.Zero(t, called)
}

func TestRateLimit_PassThrough(t *testing.T) {
	failing := &stubLimiter{result: func(string) (*ratelimit.Result, error) {
		return nil, errors.New("redis down")
	}}

	tests := []struct {
		name  string
		mw    *middleware.RateLimitMiddleware
		user  int64
		calls int
	}{
		{"limiter error", middleware.NewRateLimitMiddleware(failing, rules(true), nil), 1, 2},
		{"whitelisted", middleware.NewRateLimitMiddleware(failing, rules(true), nil), 99, 0},
		{"disabled", middleware.NewRateLimitMiddleware(failing, rules(false), nil), 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failing.calls = nil
			called := 0
			err := tt.mw.Handle(okHandler(&called))(testutil.NewMessage(&telebot.User{ID: tt.user}, "/price BTC"))
			require.NoError(t, err)
			assert.Equal(t, 1, called)
			assert.Len(t, failing.calls, tt.calls)
		})
	}
}

func TestMetrics_PassesErrorThrough(t *testing.T) {
	want := apperrors.NewValidationError("bad")
	err := middleware.Metrics(func(telebot.Context) error { return want })(testutil.NewMessage(&telebot.User{ID: 1}, "/long"))
	assert.Same(t, want, err)
}

func TestHTTPLogging_PreservesResponse(t *testing.T) {
	h := logger.Middleware(middleware.HTTPLogging(testutil.DiscardLogger())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Test", "1")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-Test"))
	assert.Equal(t, "short and stout", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(logger.CorrelationHeader))
}

func mustAtoi(t *testing.T, s string) float64 {
	t.Helper()
	n, err := strconv.Atoi(s)
	require.NoError(t, err)
	return float64(n)
}
