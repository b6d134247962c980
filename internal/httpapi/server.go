// Package httpapi serves probes, metrics and the price cache API over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Proton-105/himera-trader/internal/domain"
	"github.com/Proton-105/himera-trader/internal/health"
	"github.com/Proton-105/himera-trader/internal/middleware"
	"github.com/Proton-105/himera-trader/pkg/logger"
)

const (
	// MaxSymbols caps symbols per request.
	MaxSymbols = 50

	maxBody        = 1 << 16
	requestTimeout = 15 * time.Second
)

// Prices is the subset of the resolver exposed over HTTP.
type Prices interface {
	GetMultipleTokenPrices(ctx context.Context, symbols []string) []domain.CachedTokenData
	Refresh(ctx context.Context, symbol string) (*domain.CachedTokenData, error)
	ClearTokenCache(ctx context.Context, symbol string) bool
	ClearAllTokenCache(ctx context.Context) int
}

// RefreshEnqueuer schedules asynchronous refreshes.
type RefreshEnqueuer interface {
	EnqueueRefresh(ctx context.Context, symbols []string) (*asynq.TaskInfo, error)
}

// Probes backs /healthz and /readyz.
type Probes interface {
	Liveness(ctx context.Context) error
	Readiness(ctx context.Context) (health.Report, error)
}

// Deps bundles handler dependencies. Jobs may be nil, in which case refreshes run inline.
type Deps struct {
	Prices Prices
	Jobs   RefreshEnqueuer
	Probes Probes
}

type api struct {
	deps Deps
	log  *slog.Logger
}

type pricesResponse struct {
	Prices  []domain.CachedTokenData `json:"prices"`
	Missing []string                 `json:"missing,omitempty"`
}

type refreshRequest struct {
	Symbols []string `json:"symbols"`
}

type refreshResponse struct {
	Queued    bool                     `json:"queued"`
	TaskID    string                   `json:"task_id,omitempty"`
	Refreshed []domain.CachedTokenData `json:"refreshed,omitempty"`
	Failed    []string                 `json:"failed,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewHandler builds the HTTP handler tree.
func NewHandler(deps Deps, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	a := &api{deps: deps, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.healthz)
	mux.HandleFunc("GET /readyz", a.readyz)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /v1/prices", a.getPrices)
	mux.HandleFunc("POST /v1/prices/refresh", a.refresh)
	mux.HandleFunc("DELETE /v1/prices", a.clearAll)
	mux.HandleFunc("DELETE /v1/prices/{symbol}", a.clearOne)

	return logger.Middleware(middleware.HTTPLogging(log)(a.recoverPanic(limitBody(mux))))
}

func (a *api) healthz(w http.ResponseWriter, r *http.Request) {
	if a.deps.Probes != nil {
		if err := a.deps.Probes.Liveness(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": health.StatusOK})
}

func (a *api) readyz(w http.ResponseWriter, r *http.Request) {
	if a.deps.Probes == nil {
		writeJSON(w, http.StatusOK, health.Report{Status: health.StatusOK})
		return
	}

	report, err := a.deps.Probes.Readiness(r.Context())
	status := http.StatusOK
	if err != nil {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (a *api) getPrices(w http.ResponseWriter, r *http.Request) {
	symbols := splitCSV(r.URL.Query().Get("symbols"))
	if len(symbols) == 0 {
		writeError(w, http.StatusBadRequest, "missing symbols query param")
		return
	}
	if len(symbols) > MaxSymbols {
		writeError(w, http.StatusBadRequest, "too many symbols")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	results := a.deps.Prices.GetMultipleTokenPrices(ctx, symbols)

	found := make(map[string]bool, len(results))
	for _, res := range results {
		found[res.Symbol] = true
	}
	resp := pricesResponse{Prices: results}
	for _, s := range symbols {
		if !found[s] {
			resp.Missing = append(resp.Missing, s)
		}
	}
	if resp.Prices == nil {
		resp.Prices = []domain.CachedTokenData{}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *api) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	symbols := normalize(req.Symbols)
	if len(symbols) == 0 {
		writeError(w, http.StatusBadRequest, "symbols cannot be empty")
		return
	}
	if len(symbols) > MaxSymbols {
		writeError(w, http.StatusBadRequest, "too many symbols")
		return
	}

	if a.deps.Jobs != nil {
		info, err := a.deps.Jobs.EnqueueRefresh(r.Context(), symbols)
		if err != nil {
			a.log.ErrorContext(r.Context(), "enqueue refresh failed", slog.Any("error", err))
			writeError(w, http.StatusServiceUnavailable, "refresh queue unavailable")
			return
		}
		resp := refreshResponse{Queued: true}
		if info != nil {
			resp.TaskID = info.ID
		}
		writeJSON(w, http.StatusAccepted, resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var resp refreshResponse
	for _, s := range symbols {
		data, err := a.deps.Prices.Refresh(ctx, s)
		if err != nil {
			resp.Failed = append(resp.Failed, s)
			continue
		}
		resp.Refreshed = append(resp.Refreshed, *data)
	}

	status := http.StatusOK
	if len(resp.Refreshed) == 0 {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, resp)
}

func (a *api) clearOne(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(r.PathValue("symbol")))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "missing symbol")
		return
	}

	removed := a.deps.Prices.ClearTokenCache(r.Context(), symbol)
	writeJSON(w, http.StatusOK, map[string]any{"symbol": symbol, "removed": removed})
}

func (a *api) clearAll(w http.ResponseWriter, r *http.Request) {
	removed := a.deps.Prices.ClearAllTokenCache(r.Context())
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (a *api) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				a.log.ErrorContext(r.Context(), "http handler panic", slog.Any("panic", rec), slog.String("path", r.URL.Path))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func splitCSV(s string) []string {
	return normalize(strings.Split(s, ","))
}

// normalize upper-cases, trims and dedupes symbols, keeping first-seen order.
func normalize(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
