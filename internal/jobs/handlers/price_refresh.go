// Package handlers contains asynq task handlers for price jobs.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sourcegraph/conc/pool"

	"github.com/Proton-105/himera-trader/internal/domain"
	"github.com/Proton-105/himera-trader/internal/jobs"
)

const defaultRefreshParallelism = 4

// Refresher re-resolves a symbol upstream and rewrites its cache entry.
type Refresher interface {
	Refresh(ctx context.Context, symbol string) (*domain.CachedTokenData, error)
}

// PriceRefreshHandler processes price:refresh tasks.
type PriceRefreshHandler struct {
	prices      Refresher
	parallelism int
	log         *slog.Logger
}

// NewPriceRefreshHandler builds a handler refreshing up to parallelism symbols at once.
func NewPriceRefreshHandler(prices Refresher, parallelism int, log *slog.Logger) *PriceRefreshHandler {
	if log == nil {
		log = slog.Default()
	}
	if parallelism <= 0 {
		parallelism = defaultRefreshParallelism
	}

	return &PriceRefreshHandler{
		prices:      prices,
		parallelism: parallelism,
		log:         log,
	}
}

// ProcessTask refreshes every symbol in the payload. The task fails, and is retried,
// only when no symbol could be refreshed.
func (h *PriceRefreshHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload jobs.PriceRefreshPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal price refresh payload: %w: %w", err, asynq.SkipRetry)
	}
	if len(payload.Symbols) == 0 {
		return nil
	}

	start := time.Now()
	var refreshed, failed atomic.Int64

	p := pool.New().WithMaxGoroutines(h.parallelism)
	for _, symbol := range payload.Symbols {
		p.Go(func() {
			if _, err := h.prices.Refresh(ctx, symbol); err != nil {
				failed.Add(1)
				h.log.WarnContext(ctx, "price refresh failed",
					slog.String("symbol", symbol),
					slog.Any("error", err),
				)
				return
			}
			refreshed.Add(1)
		})
	}
	p.Wait()

	h.log.InfoContext(ctx, "price refresh completed",
		slog.Int64("refreshed", refreshed.Load()),
		slog.Int64("failed", failed.Load()),
		slog.Duration("duration", time.Since(start)),
	)

	if refreshed.Load() == 0 {
		return fmt.Errorf("price refresh: all %d symbols failed", len(payload.Symbols))
	}
	return nil
}
