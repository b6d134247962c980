package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/himera-trader/internal/jobs"
)

// CacheClearer evicts cached prices.
type CacheClearer interface {
	ClearTokenCache(ctx context.Context, symbol string) bool
	ClearAllTokenCache(ctx context.Context) int
}

// CacheClearHandler processes price:cache_clear tasks.
type CacheClearHandler struct {
	cache CacheClearer
	log   *slog.Logger
}

func NewCacheClearHandler(cache CacheClearer, log *slog.Logger) *CacheClearHandler {
	if log == nil {
		log = slog.Default()
	}
	return &CacheClearHandler{cache: cache, log: log}
}

func (h *CacheClearHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload jobs.CacheClearPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal cache clear payload: %w: %w", err, asynq.SkipRetry)
	}

	if len(payload.Symbols) == 0 {
		removed := h.cache.ClearAllTokenCache(ctx)
		h.log.InfoContext(ctx, "price cache cleared", slog.Int("removed", removed))
		return nil
	}

	removed := 0
	for _, symbol := range payload.Symbols {
		if h.cache.ClearTokenCache(ctx, symbol) {
			removed++
		}
	}
	h.log.InfoContext(ctx, "price cache entries cleared",
		slog.Any("symbols", payload.Symbols),
		slog.Int("removed", removed),
	)
	return nil
}
