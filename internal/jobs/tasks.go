// Package jobs runs background price work on asynq: scheduled cache warm-up and on-demand refreshes.
package jobs

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TaskTypePriceRefresh = "price:refresh"
	TaskTypeCacheClear   = "price:cache_clear"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Queues is the priority map used by the worker.
var Queues = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
	QueueLow:      1,
}

const (
	refreshTimeout   = 2 * time.Minute
	refreshMaxRetry  = 2
	refreshUniqueTTL = time.Minute
)

// PriceRefreshPayload lists the symbols whose cached prices are re-resolved upstream.
type PriceRefreshPayload struct {
	Symbols []string `json:"symbols"`
}

// CacheClearPayload lists symbols to evict; an empty list clears every price entry.
type CacheClearPayload struct {
	Symbols []string `json:"symbols,omitempty"`
}

// NewPriceRefreshTask builds a refresh task. Identical refreshes enqueued within a minute are dropped.
func NewPriceRefreshTask(symbols []string) (*asynq.Task, error) {
	symbols = normalizeSymbols(symbols)
	if len(symbols) == 0 {
		return nil, fmt.Errorf("%s: no symbols", TaskTypePriceRefresh)
	}

	payload, err := json.Marshal(PriceRefreshPayload{Symbols: symbols})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypePriceRefresh, payload,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(refreshMaxRetry),
		asynq.Timeout(refreshTimeout),
		asynq.Unique(refreshUniqueTTL),
	), nil
}

// NewCacheClearTask builds a cache eviction task.
func NewCacheClearTask(symbols []string) (*asynq.Task, error) {
	payload, err := json.Marshal(CacheClearPayload{Symbols: normalizeSymbols(symbols)})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(TaskTypeCacheClear, payload, asynq.Queue(QueueCritical), asynq.MaxRetry(1)), nil
}

func normalizeSymbols(symbols []string) []string {
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
