// Package metrics holds application-level Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	botCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_commands_total",
			Help: "Total number of bot commands received labeled by command and status",
		},
		[]string{"command", "status"},
	)
	commandDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "command_duration_seconds",
			Help:    "Duration of bot commands in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors split by type and severity",
		},
		[]string{"type", "severity"},
	)
	cacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_cache_operations_total",
			Help: "Cache operations by operation, tier and result",
		},
		[]string{"op", "tier", "result"},
	)
	cacheFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_cache_fallbacks_total",
			Help: "Primary cache failures that were served by the memory tier",
		},
		[]string{"op"},
	)
	providerAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_provider_attempts_total",
			Help: "Provider attempts by provider and result",
		},
		[]string{"provider", "result"},
	)
	providerDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "price_provider_duration_seconds",
			Help:    "Duration of provider attempts in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)
	resolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_resolutions_total",
			Help: "Price resolutions by outcome",
		},
		[]string{"outcome"},
	)
	coalescedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "price_resolutions_coalesced_total",
			Help: "Resolutions that shared an in-flight lookup for the same symbol",
		},
	)
	cacheWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_cache_writebacks_total",
			Help: "Asynchronous cache write-backs by result",
		},
		[]string{"result"},
	)
	dialogTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_dialog_transitions_total",
			Help: "Order dialog state transitions",
		},
		[]string{"from", "to"},
	)
)

// RecordCommand increments command counters and records duration.
func RecordCommand(command, status string, duration time.Duration) {
	botCommandsTotal.WithLabelValues(orUnknown(command), orUnknown(status)).Inc()
	commandDurationSeconds.WithLabelValues(orUnknown(command)).Observe(duration.Seconds())
}

// RecordError increments error counters with metadata.
func RecordError(errType, severity string) {
	errorsTotal.WithLabelValues(orUnknown(errType), orUnknown(severity)).Inc()
}

// RecordCacheOperation counts a cache access; tier is "primary" or "memory", result "hit", "miss", "ok" or "error".
func RecordCacheOperation(op, tier, result string) {
	cacheOperationsTotal.WithLabelValues(orUnknown(op), orUnknown(tier), orUnknown(result)).Inc()
}

// RecordCacheFallback counts a primary failure absorbed by the memory tier.
func RecordCacheFallback(op string) {
	cacheFallbacksTotal.WithLabelValues(orUnknown(op)).Inc()
}

// RecordProviderAttempt tracks a single upstream attempt.
func RecordProviderAttempt(provider, result string, duration time.Duration) {
	providerAttemptsTotal.WithLabelValues(orUnknown(provider), orUnknown(result)).Inc()
	providerDurationSeconds.WithLabelValues(orUnknown(provider)).Observe(duration.Seconds())
}

// RecordResolution counts a finished price resolution: "cached", a provider id, or an error kind.
func RecordResolution(outcome string) {
	resolutionsTotal.WithLabelValues(orUnknown(outcome)).Inc()
}

// RecordCoalesced counts a resolution that joined an in-flight lookup.
func RecordCoalesced() {
	coalescedTotal.Inc()
}

// RecordWriteBack counts asynchronous cache write-backs.
func RecordWriteBack(ok bool) {
	if ok {
		cacheWritesTotal.WithLabelValues("ok").Inc()
		return
	}
	cacheWritesTotal.WithLabelValues("error").Inc()
}

// RecordStateTransition counts a dialog transition.
func RecordStateTransition(from, to string) {
	dialogTransitionsTotal.WithLabelValues(orUnknown(from), orUnknown(to)).Inc()
}

func orUnknown(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
