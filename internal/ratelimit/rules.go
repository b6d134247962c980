package ratelimit

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Proton-105/himera-trader/pkg/config"
)

// ErrNoRule is returned for commands without a dedicated limit.
var ErrNoRule = errors.New("no rate limit rule")

// Rules encapsulates configured rate limits and helper methods.
type Rules struct {
	config config.RateLimitConfig
}

// NewRules constructs rate limiting rules from configuration settings.
func NewRules(cfg config.RateLimitConfig) *Rules {
	return &Rules{config: cfg}
}

// Enabled reports whether limits should be enforced at all.
func (r *Rules) Enabled() bool {
	return r != nil && r.config.Enabled
}

// IsWhitelisted returns true if the userID bypasses rate limits.
func (r *Rules) IsWhitelisted(userID int64) bool {
	return slices.Contains(r.config.Whitelist, userID)
}

// GetCommandLimit returns the limit and window for a command name without the leading slash.
func (r *Rules) GetCommandLimit(command string) (int, time.Duration, error) {
	switch command {
	case "price":
		return parseRule(r.config.Commands.Price)
	case "long":
		return parseRule(r.config.Commands.Long)
	case "short":
		return parseRule(r.config.Commands.Short)
	default:
		return 0, 0, fmt.Errorf("%w for %q", ErrNoRule, command)
	}
}

// GetGlobalLimit returns the global rate limiting rule.
func (r *Rules) GetGlobalLimit() (int, time.Duration, error) {
	return parseRule(r.config.Global)
}

// GetPerUserLimit returns the per-user rate limiting rule.
func (r *Rules) GetPerUserLimit() (int, time.Duration, error) {
	return parseRule(r.config.PerUser)
}

func parseRule(rule config.RateLimitRule) (int, time.Duration, error) {
	if rule.Window == "" {
		return rule.Limit, 0, ErrNoRule
	}
	window, err := time.ParseDuration(rule.Window)
	if err != nil {
		return 0, 0, err
	}
	return rule.Limit, window, nil
}
