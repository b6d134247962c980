// Package health runs dependency checks for the readiness probe.
package health

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sourcegraph/conc/pool"
	"gopkg.in/telebot.v3"
)

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusDown     = "down"

	defaultCheckTimeout = 2 * time.Second
)

// Checkable represents a component that can report its health status.
type Checkable interface {
	HealthCheck(ctx context.Context) error
}

// CheckFunc adapts a function to Checkable.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

type registration struct {
	name     string
	check    Checkable
	critical bool
}

// ComponentStatus is the outcome of one check.
type ComponentStatus struct {
	Status   string `json:"status"`
	Critical bool   `json:"critical"`
	Error    string `json:"error,omitempty"`
}

// Report aggregates component statuses. Status is down when a critical component
// fails and degraded when only optional ones do.
type Report struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentStatus `json:"components"`
}

// Healthy reports whether every critical component passed.
func (r Report) Healthy() bool {
	return r.Status != StatusDown
}

// Checker aggregates health checks for multiple components.
type Checker struct {
	log     *slog.Logger
	timeout time.Duration
	checks  []registration
}

// NewChecker instantiates a Checker; each check gets timeout, zero means two seconds.
func NewChecker(log *slog.Logger, timeout time.Duration) *Checker {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	return &Checker{log: log, timeout: timeout}
}

// AddCheck registers a component whose failure makes the service unready.
func (c *Checker) AddCheck(name string, check Checkable) {
	c.add(name, check, true)
}

// AddOptional registers a component the service can run without.
func (c *Checker) AddOptional(name string, check Checkable) {
	c.add(name, check, false)
}

func (c *Checker) add(name string, check Checkable, critical bool) {
	if name == "" || check == nil {
		return
	}
	c.checks = append(c.checks, registration{name: name, check: check, critical: critical})
}

// Names lists registered components in sorted order.
func (c *Checker) Names() []string {
	names := make([]string, 0, len(c.checks))
	for _, reg := range c.checks {
		names = append(names, reg.name)
	}
	sort.Strings(names)
	return names
}

type namedStatus struct {
	name   string
	status ComponentStatus
}

// Check runs all registered checks concurrently.
func (c *Checker) Check(ctx context.Context) Report {
	p := pool.NewWithResults[namedStatus]()
	for _, reg := range c.checks {
		p.Go(func() namedStatus {
			checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			status := ComponentStatus{Status: StatusOK, Critical: reg.critical}
			if err := reg.check.HealthCheck(checkCtx); err != nil {
				status.Status = StatusDown
				status.Error = err.Error()
				c.log.WarnContext(ctx, "health check failed",
					slog.String("component", reg.name),
					slog.Bool("critical", reg.critical),
					slog.Any("error", err),
				)
			}
			return namedStatus{name: reg.name, status: status}
		})
	}

	report := Report{Status: StatusOK, Components: make(map[string]ComponentStatus, len(c.checks))}
	for _, res := range p.Wait() {
		report.Components[res.name] = res.status
		if res.status.Status == StatusOK {
			continue
		}
		if res.status.Critical {
			report.Status = StatusDown
		} else if report.Status == StatusOK {
			report.Status = StatusDegraded
		}
	}

	return report
}

// DBChecker verifies connectivity to a PostgreSQL database.
type DBChecker struct {
	db *sql.DB
}

// NewDBChecker constructs a DBChecker.
func NewDBChecker(db *sql.DB) *DBChecker {
	return &DBChecker{db: db}
}

// HealthCheck pings the database to ensure it is reachable.
func (c *DBChecker) HealthCheck(ctx context.Context) error {
	if c == nil || c.db == nil {
		return sql.ErrConnDone
	}
	return c.db.PingContext(ctx)
}

// Pinger abstracts the subset of redis.Client used for health checks.
type Pinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// RedisChecker verifies connectivity to a Redis instance.
type RedisChecker struct {
	pinger Pinger
}

// NewRedisChecker constructs a RedisChecker.
func NewRedisChecker(pinger Pinger) *RedisChecker {
	return &RedisChecker{pinger: pinger}
}

// HealthCheck issues a PING command against Redis.
func (c *RedisChecker) HealthCheck(ctx context.Context) error {
	if c == nil || c.pinger == nil {
		return redis.ErrClosed
	}
	return c.pinger.Ping(ctx).Err()
}

// TelegramChecker verifies that the bot has authenticated against the Bot API.
type TelegramChecker struct {
	bot *telebot.Bot
}

// NewTelegramChecker constructs a TelegramChecker.
func NewTelegramChecker(bot *telebot.Bot) *TelegramChecker {
	return &TelegramChecker{bot: bot}
}

func (c *TelegramChecker) HealthCheck(context.Context) error {
	if c == nil || c.bot == nil || c.bot.Me == nil {
		return errors.New("telegram bot is not initialized")
	}
	return nil
}
