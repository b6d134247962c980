package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/Proton-105/himera-trader/internal/health"
)

// ErrDraining is returned by Readiness once shutdown has begun.
var ErrDraining = errors.New("service is shutting down")

// HealthChecker exposes liveness and readiness probes.
type HealthChecker interface {
	Liveness(ctx context.Context) error
	Readiness(ctx context.Context) (health.Report, error)
}

// Probes backs the liveness and readiness endpoints with a health.Checker.
type Probes struct {
	checker  *health.Checker
	draining atomic.Bool
	log      *slog.Logger
}

var _ HealthChecker = (*Probes)(nil)

// NewProbes creates a new Probes instance.
func NewProbes(checker *health.Checker, log *slog.Logger) *Probes {
	if log == nil {
		log = slog.Default()
	}
	if checker == nil {
		checker = health.NewChecker(log, 0)
	}
	return &Probes{checker: checker, log: log}
}

// Liveness reports success while the process is serving.
func (p *Probes) Liveness(context.Context) error {
	return nil
}

// Readiness runs dependency checks. It fails when a critical dependency is down or the service is draining.
func (p *Probes) Readiness(ctx context.Context) (health.Report, error) {
	report := p.checker.Check(ctx)
	if p.draining.Load() {
		report.Status = health.StatusDown
		return report, ErrDraining
	}
	if !report.Healthy() {
		return report, errors.New("critical dependency unavailable")
	}
	return report, nil
}

// Drain flips readiness to failing so load balancers stop routing before hooks run.
func (p *Probes) Drain() {
	if p.draining.CompareAndSwap(false, true) {
		p.log.Info("readiness probe draining")
	}
}
