// Package guard polls the exclusivity detector and caches whether an
// exclusive external tool currently blocks launches.
package guard

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikan-dev/multibox/internal/events"
	"github.com/mikan-dev/multibox/internal/infrastructure/logging"
	"github.com/mikan-dev/multibox/internal/infrastructure/monitoring"
)

// Checker is the exclusivity-detector service contract
type Checker interface {
	IsActive(ctx context.Context) (bool, error)
}

// Guard maintains the process-wide exclusiveToolActive flag by polling the
// exclusivity detector. It fails closed: a detector error leaves the previous
// value unchanged. It holds no instance-specific state.
type Guard struct {
	mu     sync.RWMutex
	active bool

	checker  Checker
	interval time.Duration
	logger   *logging.Logger
	hub      *events.Hub
	metrics  *monitoring.Metrics
}

// New creates a guard polling checker every interval
func New(checker Checker, interval time.Duration, logger *logging.Logger) *Guard {
	return &Guard{
		checker:  checker,
		interval: interval,
		logger:   logger,
	}
}

// WithEvents attaches a notification hub
func (g *Guard) WithEvents(hub *events.Hub) *Guard {
	g.hub = hub
	return g
}

// WithMetrics adds metrics tracking
func (g *Guard) WithMetrics(metrics *monitoring.Metrics) *Guard {
	g.metrics = metrics
	return g
}

// Active returns the last observed exclusivity state
func (g *Guard) Active() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.active
}

// Refresh performs one detector poll. On error the previous value is kept and
// the failure is reported, not escalated. On an observed transition the guard
// emits a notification event so dependents can react.
func (g *Guard) Refresh(ctx context.Context) {
	active, err := g.checker.IsActive(ctx)
	if err != nil {
		g.logger.Warn("exclusivity check failed", zap.Error(err))
		if g.metrics != nil {
			g.metrics.GuardErrors.Inc()
		}
		return
	}

	g.mu.Lock()
	changed := active != g.active
	g.active = active
	g.mu.Unlock()

	if g.metrics != nil {
		if active {
			g.metrics.GuardActive.Set(1)
		} else {
			g.metrics.GuardActive.Set(0)
		}
	}

	if !changed {
		return
	}

	if g.metrics != nil {
		g.metrics.GuardTransitions.Inc()
	}
	g.logger.Info("exclusive launcher tool state changed", zap.Bool("active", active))
	if g.hub != nil {
		g.hub.Publish(events.TypeGuard, map[string]bool{"active": active})
		level := "info"
		msg := "exclusive launcher tool finished, launches enabled"
		if active {
			msg = "exclusive launcher tool detected, launches disabled"
		}
		g.hub.PublishLog(level, msg, nil)
	}
}

// Run polls until ctx is cancelled. An immediate out-of-band refresh runs
// first so dependents get feedback before the first full period elapses.
func (g *Guard) Run(ctx context.Context) {
	g.Refresh(ctx)

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Refresh(ctx)
		}
	}
}
