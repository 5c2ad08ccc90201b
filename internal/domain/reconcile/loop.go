package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mikan-dev/multibox/internal/domain/registry"
	"github.com/mikan-dev/multibox/internal/events"
	"github.com/mikan-dev/multibox/internal/infrastructure/logging"
	"github.com/mikan-dev/multibox/internal/infrastructure/monitoring"
	"github.com/mikan-dev/multibox/internal/shared/types"
)

// Enumerator is the process-enumerator service contract
type Enumerator interface {
	ListRunning(ctx context.Context) (types.Snapshot, error)
}

// Loop merges observed PIDs into the registry's model on a fixed period. It
// only reads external state and writes registry records; it never initiates
// process launches.
type Loop struct {
	registry *registry.Manager
	enum     Enumerator
	logger   *logging.Logger
	hub      *events.Hub
	metrics  *monitoring.Metrics

	interval time.Duration

	// missThreshold is how many consecutive absent ticks a running instance
	// tolerates before it is treated as externally stopped. Guards against
	// enumeration flapping while the intermediary hands off to the target.
	missThreshold int
	missed        map[int]int

	// skip reports profiles with a stop in flight; those are left untouched
	// for the tick so reconciliation cannot race an explicit close.
	skip func(profileID int) bool
}

// New creates a reconciliation loop
func New(reg *registry.Manager, enum Enumerator, interval time.Duration, missThreshold int, logger *logging.Logger) *Loop {
	if missThreshold < 1 {
		missThreshold = 1
	}
	return &Loop{
		registry:      reg,
		enum:          enum,
		logger:        logger,
		interval:      interval,
		missThreshold: missThreshold,
		missed:        make(map[int]int),
		skip:          func(int) bool { return false },
	}
}

// WithEvents attaches a notification hub
func (l *Loop) WithEvents(hub *events.Hub) *Loop {
	l.hub = hub
	return l
}

// WithMetrics adds metrics tracking
func (l *Loop) WithMetrics(metrics *monitoring.Metrics) *Loop {
	l.metrics = metrics
	return l
}

// WithSkip sets the stop-in-flight predicate
func (l *Loop) WithSkip(skip func(profileID int) bool) *Loop {
	if skip != nil {
		l.skip = skip
	}
	return l
}

// Tick performs one reconciliation pass. An enumerator error aborts the tick
// and leaves all instance state unchanged; the next scheduled tick retries.
func (l *Loop) Tick(ctx context.Context) error {
	start := time.Now()
	if l.metrics != nil {
		l.metrics.ReconcileTicks.Inc()
		defer func() {
			l.metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
		}()
	}

	snap, err := l.enum.ListRunning(ctx)
	if err != nil {
		if l.metrics != nil {
			l.metrics.ReconcileErrors.Inc()
		}
		l.logger.Warn("reconciliation tick aborted", zap.Error(err))
		return fmt.Errorf("%w: %v", types.ErrEnumeration, err)
	}

	changed := false
	live := make(map[int]struct{})
	for _, inst := range l.registry.List() {
		live[inst.ProfileID] = struct{}{}
		if l.skip(inst.ProfileID) {
			continue
		}
		if l.apply(inst, snap) {
			changed = true
		}
	}
	for id := range l.missed {
		if _, ok := live[id]; !ok {
			delete(l.missed, id)
		}
	}

	l.reportForeign(snap)

	if changed && l.hub != nil {
		// Re-render only when something actually moved
		l.hub.Publish(events.TypeInstance, nil)
	}
	return nil
}

// apply reconciles one instance against the snapshot and reports whether its
// status or PID changed.
func (l *Loop) apply(inst *types.Instance, snap types.Snapshot) bool {
	id := inst.ProfileID
	pid, seen := snap[id]

	switch inst.Status {
	case types.StatusLaunching:
		if !seen {
			// Launcher phase still pending; no timeout here, an explicit
			// close is the only way out besides promotion.
			return false
		}
		delete(l.missed, id)
		l.registry.SetRunning(id, pid)
		l.transition(monitoring.TransitionPromotion)
		l.logger.Info("main process observed, instance promoted",
			zap.Int("profile", id), zap.Int32("pid", pid))
		l.sendLog("info", fmt.Sprintf("profile %d: main process up (pid %d)", id, pid), id)
		return true

	case types.StatusRunning:
		if seen {
			delete(l.missed, id)
			if inst.ProcessID != nil && *inst.ProcessID == pid {
				return false
			}
			old := int32(0)
			if inst.ProcessID != nil {
				old = *inst.ProcessID
			}
			l.registry.SetRunning(id, pid)
			l.transition(monitoring.TransitionMigration)
			l.logger.Info("instance pid migrated",
				zap.Int("profile", id), zap.Int32("old_pid", old), zap.Int32("new_pid", pid))
			l.sendLog("info", fmt.Sprintf("profile %d: pid changed %d -> %d", id, old, pid), id)
			return true
		}

		l.missed[id]++
		if l.missed[id] < l.missThreshold {
			return false
		}
		delete(l.missed, id)
		l.registry.SetStopped(id)
		l.transition(monitoring.TransitionExternalStop)
		l.logger.Info("instance process gone, marked stopped",
			zap.Int("profile", id))
		l.sendLog("info", fmt.Sprintf("profile %d: process exited", id), id)
		return true

	default: // StatusStopped
		if !seen {
			return false
		}
		delete(l.missed, id)
		l.registry.SetRunning(id, pid)
		l.transition(monitoring.TransitionDriftStart)
		l.logger.Info("externally started process detected",
			zap.Int("profile", id), zap.Int32("pid", pid))
		l.sendLog("warn", fmt.Sprintf("profile %d: started outside multibox (pid %d)", id, pid), id)
		return true
	}
}

// reportForeign logs snapshot entries with no matching instance. No instance
// is auto-created for them.
func (l *Loop) reportForeign(snap types.Snapshot) {
	for id, pid := range snap {
		if _, ok := l.registry.Get(id); ok {
			continue
		}
		if l.metrics != nil {
			l.metrics.ForeignProcesses.Inc()
		}
		l.logger.Warn("unmanaged process observed",
			zap.Int("profile", id), zap.Int32("pid", pid))
	}
}

// Run ticks until ctx is cancelled, starting with an immediate out-of-band
// tick so the model converges shortly after startup.
func (l *Loop) Run(ctx context.Context) {
	l.Tick(ctx)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

func (l *Loop) transition(kind string) {
	if l.metrics != nil {
		l.metrics.Transitions.WithLabelValues(kind).Inc()
	}
}

func (l *Loop) sendLog(level, msg string, profileID int) {
	if l.hub != nil {
		id := profileID
		l.hub.PublishLog(level, msg, &id)
	}
}
