// Package dispatch executes user-initiated open, close, and toggle commands.
package dispatch

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mikan-dev/multibox/internal/domain/registry"
	"github.com/mikan-dev/multibox/internal/events"
	"github.com/mikan-dev/multibox/internal/infrastructure/logging"
	"github.com/mikan-dev/multibox/internal/infrastructure/monitoring"
	"github.com/mikan-dev/multibox/internal/shared/types"
)

// Launcher is the process-launcher service contract
type Launcher interface {
	Launch(ctx context.Context, profileID int) (*types.LaunchResult, error)
	Stop(ctx context.Context, profileID int, pid *int32) (*types.StopResult, error)
}

// Checker is the exclusivity-detector service contract, queried live at open
// time to close the race window between the last guard tick and the command.
type Checker interface {
	IsActive(ctx context.Context) (bool, error)
}

// Dispatcher executes user-initiated open/close commands against the
// process-launcher service. Commands for the same profile are serialized on a
// per-instance lock; the reconciliation loop skips profiles with a stop in
// flight (see Stopping).
type Dispatcher struct {
	registry *registry.Manager
	launcher Launcher
	checker  Checker
	logger   *logging.Logger
	hub      *events.Hub
	metrics  *monitoring.Metrics

	mu    sync.Mutex
	locks map[int]*sync.Mutex

	stopMu   sync.RWMutex
	stopping map[int]struct{}
}

// New creates a dispatcher
func New(reg *registry.Manager, launcher Launcher, checker Checker, logger *logging.Logger) *Dispatcher {
	return &Dispatcher{
		registry: reg,
		launcher: launcher,
		checker:  checker,
		logger:   logger,
		locks:    make(map[int]*sync.Mutex),
		stopping: make(map[int]struct{}),
	}
}

// WithEvents attaches a notification hub
func (d *Dispatcher) WithEvents(hub *events.Hub) *Dispatcher {
	d.hub = hub
	return d
}

// WithMetrics adds metrics tracking
func (d *Dispatcher) WithMetrics(metrics *monitoring.Metrics) *Dispatcher {
	d.metrics = metrics
	return d
}

// Open launches the instance's external process. No-op if the instance is not
// stopped. Exclusivity is re-checked live, not just from the cached guard
// state.
func (d *Dispatcher) Open(ctx context.Context, profileID int) error {
	unlock := d.lock(profileID)
	defer unlock()

	inst, ok := d.registry.Get(profileID)
	if !ok {
		return fmt.Errorf("%w: %d", types.ErrProfileNotFound, profileID)
	}
	if inst.Status != types.StatusStopped {
		d.logger.Info("open ignored, instance not stopped",
			zap.Int("profile", profileID),
			zap.String("status", string(inst.Status)),
		)
		return nil
	}

	active, err := d.checker.IsActive(ctx)
	if err != nil {
		d.logger.Warn("open aborted, exclusivity check failed",
			zap.Int("profile", profileID), zap.Error(err))
		return fmt.Errorf("%w: %v", types.ErrGuardCheck, err)
	}
	if active {
		d.logger.Info("open refused, exclusive launcher tool is active",
			zap.Int("profile", profileID))
		d.publishLog("warn", fmt.Sprintf("profile %d: launcher busy, try again shortly", profileID), profileID)
		return fmt.Errorf("%w: profile %d", types.ErrLauncherUnavailable, profileID)
	}

	if d.metrics != nil {
		d.metrics.LaunchesTotal.Inc()
	}

	res, err := d.launcher.Launch(ctx, profileID)
	if err != nil {
		d.countLaunchError()
		d.logger.Error("launch failed", zap.Int("profile", profileID), zap.Error(err))
		return fmt.Errorf("%w: launch profile %d: %v", types.ErrExternalCommand, profileID, err)
	}
	if !res.Success || res.ProcessID == nil {
		d.countLaunchError()
		d.logger.Warn("launch rejected",
			zap.Int("profile", profileID), zap.String("message", res.Message))
		d.publishLog("warn", res.Message, profileID)
		return fmt.Errorf("%w: %s", types.ErrExternalCommand, res.Message)
	}

	pid := *res.ProcessID
	if res.WaitingForMainProcess {
		d.registry.SetLaunching(profileID, pid)
		d.logger.Info("launcher started, waiting for main process",
			zap.Int("profile", profileID), zap.Int32("launcher_pid", pid))
		d.publishLog("info", fmt.Sprintf("profile %d: launcher running (pid %d), waiting for main process", profileID, pid), profileID)
	} else {
		d.registry.SetRunning(profileID, pid)
		d.logger.Info("instance started",
			zap.Int("profile", profileID), zap.Int32("pid", pid))
		d.publishLog("info", fmt.Sprintf("profile %d: started (pid %d)", profileID, pid), profileID)
	}

	d.notifyChanged()
	return nil
}

// Close stops the instance's external process. No-op if the instance is
// already stopped.
func (d *Dispatcher) Close(ctx context.Context, profileID int) error {
	unlock := d.lock(profileID)
	defer unlock()

	inst, ok := d.registry.Get(profileID)
	if !ok {
		return fmt.Errorf("%w: %d", types.ErrProfileNotFound, profileID)
	}
	if inst.Status == types.StatusStopped {
		d.logger.Info("close ignored, instance already stopped",
			zap.Int("profile", profileID))
		return nil
	}

	// Keep the reconciliation loop off this profile while the stop runs
	d.markStopping(profileID)
	defer d.unmarkStopping(profileID)

	if d.metrics != nil {
		d.metrics.StopsTotal.Inc()
	}

	res, err := d.launcher.Stop(ctx, profileID, inst.ProcessID)
	if err != nil {
		d.countStopError()
		d.logger.Error("stop failed", zap.Int("profile", profileID), zap.Error(err))
		return fmt.Errorf("%w: stop profile %d: %v", types.ErrExternalCommand, profileID, err)
	}
	if !res.Success {
		d.countStopError()
		d.logger.Warn("stop rejected",
			zap.Int("profile", profileID), zap.String("message", res.Message))
		d.publishLog("warn", res.Message, profileID)
		return fmt.Errorf("%w: %s", types.ErrExternalCommand, res.Message)
	}

	d.registry.SetStopped(profileID)
	d.logger.Info("instance stopped", zap.Int("profile", profileID))
	d.publishLog("info", fmt.Sprintf("profile %d: stopped", profileID), profileID)

	d.notifyChanged()
	return nil
}

// Toggle dispatches based on current status: stopped opens, running closes,
// launching is a no-op since a launch already in flight must not be
// double-triggered.
func (d *Dispatcher) Toggle(ctx context.Context, profileID int) error {
	inst, ok := d.registry.Get(profileID)
	if !ok {
		return fmt.Errorf("%w: %d", types.ErrProfileNotFound, profileID)
	}

	switch inst.Status {
	case types.StatusStopped:
		return d.Open(ctx, profileID)
	case types.StatusRunning:
		return d.Close(ctx, profileID)
	default:
		d.logger.Info("toggle ignored, launch in flight", zap.Int("profile", profileID))
		return nil
	}
}

// Stopping reports whether a stop command is currently in flight for the
// profile. The reconciliation loop skips such profiles to avoid racing the
// stop.
func (d *Dispatcher) Stopping(profileID int) bool {
	d.stopMu.RLock()
	defer d.stopMu.RUnlock()
	_, ok := d.stopping[profileID]
	return ok
}

func (d *Dispatcher) markStopping(profileID int) {
	d.stopMu.Lock()
	d.stopping[profileID] = struct{}{}
	d.stopMu.Unlock()
}

func (d *Dispatcher) unmarkStopping(profileID int) {
	d.stopMu.Lock()
	delete(d.stopping, profileID)
	d.stopMu.Unlock()
}

// lock serializes commands for one profile
func (d *Dispatcher) lock(profileID int) func() {
	d.mu.Lock()
	l, ok := d.locks[profileID]
	if !ok {
		l = &sync.Mutex{}
		d.locks[profileID] = l
	}
	d.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (d *Dispatcher) countLaunchError() {
	if d.metrics != nil {
		d.metrics.LaunchErrors.Inc()
	}
}

func (d *Dispatcher) countStopError() {
	if d.metrics != nil {
		d.metrics.StopErrors.Inc()
	}
}

func (d *Dispatcher) publishLog(level, msg string, profileID int) {
	if d.hub != nil {
		id := profileID
		d.hub.PublishLog(level, msg, &id)
	}
}

func (d *Dispatcher) notifyChanged() {
	if d.hub != nil {
		d.hub.Publish(events.TypeInstance, nil)
	}
}
