package registry

import (
	"sync"
	"time"

	"github.com/mikan-dev/multibox/internal/events"
	"github.com/mikan-dev/multibox/internal/infrastructure/monitoring"
	"github.com/mikan-dev/multibox/internal/shared/types"
)

// Manager owns the set of instance records and profile-id allocation. It is a
// passive data owner: it never touches OS processes. All mutations to an
// instance go through the setters below so the pid/status invariants hold at
// every observable point.
type Manager struct {
	mu        sync.RWMutex
	instances map[int]*types.Instance
	order     []int // insertion order, stable for rendering

	hub     *events.Hub
	metrics *monitoring.Metrics
}

// NewManager creates an empty registry
func NewManager() *Manager {
	return &Manager{
		instances: make(map[int]*types.Instance),
	}
}

// WithEvents attaches a notification hub to the registry
func (m *Manager) WithEvents(hub *events.Hub) *Manager {
	m.hub = hub
	return m
}

// WithMetrics adds metrics tracking to the registry
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// Add allocates the minimal unused profile id >= 1 and creates a stopped
// instance. It never fails.
func (m *Manager) Add(name string) *types.Instance {
	m.mu.Lock()

	id := 1
	for {
		if _, taken := m.instances[id]; !taken {
			break
		}
		id++
	}

	inst := &types.Instance{
		ProfileID:   id,
		DisplayName: name,
		Status:      types.StatusStopped,
		CreatedAt:   time.Now(),
	}
	m.instances[id] = inst
	m.order = append(m.order, id)

	snapshot := *inst
	m.publishCountsLocked()
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.ProfilesCreated.Inc()
	}
	m.notifyChanged()
	return &snapshot
}

// Remove deletes the instance. It performs no side effects on the underlying
// process; termination, if desired, is the caller's separate responsibility.
func (m *Manager) Remove(profileID int) bool {
	m.mu.Lock()

	if _, ok := m.instances[profileID]; !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.instances, profileID)
	for i, id := range m.order {
		if id == profileID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.publishCountsLocked()
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.ProfilesRemoved.Inc()
	}
	m.notifyChanged()
	return true
}

// Get retrieves an instance by profile id
func (m *Manager) Get(profileID int) (*types.Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inst, ok := m.instances[profileID]
	if !ok {
		return nil, false
	}

	// Return a copy to prevent external modifications
	snapshot := *inst
	return &snapshot, true
}

// List returns all instances in insertion order
func (m *Manager) List() []*types.Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*types.Instance, 0, len(m.order))
	for _, id := range m.order {
		snapshot := *m.instances[id]
		out = append(out, &snapshot)
	}
	return out
}

// SetLaunching records a two-phase launch in flight: the intermediary
// launcher is up under pid, the target process not yet observed.
func (m *Manager) SetLaunching(profileID int, pid int32) (*types.Instance, bool) {
	return m.mutate(profileID, func(inst *types.Instance) {
		inst.Status = types.StatusLaunching
		inst.ProcessID = &pid
		inst.AwaitingMainProcess = true
	})
}

// SetRunning records the instance as running under pid
func (m *Manager) SetRunning(profileID int, pid int32) (*types.Instance, bool) {
	return m.mutate(profileID, func(inst *types.Instance) {
		inst.Status = types.StatusRunning
		inst.ProcessID = &pid
		inst.AwaitingMainProcess = false
	})
}

// SetStopped records the instance as stopped and clears its pid
func (m *Manager) SetStopped(profileID int) (*types.Instance, bool) {
	return m.mutate(profileID, func(inst *types.Instance) {
		inst.Status = types.StatusStopped
		inst.ProcessID = nil
		inst.AwaitingMainProcess = false
	})
}

// mutate applies fn under the write lock and returns a copy of the result
func (m *Manager) mutate(profileID int, fn func(*types.Instance)) (*types.Instance, bool) {
	m.mu.Lock()

	inst, ok := m.instances[profileID]
	if !ok {
		m.mu.Unlock()
		return nil, false
	}
	fn(inst)
	snapshot := *inst
	m.publishCountsLocked()
	m.mu.Unlock()

	return &snapshot, true
}

// Counts returns instance totals by status
func (m *Manager) Counts() (stopped, launching, running int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countsLocked()
}

func (m *Manager) countsLocked() (stopped, launching, running int) {
	for _, inst := range m.instances {
		switch inst.Status {
		case types.StatusStopped:
			stopped++
		case types.StatusLaunching:
			launching++
		case types.StatusRunning:
			running++
		}
	}
	return
}

func (m *Manager) publishCountsLocked() {
	if m.metrics == nil {
		return
	}
	stopped, launching, running := m.countsLocked()
	m.metrics.SetInstanceCounts(stopped, launching, running)
}

func (m *Manager) notifyChanged() {
	if m.hub != nil {
		m.hub.Publish(events.TypeInstance, nil)
	}
}
