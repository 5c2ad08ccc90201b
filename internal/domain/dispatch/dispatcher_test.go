package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikan-dev/multibox/internal/domain/registry"
	"github.com/mikan-dev/multibox/internal/infrastructure/logging"
	"github.com/mikan-dev/multibox/internal/shared/types"
)

type fakeLauncher struct {
	launchResult *types.LaunchResult
	launchErr    error
	stopResult   *types.StopResult
	stopErr      error
	launches     []int
	stops        []int
}

func (f *fakeLauncher) Launch(ctx context.Context, profileID int) (*types.LaunchResult, error) {
	f.launches = append(f.launches, profileID)
	return f.launchResult, f.launchErr
}

func (f *fakeLauncher) Stop(ctx context.Context, profileID int, pid *int32) (*types.StopResult, error) {
	f.stops = append(f.stops, profileID)
	return f.stopResult, f.stopErr
}

type fakeChecker struct {
	active bool
	err    error
}

func (f *fakeChecker) IsActive(ctx context.Context) (bool, error) {
	return f.active, f.err
}

func pidPtr(pid int32) *int32 { return &pid }

func newFixture(launcher *fakeLauncher, checker *fakeChecker) (*Dispatcher, *registry.Manager, int) {
	reg := registry.NewManager()
	inst := reg.Add("test")
	d := New(reg, launcher, checker, logging.NewNop())
	return d, reg, inst.ProfileID
}

func TestOpenTwoPhase(t *testing.T) {
	launcher := &fakeLauncher{launchResult: &types.LaunchResult{
		Success:               true,
		ProcessID:             pidPtr(100),
		WaitingForMainProcess: true,
	}}
	d, reg, id := newFixture(launcher, &fakeChecker{})

	require.NoError(t, d.Open(context.Background(), id))

	inst, _ := reg.Get(id)
	assert.Equal(t, types.StatusLaunching, inst.Status)
	assert.True(t, inst.AwaitingMainProcess)
	require.NotNil(t, inst.ProcessID)
	assert.Equal(t, int32(100), *inst.ProcessID)
}

func TestOpenSinglePhase(t *testing.T) {
	launcher := &fakeLauncher{launchResult: &types.LaunchResult{
		Success:   true,
		ProcessID: pidPtr(200),
	}}
	d, reg, id := newFixture(launcher, &fakeChecker{})

	require.NoError(t, d.Open(context.Background(), id))

	inst, _ := reg.Get(id)
	assert.Equal(t, types.StatusRunning, inst.Status)
	assert.False(t, inst.AwaitingMainProcess)
	assert.Equal(t, int32(200), *inst.ProcessID)
}

func TestOpenGatedByExclusivity(t *testing.T) {
	launcher := &fakeLauncher{}
	d, reg, id := newFixture(launcher, &fakeChecker{active: true})

	err := d.Open(context.Background(), id)
	assert.ErrorIs(t, err, types.ErrLauncherUnavailable)

	inst, _ := reg.Get(id)
	assert.Equal(t, types.StatusStopped, inst.Status)
	assert.Empty(t, launcher.launches, "launcher must not be invoked while gated")
}

func TestOpenChecksExclusivityLive(t *testing.T) {
	launcher := &fakeLauncher{}
	d, _, id := newFixture(launcher, &fakeChecker{err: errors.New("detector down")})

	err := d.Open(context.Background(), id)
	assert.ErrorIs(t, err, types.ErrGuardCheck)
	assert.Empty(t, launcher.launches)
}

func TestOpenIdempotentWhenNotStopped(t *testing.T) {
	launcher := &fakeLauncher{}
	d, reg, id := newFixture(launcher, &fakeChecker{})
	reg.SetRunning(id, 55)

	require.NoError(t, d.Open(context.Background(), id))

	inst, _ := reg.Get(id)
	assert.Equal(t, types.StatusRunning, inst.Status)
	assert.Empty(t, launcher.launches, "open on a running instance is a no-op")
}

func TestOpenLaunchFailureLeavesStopped(t *testing.T) {
	launcher := &fakeLauncher{launchResult: &types.LaunchResult{
		Success: false,
		Message: "spawn failed",
	}}
	d, reg, id := newFixture(launcher, &fakeChecker{})

	err := d.Open(context.Background(), id)
	assert.ErrorIs(t, err, types.ErrExternalCommand)

	inst, _ := reg.Get(id)
	assert.Equal(t, types.StatusStopped, inst.Status)
	assert.Nil(t, inst.ProcessID)
}

func TestOpenLaunchErrorLeavesStopped(t *testing.T) {
	launcher := &fakeLauncher{launchErr: errors.New("exec blew up")}
	d, reg, id := newFixture(launcher, &fakeChecker{})

	err := d.Open(context.Background(), id)
	assert.ErrorIs(t, err, types.ErrExternalCommand)

	inst, _ := reg.Get(id)
	assert.Equal(t, types.StatusStopped, inst.Status)
}

func TestOpenUnknownProfile(t *testing.T) {
	d, _, _ := newFixture(&fakeLauncher{}, &fakeChecker{})
	err := d.Open(context.Background(), 99)
	assert.ErrorIs(t, err, types.ErrProfileNotFound)
}

func TestCloseStopsInstance(t *testing.T) {
	launcher := &fakeLauncher{stopResult: &types.StopResult{Success: true}}
	d, reg, id := newFixture(launcher, &fakeChecker{})
	reg.SetRunning(id, 77)

	require.NoError(t, d.Close(context.Background(), id))

	inst, _ := reg.Get(id)
	assert.Equal(t, types.StatusStopped, inst.Status)
	assert.Nil(t, inst.ProcessID)
	assert.False(t, inst.AwaitingMainProcess)
}

func TestCloseIdempotentWhenStopped(t *testing.T) {
	launcher := &fakeLauncher{}
	d, reg, id := newFixture(launcher, &fakeChecker{})

	require.NoError(t, d.Close(context.Background(), id))

	inst, _ := reg.Get(id)
	assert.Equal(t, types.StatusStopped, inst.Status)
	assert.Empty(t, launcher.stops, "close on a stopped instance is a no-op")
}

func TestCloseFailureLeavesState(t *testing.T) {
	launcher := &fakeLauncher{stopResult: &types.StopResult{Success: false, Message: "won't die"}}
	d, reg, id := newFixture(launcher, &fakeChecker{})
	reg.SetRunning(id, 77)

	err := d.Close(context.Background(), id)
	assert.ErrorIs(t, err, types.ErrExternalCommand)

	inst, _ := reg.Get(id)
	assert.Equal(t, types.StatusRunning, inst.Status)
	require.NotNil(t, inst.ProcessID)
	assert.Equal(t, int32(77), *inst.ProcessID)
}

func TestCloseCanAbortLaunching(t *testing.T) {
	launcher := &fakeLauncher{stopResult: &types.StopResult{Success: true}}
	d, reg, id := newFixture(launcher, &fakeChecker{})
	reg.SetLaunching(id, 100)

	require.NoError(t, d.Close(context.Background(), id))

	inst, _ := reg.Get(id)
	assert.Equal(t, types.StatusStopped, inst.Status)
	assert.False(t, inst.AwaitingMainProcess)
}

func TestToggleDispatchesByStatus(t *testing.T) {
	launcher := &fakeLauncher{
		launchResult: &types.LaunchResult{Success: true, ProcessID: pidPtr(1)},
		stopResult:   &types.StopResult{Success: true},
	}
	d, reg, id := newFixture(launcher, &fakeChecker{})

	// Stopped -> open
	require.NoError(t, d.Toggle(context.Background(), id))
	assert.Len(t, launcher.launches, 1)

	// Running -> close
	require.NoError(t, d.Toggle(context.Background(), id))
	assert.Len(t, launcher.stops, 1)

	// Launching -> no-op
	reg.SetLaunching(id, 5)
	require.NoError(t, d.Toggle(context.Background(), id))
	assert.Len(t, launcher.launches, 1)
	assert.Len(t, launcher.stops, 1)
}

func TestStoppingFlagDuringClose(t *testing.T) {
	reg := registry.NewManager()
	inst := reg.Add("test")
	id := inst.ProfileID
	reg.SetRunning(id, 9)

	var observed bool
	launcher := &fakeLauncher{stopResult: &types.StopResult{Success: true}}
	d := New(reg, launcher, &fakeChecker{}, logging.NewNop())

	// Observe the flag from inside the stop call
	probe := &probeLauncher{inner: launcher, onStop: func() { observed = d.Stopping(id) }}
	d.launcher = probe

	require.NoError(t, d.Close(context.Background(), id))
	assert.True(t, observed, "profile must be marked stopping while the stop runs")
	assert.False(t, d.Stopping(id), "flag must clear after the stop returns")
}

type probeLauncher struct {
	inner  Launcher
	onStop func()
}

func (p *probeLauncher) Launch(ctx context.Context, profileID int) (*types.LaunchResult, error) {
	return p.inner.Launch(ctx, profileID)
}

func (p *probeLauncher) Stop(ctx context.Context, profileID int, pid *int32) (*types.StopResult, error) {
	p.onStop()
	return p.inner.Stop(ctx, profileID, pid)
}
