// Package launcher starts and stops the external processes behind profiles.
package launcher

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"

	"github.com/mikan-dev/multibox/internal/infrastructure/logging"
	"github.com/mikan-dev/multibox/internal/shared/types"
)

// Config defines how instances are launched and stopped.
type Config struct {
	// Executable is the binary invoked per launch; for two-phase targets the
	// intermediary launcher.
	Executable string
	// Args precede the profile flag on every launch.
	Args []string
	// ProfileFlagPrefix is completed with the profile id.
	ProfileFlagPrefix string
	// TwoPhase marks launches whose real target appears later, possibly under
	// a different PID.
	TwoPhase bool
	// TargetName is matched against a stored pid's process name before that
	// pid is killed, so a recycled pid never takes down a stranger.
	TargetName string
	// StopWait bounds the wait-for-exit poll after a kill; StopWaitStep is
	// the poll period.
	StopWait     time.Duration
	StopWaitStep time.Duration
}

// Attributor resolves profiles to live pids by scanning, and tracks pending
// two-phase launches. Implemented by the procscan provider.
type Attributor interface {
	FindByProfile(ctx context.Context, profileID int) (int32, bool)
	EnqueuePending(profileID int)
	DropPending(profileID int)
}

// Provider implements the process-launcher service with os/exec.
type Provider struct {
	cfg    Config
	attrib Attributor
	logger *logging.Logger

	// start is swapped out in tests
	start func(name string, args []string) (int32, error)
}

// NewProvider creates a launcher
func NewProvider(cfg Config, attrib Attributor, logger *logging.Logger) *Provider {
	if cfg.StopWait <= 0 {
		cfg.StopWait = time.Second
	}
	if cfg.StopWaitStep <= 0 {
		cfg.StopWaitStep = 200 * time.Millisecond
	}
	p := &Provider{cfg: cfg, attrib: attrib, logger: logger}
	p.start = p.startOS
	return p
}

// Launch spawns the launcher executable for the profile. A launch whose
// profile already owns a live target process is refused, not errored.
func (p *Provider) Launch(ctx context.Context, profileID int) (*types.LaunchResult, error) {
	if pid, alive := p.attrib.FindByProfile(ctx, profileID); alive {
		return &types.LaunchResult{
			Success:   false,
			Message:   fmt.Sprintf("profile %d is already running (pid %d)", profileID, pid),
			ProcessID: &pid,
		}, nil
	}

	args := append(append([]string{}, p.cfg.Args...), p.cfg.ProfileFlagPrefix+strconv.Itoa(profileID))
	pid, err := p.start(p.cfg.Executable, args)
	if err != nil {
		return &types.LaunchResult{
			Success: false,
			Message: fmt.Sprintf("failed to launch profile %d: %v", profileID, err),
		}, nil
	}

	p.logger.Info("launcher process spawned",
		zap.Int("profile", profileID), zap.Int32("pid", pid), zap.Bool("two_phase", p.cfg.TwoPhase))

	if p.cfg.TwoPhase {
		// The target may surface without a profile tag; queue the profile so
		// the scanner can attribute the next unknown target pid to it.
		p.attrib.EnqueuePending(profileID)
	}

	return &types.LaunchResult{
		Success:               true,
		Message:               fmt.Sprintf("profile %d launched (pid %d)", profileID, pid),
		ProcessID:             &pid,
		WaitingForMainProcess: p.cfg.TwoPhase,
	}, nil
}

// Stop terminates the profile's process. The stored pid is tried first, after
// verifying its name still matches the target; otherwise a cmdline scan for
// the profile tag decides which pid to kill.
func (p *Provider) Stop(ctx context.Context, profileID int, pid *int32) (*types.StopResult, error) {
	p.attrib.DropPending(profileID)

	if pid != nil && p.looksLikeTarget(ctx, *pid) {
		if p.killAndWait(ctx, *pid) {
			return &types.StopResult{
				Success:   true,
				Message:   fmt.Sprintf("profile %d stopped (pid %d)", profileID, *pid),
				ProcessID: pid,
			}, nil
		}
		return &types.StopResult{
			Success:   false,
			Message:   fmt.Sprintf("profile %d: pid %d did not exit", profileID, *pid),
			ProcessID: pid,
		}, nil
	}

	if found, ok := p.attrib.FindByProfile(ctx, profileID); ok {
		if p.killAndWait(ctx, found) {
			return &types.StopResult{
				Success:   true,
				Message:   fmt.Sprintf("profile %d stopped (pid %d)", profileID, found),
				ProcessID: &found,
			}, nil
		}
		return &types.StopResult{
			Success:   false,
			Message:   fmt.Sprintf("profile %d: pid %d did not exit", profileID, found),
			ProcessID: &found,
		}, nil
	}

	return &types.StopResult{
		Success: false,
		Message: fmt.Sprintf("no process found for profile %d", profileID),
	}, nil
}

// looksLikeTarget reports whether the pid is alive and still names the target
func (p *Provider) looksLikeTarget(ctx context.Context, pid int32) bool {
	proc, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return false
	}
	name, err := proc.NameWithContext(ctx)
	if err != nil {
		return false
	}
	target := strings.ToLower(p.cfg.TargetName)
	if strings.Contains(strings.ToLower(name), target) {
		return true
	}
	exe, err := proc.ExeWithContext(ctx)
	return err == nil && strings.Contains(strings.ToLower(exe), target)
}

// killAndWait kills the pid and polls briefly for it to disappear
func (p *Provider) killAndWait(ctx context.Context, pid int32) bool {
	if proc, err := process.NewProcessWithContext(ctx, pid); err == nil {
		_ = proc.KillWithContext(ctx)
	}

	deadline := time.Now().Add(p.cfg.StopWait)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(p.cfg.StopWaitStep):
		}
		exists, err := process.PidExistsWithContext(ctx, pid)
		if err == nil && !exists {
			return true
		}
	}
	exists, err := process.PidExistsWithContext(ctx, pid)
	return err == nil && !exists
}

// startOS spawns the executable detached and reaps it in the background
func (p *Provider) startOS(name string, args []string) (int32, error) {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := int32(cmd.Process.Pid)

	// Reap the intermediary when it exits; its lifetime says nothing about
	// the target, which reconciliation tracks independently.
	go func() { _ = cmd.Wait() }()

	return pid, nil
}
