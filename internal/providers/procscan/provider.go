// Package procscan enumerates OS processes and attributes them to profiles.
//
// Attribution has two sources: a "--profile=N" flag on the process command
// line, and a FIFO of pending two-phase launches for targets that carry no
// flag. FIFO assignments stick until the PID disappears, so repeated scans
// stay stable.
package procscan

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"

	"github.com/mikan-dev/multibox/internal/infrastructure/logging"
	"github.com/mikan-dev/multibox/internal/shared/types"
)

// Config defines how observed processes are matched and attributed.
type Config struct {
	// TargetName is the case-insensitive name fragment of the real target
	// process.
	TargetName string
	// IntermediaryName names the intermediary launcher; processes matching it
	// are never treated as targets.
	IntermediaryName string
	// ProfileFlagPrefix is the cmdline fragment carrying the profile id,
	// e.g. "--profile=".
	ProfileFlagPrefix string
}

// procInfo is one observed process, as much of it as attribution needs.
type procInfo struct {
	pid     int32
	name    string
	exe     string
	cmdline string
	ppid    int32
	started int64
}

// Provider implements the process-enumerator service by scanning the OS
// process table. Besides direct cmdline attribution it keeps two pieces of
// session state: a FIFO of profiles whose two-phase launch is pending, used
// to attribute target processes that surface without a profile tag, and the
// pid assignments that attribution produced.
type Provider struct {
	cfg    Config
	logger *logging.Logger

	// scan is swapped out in tests
	scan func(ctx context.Context) ([]procInfo, error)

	mu       sync.Mutex
	pending  []int         // launched profiles awaiting an unknown target pid
	assigned map[int32]int // pid -> profile, for untagged targets
}

// NewProvider creates a process scanner
func NewProvider(cfg Config, logger *logging.Logger) *Provider {
	p := &Provider{
		cfg:      cfg,
		logger:   logger,
		assigned: make(map[int32]int),
	}
	p.scan = p.scanOS
	return p
}

// ListRunning produces a fresh profileId -> PID snapshot of all currently
// observed target processes.
func (p *Provider) ListRunning(ctx context.Context) (types.Snapshot, error) {
	procs, err := p.scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("process scan: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	snap := make(types.Snapshot)
	seen := make(map[int32]bool)

	for _, pr := range procs {
		if !p.isTarget(pr) {
			continue
		}
		seen[pr.pid] = true

		if profile, ok := p.extractProfile(pr.cmdline); ok {
			if _, taken := snap[profile]; !taken {
				snap[profile] = pr.pid
			}
			continue
		}

		// Untagged target: keep an earlier attribution, otherwise hand the
		// pid to the oldest pending launch.
		if profile, ok := p.assigned[pr.pid]; ok {
			if _, taken := snap[profile]; !taken {
				snap[profile] = pr.pid
			}
			continue
		}
		if profile, ok := p.popPendingLocked(); ok {
			p.assigned[pr.pid] = profile
			snap[profile] = pr.pid
			p.logger.Info("untagged target attributed to pending launch",
				zap.Int("profile", profile), zap.Int32("pid", pr.pid))
		} else {
			p.logger.Warn("untagged target with no pending launch",
				zap.Int32("pid", pr.pid))
		}
	}

	// Forget assignments whose pid is gone
	for pid := range p.assigned {
		if !seen[pid] {
			delete(p.assigned, pid)
		}
	}

	return snap, nil
}

// EnqueuePending records a two-phase launch so the next unknown target pid
// can be attributed to it, FIFO.
func (p *Provider) EnqueuePending(profileID int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = append(p.pending, profileID)
}

// DropPending removes a profile from the pending queue and forgets its pid
// assignments (called when the profile is closed).
func (p *Provider) DropPending(profileID int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := p.pending[:0]
	for _, id := range p.pending {
		if id != profileID {
			kept = append(kept, id)
		}
	}
	p.pending = kept

	for pid, id := range p.assigned {
		if id == profileID {
			delete(p.assigned, pid)
		}
	}
}

// FindByProfile scans for a live target process tagged with the profile id.
func (p *Provider) FindByProfile(ctx context.Context, profileID int) (int32, bool) {
	procs, err := p.scan(ctx)
	if err != nil {
		return 0, false
	}
	tag := p.cfg.ProfileFlagPrefix + strconv.Itoa(profileID)
	for _, pr := range procs {
		if strings.Contains(pr.cmdline, tag) {
			return pr.pid, true
		}
	}
	return 0, false
}

// DebugProcesses lists launcher- and target-related processes for diagnosis.
func (p *Provider) DebugProcesses(ctx context.Context) ([]types.ProcessInfo, error) {
	procs, err := p.scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("process scan: %w", err)
	}

	var out []types.ProcessInfo
	for _, pr := range procs {
		if !p.related(pr) {
			continue
		}
		info := types.ProcessInfo{
			PID:       pr.pid,
			Name:      pr.name,
			ParentPID: pr.ppid,
			StartTime: pr.started,
			Exe:       pr.exe,
			Cmdline:   pr.cmdline,
		}
		if profile, ok := p.extractProfile(pr.cmdline); ok {
			info.ProfileID = &profile
		}
		out = append(out, info)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

// isTarget reports whether the process is the real target application.
func (p *Provider) isTarget(pr procInfo) bool {
	name := strings.ToLower(pr.name)
	inter := strings.ToLower(p.cfg.IntermediaryName)
	if inter != "" && strings.Contains(name, inter) {
		return false
	}
	return strings.Contains(name, strings.ToLower(p.cfg.TargetName))
}

// related matches anything worth showing in the debug listing.
func (p *Provider) related(pr procInfo) bool {
	name := strings.ToLower(pr.name)
	exe := strings.ToLower(pr.exe)
	target := strings.ToLower(p.cfg.TargetName)
	inter := strings.ToLower(p.cfg.IntermediaryName)
	return strings.Contains(name, target) || strings.Contains(exe, target) ||
		(inter != "" && (strings.Contains(name, inter) || strings.Contains(exe, inter)))
}

// extractProfile pulls the profile id out of a cmdline tag like "--profile=3".
func (p *Provider) extractProfile(cmdline string) (int, bool) {
	idx := strings.Index(cmdline, p.cfg.ProfileFlagPrefix)
	if idx < 0 {
		return 0, false
	}
	rest := cmdline[idx+len(p.cfg.ProfileFlagPrefix):]
	if end := strings.IndexByte(rest, ' '); end >= 0 {
		rest = rest[:end]
	}
	id, err := strconv.Atoi(rest)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

func (p *Provider) popPendingLocked() (int, bool) {
	if len(p.pending) == 0 {
		return 0, false
	}
	id := p.pending[0]
	p.pending = p.pending[1:]
	return id, true
}

// scanOS reads the OS process table via gopsutil. Fields that cannot be read
// for a process (it may have exited mid-scan) are left empty rather than
// failing the pass.
func (p *Provider) scanOS(ctx context.Context) ([]procInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]procInfo, 0, len(procs))
	for _, proc := range procs {
		name, err := proc.NameWithContext(ctx)
		if err != nil {
			continue
		}
		info := procInfo{pid: proc.Pid, name: name}
		info.cmdline, _ = proc.CmdlineWithContext(ctx)
		info.exe, _ = proc.ExeWithContext(ctx)
		info.ppid, _ = proc.PpidWithContext(ctx)
		info.started, _ = proc.CreateTimeWithContext(ctx)
		out = append(out, info)
	}
	return out, nil
}
