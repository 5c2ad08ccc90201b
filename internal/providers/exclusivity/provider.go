// Package exclusivity detects external tools that must not run concurrently
// with managed launches.
package exclusivity

import (
	"context"
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/mikan-dev/multibox/internal/infrastructure/logging"
)

// Config names the processes that hold the machine-wide exclusivity
// constraint while running.
type Config struct {
	ProcessNames []string
}

// Provider implements the exclusivity-detector service by scanning the OS
// process table for the configured process names.
type Provider struct {
	cfg    Config
	logger *logging.Logger

	// scan is swapped out in tests
	scan func(ctx context.Context) ([]namedProc, error)
}

type namedProc struct {
	name string
	exe  string
}

// NewProvider creates a detector
func NewProvider(cfg Config, logger *logging.Logger) *Provider {
	p := &Provider{cfg: cfg, logger: logger}
	p.scan = scanOS
	return p
}

// IsActive reports whether any configured exclusive process is running.
func (p *Provider) IsActive(ctx context.Context) (bool, error) {
	procs, err := p.scan(ctx)
	if err != nil {
		return false, fmt.Errorf("process scan: %w", err)
	}

	for _, pr := range procs {
		name := strings.ToLower(pr.name)
		exe := strings.ToLower(pr.exe)
		for _, want := range p.cfg.ProcessNames {
			w := strings.ToLower(want)
			if w == "" {
				continue
			}
			if strings.Contains(name, w) || strings.Contains(exe, w) {
				return true, nil
			}
		}
	}
	return false, nil
}

func scanOS(ctx context.Context) ([]namedProc, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]namedProc, 0, len(procs))
	for _, proc := range procs {
		name, err := proc.NameWithContext(ctx)
		if err != nil {
			continue
		}
		exe, _ := proc.ExeWithContext(ctx)
		out = append(out, namedProc{name: name, exe: exe})
	}
	return out, nil
}
