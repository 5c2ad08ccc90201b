package types

import "time"

// Status represents instance lifecycle states
type Status string

const (
	StatusStopped   Status = "stopped"
	StatusLaunching Status = "launching"
	StatusRunning   Status = "running"
)

// Instance represents one managed profile slot backed by an external process
type Instance struct {
	ProfileID   int    `json:"profile_id"`
	DisplayName string `json:"display_name"`
	Status      Status `json:"status"`

	// ProcessID is set iff Status != StatusStopped. While launching it holds
	// the intermediary launcher PID until the real target is observed.
	ProcessID *int32 `json:"process_id,omitempty"`

	// AwaitingMainProcess is true only while Status == StatusLaunching: the
	// intermediary launcher has started but the target process has not yet
	// been observed.
	AwaitingMainProcess bool `json:"awaiting_main_process"`

	CreatedAt time.Time `json:"created_at"`
}

// Snapshot maps profile ids to the PID currently attributed to them,
// produced fresh on each enumeration pass.
type Snapshot map[int]int32

// LaunchResult is the process-launcher service's launch outcome
type LaunchResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`

	// ProcessID is the PID known at launch time. For a two-phase launch this
	// is the intermediary's PID, not the target's.
	ProcessID *int32 `json:"process_id,omitempty"`

	// WaitingForMainProcess marks a two-phase launch: the target process will
	// appear later, possibly under a different PID.
	WaitingForMainProcess bool `json:"waiting_for_main_process"`
}

// StopResult is the process-launcher service's stop outcome
type StopResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ProcessID *int32 `json:"process_id,omitempty"`
}

// ProcessInfo describes one observed OS process (debug listing)
type ProcessInfo struct {
	PID       int32  `json:"pid"`
	Name      string `json:"name"`
	ProfileID *int   `json:"profile_id,omitempty"`
	ParentPID int32  `json:"parent_pid"`
	StartTime int64  `json:"start_time"`
	Exe       string `json:"exe"`
	Cmdline   string `json:"cmdline"`
}
