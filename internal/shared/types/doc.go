// Package types provides shared data structures for the multibox backend.
//
// This package defines the core types used across all components, keeping
// the domain packages free of import cycles.
//
// Core Types:
//   - Instance: One managed profile slot and its lifecycle state
//   - Status: Instance state enum (stopped, launching, running)
//   - Snapshot: profileId -> PID mapping from one enumeration pass
//   - LaunchResult, StopResult: process-launcher service outcomes
//   - ProcessInfo: Observed OS process description (debug listing)
//
// Error Sentinels:
//   - ErrProfileNotFound, ErrLauncherUnavailable, ErrExternalCommand,
//     ErrEnumeration, ErrGuardCheck
//
// Invariants carried by Instance:
//   - ProcessID == nil if and only if Status == StatusStopped
//   - AwaitingMainProcess implies Status == StatusLaunching
package types
