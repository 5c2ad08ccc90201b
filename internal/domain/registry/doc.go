// Package registry provides instance bookkeeping for the multibox backend.
//
// The Manager owns the authoritative map of managed profiles. It is a pure
// data structure: it records status and PID transitions but never touches OS
// processes itself. Launch and stop side effects live in the dispatch package,
// drift detection in the reconcile package.
//
// Key Components:
//   - Manager: thread-safe instance map keyed by profile id
//   - Profile id allocation: smallest unused positive integer, so ids freed
//     by removal are reused
//   - Status setters that maintain the PID/status invariants
//
// Example Usage:
//
//	reg := registry.NewManager().WithEvents(hub).WithMetrics(metrics)
//	inst := reg.Add("Alice")
//	reg.SetRunning(inst.ProfileID, 4242)
package registry
