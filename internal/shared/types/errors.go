package types

import "errors"

// Sentinel errors for lifecycle operations. All are non-fatal: callers log
// them with the profile id and attempted action and leave instance state at
// its pre-call value.
var (
	// ErrProfileNotFound indicates an operation referenced a profile id with
	// no registered instance.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrLauncherUnavailable indicates the machine-wide exclusivity
	// constraint is held, so no new launch may start.
	ErrLauncherUnavailable = errors.New("exclusive launcher tool is active")

	// ErrExternalCommand indicates the process-launcher service reported a
	// failure or returned an error.
	ErrExternalCommand = errors.New("external command failed")

	// ErrEnumeration indicates the process-enumerator service failed during
	// a reconciliation tick.
	ErrEnumeration = errors.New("process enumeration failed")

	// ErrGuardCheck indicates the exclusivity-detector service failed.
	ErrGuardCheck = errors.New("exclusivity check failed")
)
