// Package reconcile merges observed OS process state into the instance
// registry on a fixed period.
//
// Each tick takes one enumeration snapshot (profile id -> PID) and applies it
// per instance:
//   - launching + observed: promote to running under the observed PID
//   - launching + absent: leave untouched (launcher phase still pending)
//   - running + same PID: no change
//   - running + different PID: adopt the new PID
//   - running + absent: externally stopped, after a configurable number of
//     consecutive misses
//   - stopped + observed: adopt as running (started outside multibox)
//
// Observed processes with no matching instance are logged, never adopted.
// An enumeration failure aborts the whole tick and changes nothing; the next
// tick retries.
package reconcile
