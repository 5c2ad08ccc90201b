// Package logging provides structured logging using uber/zap.
//
// Two modes are offered:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// The human-readable status lines the UI renders are ordinary log events;
// components mirror them to the events hub alongside the zap call, so the
// log stream is informational only and never a control channel.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("instance promoted", zap.Int("profile", 3), zap.Int32("pid", 555))
package logging
