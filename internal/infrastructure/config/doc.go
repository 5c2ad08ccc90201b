// Package config provides 12-factor configuration management for the
// multibox backend.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - Launcher: external process launch and stop settings
//   - Reconcile: reconciliation loop period and miss threshold
//   - Guard: exclusivity guard poll period
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//
// Environment Variables:
//   - MULTIBOX_PORT, MULTIBOX_HOST
//   - MULTIBOX_LAUNCHER_EXE, MULTIBOX_TARGET_PROCESS, MULTIBOX_LAUNCHER_TWO_PHASE
//   - MULTIBOX_RECONCILE_INTERVAL, MULTIBOX_RECONCILE_MISS_THRESHOLD
//   - MULTIBOX_GUARD_INTERVAL
//   - MULTIBOX_LOG_LEVEL, MULTIBOX_LOG_DEV
//   - MULTIBOX_RATE_LIMIT_RPS, MULTIBOX_RATE_LIMIT_BURST
package config
