package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Launcher  LauncherConfig
	Reconcile ReconcileConfig
	Guard     GuardConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"MULTIBOX_PORT" default:"8090"`
	Host string `envconfig:"MULTIBOX_HOST" default:"0.0.0.0"`
}

// LauncherConfig holds process-launcher configuration.
type LauncherConfig struct {
	// Executable is the binary invoked per launch. For two-phase targets this
	// is the intermediary launcher, not the application itself.
	Executable string `envconfig:"MULTIBOX_LAUNCHER_EXE" default:"start_protected_game"`
	// Args are passed to every launch before the profile flag.
	Args []string `envconfig:"MULTIBOX_LAUNCHER_ARGS" default:"--no-vr"`
	// ProfileFlagPrefix is completed with the profile id, e.g. "--profile=3".
	ProfileFlagPrefix string `envconfig:"MULTIBOX_LAUNCHER_PROFILE_FLAG" default:"--profile="`
	// TwoPhase marks launches where the real target process appears later,
	// possibly under a different PID.
	TwoPhase bool `envconfig:"MULTIBOX_LAUNCHER_TWO_PHASE" default:"true"`
	// TargetProcess is the (case-insensitive) name fragment of the real
	// target process.
	TargetProcess string `envconfig:"MULTIBOX_TARGET_PROCESS" default:"vrchat"`
	// IntermediaryProcess names the intermediary launcher process, excluded
	// from target matching and watched by the exclusivity detector.
	IntermediaryProcess string `envconfig:"MULTIBOX_INTERMEDIARY_PROCESS" default:"start_protected_game"`
	// StopWait bounds the wait-for-exit poll after a kill.
	StopWait     time.Duration `envconfig:"MULTIBOX_STOP_WAIT" default:"1s"`
	StopWaitStep time.Duration `envconfig:"MULTIBOX_STOP_WAIT_STEP" default:"200ms"`
}

// ReconcileConfig holds reconciliation loop configuration.
type ReconcileConfig struct {
	Interval time.Duration `envconfig:"MULTIBOX_RECONCILE_INTERVAL" default:"3s"`
	// MissThreshold is how many consecutive ticks a running instance's PID
	// must be absent before it is treated as externally stopped.
	MissThreshold int `envconfig:"MULTIBOX_RECONCILE_MISS_THRESHOLD" default:"2"`
}

// GuardConfig holds exclusivity guard configuration.
type GuardConfig struct {
	Interval time.Duration `envconfig:"MULTIBOX_GUARD_INTERVAL" default:"2s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"MULTIBOX_LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"MULTIBOX_LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"MULTIBOX_RATE_LIMIT_RPS" default:"50"`
	Burst             int  `envconfig:"MULTIBOX_RATE_LIMIT_BURST" default:"100"`
	Enabled           bool `envconfig:"MULTIBOX_RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8090",
			Host: "0.0.0.0",
		},
		Launcher: LauncherConfig{
			Executable:          "start_protected_game",
			Args:                []string{"--no-vr"},
			ProfileFlagPrefix:   "--profile=",
			TwoPhase:            true,
			TargetProcess:       "vrchat",
			IntermediaryProcess: "start_protected_game",
			StopWait:            time.Second,
			StopWaitStep:        200 * time.Millisecond,
		},
		Reconcile: ReconcileConfig{
			Interval:      3 * time.Second,
			MissThreshold: 2,
		},
		Guard: GuardConfig{
			Interval: 2 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
			Enabled:           true,
		},
	}
}
