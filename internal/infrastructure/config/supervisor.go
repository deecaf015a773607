package config

import "time"

// SupervisorConfig holds worker spawning and health policy
type SupervisorConfig struct {
	// FrozenThreshold is the heartbeat age past which a worker counts as frozen
	FrozenThreshold time.Duration `mapstructure:"frozen_threshold" validate:"min=0"`

	// MaxRestarts caps consecutive background-loop failures before the
	// worker gives up and reports through the error mailbox
	MaxRestarts int `mapstructure:"max_restarts" validate:"min=1"`

	// BackoffBase seeds the exponential restart backoff
	BackoffBase time.Duration `mapstructure:"backoff_base" validate:"min=0"`

	// BackoffCap bounds the exponential restart backoff
	BackoffCap time.Duration `mapstructure:"backoff_cap" validate:"min=0"`

	// HandoffTimeout bounds how long the parent waits for a worker to
	// finish its config phase and detach
	HandoffTimeout time.Duration `mapstructure:"handoff_timeout" validate:"min=0"`

	// LogDir receives per-worker log files; empty uses the state directory
	LogDir string `mapstructure:"log_dir"`
}

func setSupervisorDefaults(c *SupervisorConfig) {
	if c.FrozenThreshold == 0 {
		c.FrozenThreshold = 10 * time.Minute
	}
	if c.MaxRestarts == 0 {
		c.MaxRestarts = 5
	}
	if c.BackoffBase == 0 {
		c.BackoffBase = 30 * time.Second
	}
	if c.BackoffCap == 0 {
		c.BackoffCap = 15 * time.Minute
	}
	if c.HandoffTimeout == 0 {
		c.HandoffTimeout = 30 * time.Minute
	}
}
