package config

import "time"

// SessionConfig holds game session tuning knobs
type SessionConfig struct {
	// MinInterval is the rate-limit floor between any two outbound calls
	MinInterval time.Duration `mapstructure:"min_interval" validate:"min=0"`

	// RequestTimeout bounds a single HTTP round trip
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"min=0"`

	// NetworkBackoff is slept between retries after a connection failure
	NetworkBackoff time.Duration `mapstructure:"network_backoff" validate:"min=0"`

	// MaxNetworkRetries caps connection-failure retries; 0 retries forever
	MaxNetworkRetries int `mapstructure:"max_network_retries" validate:"min=0"`

	// MaintenanceBackoff is slept when the server reports a backup window
	MaintenanceBackoff time.Duration `mapstructure:"maintenance_backoff" validate:"min=0"`

	// HealthInterval is the pinger period
	HealthInterval time.Duration `mapstructure:"health_interval" validate:"min=0"`

	// HistorySize bounds the diagnostic request ring
	HistorySize int `mapstructure:"history_size" validate:"min=1"`
}

func setSessionDefaults(c *SessionConfig) {
	if c.MinInterval == 0 {
		c.MinInterval = 300 * time.Millisecond
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.NetworkBackoff == 0 {
		c.NetworkBackoff = 5 * time.Minute
	}
	if c.MaintenanceBackoff == 0 {
		c.MaintenanceBackoff = 10 * time.Minute
	}
	if c.HealthInterval == 0 {
		c.HealthInterval = 3 * time.Minute
	}
	if c.HistorySize == 0 {
		c.HistorySize = 5
	}
}
