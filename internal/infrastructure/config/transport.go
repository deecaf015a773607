package config

import "time"

// TransportConfig holds fleet-lock and route execution policy
type TransportConfig struct {
	// LockTimeout bounds one fleet-lock acquisition attempt
	LockTimeout time.Duration `mapstructure:"lock_timeout" validate:"min=0"`

	// LockRetries is how many acquisition attempts are made per batch
	LockRetries int `mapstructure:"lock_retries" validate:"min=1"`

	// LockRetrySleep is slept between acquisition attempts
	LockRetrySleep time.Duration `mapstructure:"lock_retry_sleep" validate:"min=0"`

	// LockStaleThreshold is the holder age past which a lock file is evicted
	LockStaleThreshold time.Duration `mapstructure:"lock_stale_threshold" validate:"min=0"`

	// WaitBudget caps the cumulative fleet-availability wait per route
	WaitBudget time.Duration `mapstructure:"wait_budget" validate:"min=0"`

	// WaitJitterMax is the random extra sleep added to fleet ETA waits
	WaitJitterMax time.Duration `mapstructure:"wait_jitter_max" validate:"min=0"`

	// FullStorageSleep is slept when the destination has no free storage
	FullStorageSleep time.Duration `mapstructure:"full_storage_sleep" validate:"min=0"`

	// StrikeLimit is the consecutive unexpected-response budget per route
	StrikeLimit int `mapstructure:"strike_limit" validate:"min=1"`
}

func setTransportDefaults(c *TransportConfig) {
	if c.LockTimeout == 0 {
		c.LockTimeout = 5 * time.Minute
	}
	if c.LockRetries == 0 {
		c.LockRetries = 3
	}
	if c.LockRetrySleep == 0 {
		c.LockRetrySleep = time.Minute
	}
	if c.LockStaleThreshold == 0 {
		c.LockStaleThreshold = 10 * time.Minute
	}
	if c.WaitBudget == 0 {
		c.WaitBudget = 2 * time.Hour
	}
	if c.WaitJitterMax == 0 {
		c.WaitJitterMax = time.Minute
	}
	if c.FullStorageSleep == 0 {
		c.FullStorageSleep = time.Hour
	}
	if c.StrikeLimit == 0 {
		c.StrikeLimit = 20
	}
}
