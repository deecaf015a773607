package config

import "time"

// DatabaseConfig holds the activity-log database settings. SQLite in the
// state directory by default; PostgreSQL for shared deployments.
type DatabaseConfig struct {
	// Type: sqlite or postgres
	Type string `mapstructure:"type" validate:"required,oneof=sqlite postgres"`

	// Path is the SQLite file path (":memory:" for tests)
	Path string `mapstructure:"path"`

	// URL is a full PostgreSQL connection string; overrides the fields below
	URL string `mapstructure:"url"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`

	Pool PoolConfig `mapstructure:"pool"`
}

// PoolConfig holds connection pool settings (PostgreSQL only)
type PoolConfig struct {
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

func setDatabaseDefaults(c *DatabaseConfig) {
	if c.Type == "" {
		c.Type = "sqlite"
	}
	if c.Port == 0 {
		c.Port = 5432
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.Pool.MaxOpen == 0 {
		c.Pool.MaxOpen = 10
	}
	if c.Pool.MaxIdle == 0 {
		c.Pool.MaxIdle = 5
	}
	if c.Pool.MaxLifetime == 0 {
		c.Pool.MaxLifetime = 30 * time.Minute
	}
}
