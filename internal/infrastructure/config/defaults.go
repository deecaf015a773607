package config

// SetDefaults applies default values for any unset fields
func SetDefaults(cfg *Config) {
	setSessionDefaults(&cfg.Session)
	setLoginDefaults(&cfg.Login)
	setSupervisorDefaults(&cfg.Supervisor)
	setTransportDefaults(&cfg.Transport)
	setDatabaseDefaults(&cfg.Database)
	setLoggingDefaults(&cfg.Logging)
}
