package config

import "time"

// WithPort sets the HTTP port.
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the runtime environment name.
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		c.Environment = env
		return nil
	}
}

// WithDatabase selects the registry database. URL is ignored for the
// memory type.
func WithDatabase(databaseType, databaseURL string) Option {
	return func(c *ServerConfig) error {
		c.DatabaseType = databaseType
		c.DatabaseURL = databaseURL
		return nil
	}
}

// WithOperatorAccount sets the account granted write access on every
// uploaded object.
func WithOperatorAccount(account string) Option {
	return func(c *ServerConfig) error {
		c.OperatorAccount = account
		return nil
	}
}

// WithAlertThreshold sets the usage ratio for alerting and upload
// rejection.
func WithAlertThreshold(threshold float64) Option {
	return func(c *ServerConfig) error {
		c.AlertThreshold = threshold
		return nil
	}
}

// WithFallbackTotalBytes sets the total substituted for providers that
// report no explicit quota limit.
func WithFallbackTotalBytes(total int64) Option {
	return func(c *ServerConfig) error {
		c.FallbackTotalBytes = total
		return nil
	}
}

// WithPollInterval sets the capacity monitor's polling interval.
func WithPollInterval(interval time.Duration) Option {
	return func(c *ServerConfig) error {
		c.PollInterval = interval
		return nil
	}
}

// WithAlertCooldown sets the minimum gap between repeat alerts per
// backend. Zero re-alerts on every polling cycle.
func WithAlertCooldown(cooldown time.Duration) Option {
	return func(c *ServerConfig) error {
		c.AlertCooldown = cooldown
		return nil
	}
}

// WithBackends replaces the configured backend list.
func WithBackends(backends ...BackendConfig) Option {
	return func(c *ServerConfig) error {
		c.Backends = backends
		return nil
	}
}
