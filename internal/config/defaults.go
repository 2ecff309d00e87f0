package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultHandshakeTimeout   = 30 * time.Second
	DefaultHeartbeatTimeout   = 60 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultAPITimeout         = 30 * time.Second
	DefaultAPIMaxRetries      = 3
	DefaultInfoRefresh        = 5 * time.Minute
	DefaultMinSpacing         = 5 * time.Second
	DefaultReservation        = 7500 * time.Millisecond
	DefaultRateLimitPoll      = 1 * time.Second
	DefaultBucketPoll         = 250 * time.Millisecond
	DefaultCachePolicy        = "insertion"
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 4
	DefaultMinConns           = 1
	DefaultHTTPPort           = 8080
	DefaultMetricsPath        = "/metrics"
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
)

func (c *Config) applyDefaults() {
	// Gateway defaults
	if c.Gateway.HandshakeTimeout == 0 {
		c.Gateway.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Gateway.HeartbeatTimeout == 0 {
		c.Gateway.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if c.Gateway.WriteTimeout == 0 {
		c.Gateway.WriteTimeout = DefaultWriteTimeout
	}
	if c.Gateway.ReconnectBaseDelay == 0 {
		c.Gateway.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Gateway.ReconnectMaxDelay == 0 {
		c.Gateway.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Gateway.APITimeout == 0 {
		c.Gateway.APITimeout = DefaultAPITimeout
	}
	if c.Gateway.APIMaxRetries == 0 {
		c.Gateway.APIMaxRetries = DefaultAPIMaxRetries
	}
	if c.Gateway.InfoRefresh == 0 {
		c.Gateway.InfoRefresh = DefaultInfoRefresh
	}

	// Scheduler defaults
	if c.Scheduler.MinSpacing == 0 {
		c.Scheduler.MinSpacing = DefaultMinSpacing
	}
	if c.Scheduler.Reservation == 0 {
		c.Scheduler.Reservation = DefaultReservation
	}
	if c.Scheduler.RateLimitPoll == 0 {
		c.Scheduler.RateLimitPoll = DefaultRateLimitPoll
	}
	if c.Scheduler.BucketPoll == 0 {
		c.Scheduler.BucketPoll = DefaultBucketPoll
	}

	if c.Cache.Policy == "" {
		c.Cache.Policy = DefaultCachePolicy
	}

	if c.Database.Enabled() {
		applyDBDefaults(&c.Database.Sessions)
	}

	if c.HTTP.Port == 0 {
		c.HTTP.Port = DefaultHTTPPort
	}
	if c.HTTP.MetricsPath == "" {
		c.HTTP.MetricsPath = DefaultMetricsPath
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
