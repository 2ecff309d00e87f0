package config

import "time"

// Config is the root configuration for a shardgate instance.
type Config struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Cache     CacheConfig     `yaml:"cache"`
	Database  DatabaseConfig  `yaml:"database"`
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// InstanceConfig identifies this process.
type InstanceConfig struct {
	ID string `yaml:"id"` // Stable across restarts; keys stored sessions
}

// GatewayConfig holds the remote service endpoints and shard layout.
type GatewayConfig struct {
	URL            string `yaml:"url"`              // WebSocket gateway URL
	RestURL        string `yaml:"rest_url"`         // REST base URL for gateway info
	Token          string `yaml:"token"`            // Sent in identify/resume payloads
	KeyID          string `yaml:"key_id"`           // Optional signed-handshake key ID
	PrivateKeyPath string `yaml:"private_key_path"` // RSA key for signed handshakes

	ShardCount int   `yaml:"shard_count"` // 0 = use the service's recommendation
	ShardIDs   []int `yaml:"shard_ids"`   // Empty = 0..shard_count-1

	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`
	HeartbeatTimeout   time.Duration `yaml:"heartbeat_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	AutoReconnect      *bool         `yaml:"auto_reconnect"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`

	APITimeout    time.Duration `yaml:"api_timeout"`
	APIMaxRetries int           `yaml:"api_max_retries"`
	InfoRefresh   time.Duration `yaml:"info_refresh"` // Session-start limit poll interval
}

// Reconnect reports whether shards are re-admitted after a disconnect.
func (g GatewayConfig) Reconnect() bool {
	return g.AutoReconnect == nil || *g.AutoReconnect
}

// SchedulerConfig selects and tunes connection admission.
type SchedulerConfig struct {
	UseMaxConcurrency bool          `yaml:"use_max_concurrency"` // Concurrency-bucket mode
	MaxConcurrency    int           `yaml:"max_concurrency"`     // 0 = use the service's bucket size
	MinSpacing        time.Duration `yaml:"min_spacing"`
	Reservation       time.Duration `yaml:"reservation"`
	RateLimitPoll     time.Duration `yaml:"rate_limit_poll"`
	BucketPoll        time.Duration `yaml:"bucket_poll"`
}

// CacheConfig configures the dispatch object cache.
type CacheConfig struct {
	Capacity int      `yaml:"capacity"` // 0 = unbounded
	Policy   string   `yaml:"policy"`   // "insertion" or "recency"
	Pinned   []string `yaml:"pinned"`   // Object IDs never evicted
}

// DatabaseConfig holds the optional session store database. When
// sessions.host is empty sessions are kept in memory only.
type DatabaseConfig struct {
	Sessions DBConfig `yaml:"sessions"`
}

// Enabled reports whether a session database is configured.
func (d DatabaseConfig) Enabled() bool {
	return d.Sessions.Host != ""
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// HTTPConfig holds the health/metrics server settings.
type HTTPConfig struct {
	Port        int    `yaml:"port"`
	MetricsPath string `yaml:"metrics_path"`
}

// LoggingConfig holds slog settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// EnvOverrides are read from SHARDGATE_* variables and applied over the
// file. Zero values leave the file setting alone.
type EnvOverrides struct {
	InstanceID string `envconfig:"INSTANCE_ID"`
	GatewayURL string `envconfig:"GATEWAY_URL"`
	Token      string `envconfig:"TOKEN"`
	ShardCount int    `envconfig:"SHARD_COUNT"`
	HTTPPort   int    `envconfig:"HTTP_PORT"`
	LogLevel   string `envconfig:"LOG_LEVEL"`
}
