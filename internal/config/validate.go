package config

import (
	"errors"
	"fmt"
	"log/slog"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if err := c.Gateway.validate(); err != nil {
		return err
	}

	if c.Scheduler.MaxConcurrency < 0 {
		return errors.New("scheduler.max_concurrency must be >= 0")
	}
	if c.Scheduler.MinSpacing < 0 || c.Scheduler.Reservation < 0 {
		return errors.New("scheduler.min_spacing and scheduler.reservation must be >= 0")
	}
	if c.Scheduler.RateLimitPoll < 0 || c.Scheduler.BucketPoll < 0 {
		return errors.New("scheduler poll intervals must be >= 0")
	}

	if c.Cache.Capacity < 0 {
		return errors.New("cache.capacity must be >= 0")
	}
	switch c.Cache.Policy {
	case "", "insertion", "recency", "lru":
	default:
		return fmt.Errorf("cache.policy must be insertion or recency, got %q", c.Cache.Policy)
	}

	if c.Database.Enabled() {
		if err := c.Database.Sessions.validate("database.sessions"); err != nil {
			return err
		}
	}

	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	if _, err := c.Logging.SlogLevel(); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

func (g *GatewayConfig) validate() error {
	if g.URL == "" {
		return errors.New("gateway.url is required")
	}
	if g.ShardCount < 0 {
		return errors.New("gateway.shard_count must be >= 0")
	}

	seen := make(map[int]struct{}, len(g.ShardIDs))
	for _, id := range g.ShardIDs {
		if id < 0 {
			return fmt.Errorf("gateway.shard_ids: negative shard id %d", id)
		}
		if g.ShardCount > 0 && id >= g.ShardCount {
			return fmt.Errorf("gateway.shard_ids: shard id %d out of range for shard_count %d", id, g.ShardCount)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("gateway.shard_ids: duplicate shard id %d", id)
		}
		seen[id] = struct{}{}
	}

	if g.ReconnectMaxDelay < g.ReconnectBaseDelay {
		return fmt.Errorf("gateway.reconnect_max_delay (%v) cannot be less than reconnect_base_delay (%v)",
			g.ReconnectMaxDelay, g.ReconnectBaseDelay)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

// SlogLevel parses the configured level.
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	switch l.Level {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging.level must be debug, info, warn or error, got %q", l.Level)
	}
}
