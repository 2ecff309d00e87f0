package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-gate
gateway:
  url: wss://gateway.example.com
  shard_count: 4
  shard_ids: [0, 2]
scheduler:
  use_max_concurrency: true
  max_concurrency: 16
cache:
  capacity: 1000
  pinned: ["owner", "admin"]
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-gate" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-gate")
	}
	if cfg.Gateway.URL != "wss://gateway.example.com" {
		t.Errorf("Gateway.URL = %q, want %q", cfg.Gateway.URL, "wss://gateway.example.com")
	}
	if len(cfg.Gateway.ShardIDs) != 2 || cfg.Gateway.ShardIDs[1] != 2 {
		t.Errorf("Gateway.ShardIDs = %v, want [0 2]", cfg.Gateway.ShardIDs)
	}
	if !cfg.Scheduler.UseMaxConcurrency || cfg.Scheduler.MaxConcurrency != 16 {
		t.Errorf("Scheduler = %+v, want bucket mode with 16", cfg.Scheduler)
	}
	if len(cfg.Cache.Pinned) != 2 || cfg.Cache.Pinned[0] != "owner" {
		t.Errorf("Cache.Pinned = %v, want [owner admin]", cfg.Cache.Pinned)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_GATEWAY_TOKEN", "secret123")

	yaml := `
gateway:
  url: wss://gateway.example.com
  token: ${TEST_GATEWAY_TOKEN}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Gateway.Token != "secret123" {
		t.Errorf("Gateway.Token = %q, want %q", cfg.Gateway.Token, "secret123")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("SHARDGATE_GATEWAY_URL", "wss://override.example.com")
	t.Setenv("SHARDGATE_SHARD_COUNT", "8")
	t.Setenv("SHARDGATE_LOG_LEVEL", "debug")

	yaml := `
gateway:
  url: wss://gateway.example.com
  shard_count: 2
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Gateway.URL != "wss://override.example.com" {
		t.Errorf("Gateway.URL = %q, want override", cfg.Gateway.URL)
	}
	if cfg.Gateway.ShardCount != 8 {
		t.Errorf("Gateway.ShardCount = %d, want 8", cfg.Gateway.ShardCount)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
gateway:
  url: wss://gateway.example.com
database:
  sessions:
    host: localhost
    name: shardgate
    user: shardgate
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Instance.ID != "" {
		t.Errorf("Instance.ID = %q, want empty (no generated default)", cfg.Instance.ID)
	}
	if cfg.Scheduler.MinSpacing != DefaultMinSpacing {
		t.Errorf("Scheduler.MinSpacing = %v, want default %v", cfg.Scheduler.MinSpacing, DefaultMinSpacing)
	}
	if cfg.Scheduler.Reservation != 7500*time.Millisecond {
		t.Errorf("Scheduler.Reservation = %v, want 7.5s", cfg.Scheduler.Reservation)
	}
	if cfg.Scheduler.BucketPoll != DefaultBucketPoll {
		t.Errorf("Scheduler.BucketPoll = %v, want default %v", cfg.Scheduler.BucketPoll, DefaultBucketPoll)
	}
	if cfg.Database.Sessions.Port != DefaultDBPort {
		t.Errorf("Database.Sessions.Port = %d, want default %d", cfg.Database.Sessions.Port, DefaultDBPort)
	}
	if cfg.Cache.Policy != DefaultCachePolicy {
		t.Errorf("Cache.Policy = %q, want default %q", cfg.Cache.Policy, DefaultCachePolicy)
	}
	if cfg.HTTP.Port != DefaultHTTPPort {
		t.Errorf("HTTP.Port = %d, want default %d", cfg.HTTP.Port, DefaultHTTPPort)
	}
	if !cfg.Gateway.Reconnect() {
		t.Error("Gateway.Reconnect() = false, want true by default")
	}
	if cfg.Gateway.InfoRefresh != DefaultInfoRefresh {
		t.Errorf("Gateway.InfoRefresh = %v, want default %v", cfg.Gateway.InfoRefresh, DefaultInfoRefresh)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadAndValidate_InvalidYAML(t *testing.T) {
	path := writeTempFile(t, "gateway: [unterminated")
	if _, err := LoadAndValidate(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Instance: InstanceConfig{ID: "test"},
			Gateway: GatewayConfig{
				URL:                "wss://gateway.example.com",
				ShardCount:         4,
				ReconnectBaseDelay: time.Second,
				ReconnectMaxDelay:  time.Minute,
			},
			HTTP: HTTPConfig{Port: 8080},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing instance id",
			mutate:  func(c *Config) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "missing gateway url",
			mutate:  func(c *Config) { c.Gateway.URL = "" },
			wantErr: "gateway.url is required",
		},
		{
			name:    "shard id out of range",
			mutate:  func(c *Config) { c.Gateway.ShardIDs = []int{0, 4} },
			wantErr: "gateway.shard_ids: shard id 4 out of range for shard_count 4",
		},
		{
			name:    "duplicate shard id",
			mutate:  func(c *Config) { c.Gateway.ShardIDs = []int{1, 1} },
			wantErr: "gateway.shard_ids: duplicate shard id 1",
		},
		{
			name:    "negative max concurrency",
			mutate:  func(c *Config) { c.Scheduler.MaxConcurrency = -1 },
			wantErr: "scheduler.max_concurrency must be >= 0",
		},
		{
			name:    "unknown cache policy",
			mutate:  func(c *Config) { c.Cache.Policy = "random" },
			wantErr: `cache.policy must be insertion or recency, got "random"`,
		},
		{
			name: "session db min_conns exceeds max_conns",
			mutate: func(c *Config) {
				c.Database.Sessions = DBConfig{Host: "localhost", Name: "db", User: "user", MaxConns: 2, MinConns: 5}
			},
			wantErr: "database.sessions.min_conns (5) cannot exceed max_conns (2)",
		},
		{
			name:    "bad http port",
			mutate:  func(c *Config) { c.HTTP.Port = 70000 },
			wantErr: "http.port must be between 1 and 65535, got 70000",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: `logging.level must be debug, info, warn or error, got "loud"`,
		},
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoadAndValidate_ExampleConfig(t *testing.T) {
	t.Setenv("SHARDGATE_TOKEN", "example-token")

	cfg, err := LoadAndValidate(filepath.Join("..", "..", "configs", "shardgate.example.yaml"))
	if err != nil {
		t.Fatalf("example config invalid: %v", err)
	}
	if cfg.Gateway.Token != "example-token" {
		t.Errorf("Gateway.Token = %q, want expanded from env", cfg.Gateway.Token)
	}
	if cfg.Scheduler.Reservation != 7500*time.Millisecond {
		t.Errorf("Scheduler.Reservation = %v, want 7.5s", cfg.Scheduler.Reservation)
	}
	if cfg.Database.Enabled() {
		t.Error("Database.Enabled() = true, want memory sessions")
	}
}

func TestLoadAndValidate_RequiresInstanceID(t *testing.T) {
	yaml := `
gateway:
  url: wss://gateway.example.com
database:
  sessions:
    host: localhost
    name: shardgate
    user: shardgate
`
	path := writeTempFile(t, yaml)

	_, err := LoadAndValidate(path)
	if err == nil || !strings.Contains(err.Error(), "instance.id is required") {
		t.Fatalf("expected instance.id error, got %v", err)
	}

	t.Setenv("SHARDGATE_INSTANCE_ID", "gate-a")
	cfg, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}
	if cfg.Instance.ID != "gate-a" {
		t.Errorf("Instance.ID = %q, want gate-a", cfg.Instance.ID)
	}
}
