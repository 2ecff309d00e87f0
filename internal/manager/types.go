package manager

import (
	"errors"
	"time"

	"github.com/rickgao/shardgate/internal/cache"
	"github.com/rickgao/shardgate/internal/readiness"
	"github.com/rickgao/shardgate/internal/scheduler"
	"github.com/rickgao/shardgate/internal/shard"
)

// ErrStopped is returned by Spawn after Stop.
var ErrStopped = errors.New("manager stopped")

// Shard is a shard the Manager can seed, persist and close.
type Shard interface {
	shard.Shard
	Seq() int64
	SetSession(sessionID string, seq int64)
	Close() error
}

// Sink is what a shard reports to.
type Sink interface {
	shard.Sink
	shard.ObjectSink
}

// Factory creates the shard for id.
type Factory func(id int, sink Sink) Shard

// Metrics is the union of the per-component metrics hooks.
type Metrics interface {
	scheduler.Metrics
	readiness.Metrics
	cache.Metrics
}

// Config configures a Manager.
type Config struct {
	Scheduler scheduler.Config

	AutoReconnect      bool
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration

	CacheCapacity int
	CachePinned   []string
	CachePolicy   cache.Policy

	EventBuffer  int
	StoreTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Scheduler:          scheduler.DefaultConfig(),
		AutoReconnect:      true,
		ReconnectBaseDelay: time.Second,
		ReconnectMaxDelay:  time.Minute,
		EventBuffer:        256,
		StoreTimeout:       5 * time.Second,
	}
}

// Stats summarizes the fleet.
type Stats struct {
	Shards        int       `json:"shards"`
	Ready         int       `json:"ready"`
	Connecting    int       `json:"connecting"`
	Disconnected  int       `json:"disconnected"`
	GlobalReady   bool      `json:"global_ready"`
	StartTime     time.Time `json:"start_time,omitempty"`
	QueueLen      int       `json:"queue_len"`
	CacheSize     int       `json:"cache_size"`
	PendingEvents int       `json:"pending_events"`
}

// ShardStat is the per-shard view exposed for diagnostics.
type ShardStat struct {
	ID             int           `json:"id"`
	Status         string        `json:"status"`
	SessionID      string        `json:"session_id,omitempty"`
	Seq            int64         `json:"seq"`
	ReconnectDelay time.Duration `json:"reconnect_delay"`
	Reconnecting   bool          `json:"reconnecting"`
}
