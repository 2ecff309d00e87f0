package gateway

import (
	"net/http"
	"time"
)

// Config configures a gateway shard.
type Config struct {
	URL        string // WebSocket URL, e.g. wss://gateway.example.com/gateway
	Token      string
	ShardCount int

	HandshakeTimeout time.Duration // dial plus hello
	HeartbeatTimeout time.Duration // max time without a heartbeat ack
	WriteTimeout     time.Duration
	// HeartbeatInterval is used when hello does not carry one.
	HeartbeatInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ShardCount:        1,
		HandshakeTimeout:  10 * time.Second,
		HeartbeatTimeout:  60 * time.Second,
		WriteTimeout:      5 * time.Second,
		HeartbeatInterval: 30 * time.Second,
	}
}

// HandshakeSigner produces signed headers for the WebSocket upgrade.
// auth.Credentials satisfies it.
type HandshakeSigner interface {
	HandshakeHeader(path string) (http.Header, error)
}
