package api

import (
	"context"
	"fmt"
	"time"
)

// SessionStartLimit is the remote service's budget for new sessions.
type SessionStartLimit struct {
	Total          int `json:"total"`
	Remaining      int `json:"remaining"`
	ResetAfterMs   int `json:"reset_after"`
	MaxConcurrency int `json:"max_concurrency"`
}

// ResetAfter returns the time until Remaining is refilled.
func (l SessionStartLimit) ResetAfter() time.Duration {
	return time.Duration(l.ResetAfterMs) * time.Millisecond
}

// GatewayInfo is the bootstrap response for a shard fleet.
type GatewayInfo struct {
	URL               string            `json:"url"`
	Shards            int               `json:"shards"`
	SessionStartLimit SessionStartLimit `json:"session_start_limit"`
}

// GetGatewayInfo fetches the recommended shard count, the gateway URL and
// the session-start limit.
func (c *Client) GetGatewayInfo(ctx context.Context) (*GatewayInfo, error) {
	var info GatewayInfo
	if err := c.get(ctx, "/gateway/bot", nil, &info); err != nil {
		return nil, fmt.Errorf("get gateway info: %w", err)
	}
	return &info, nil
}
