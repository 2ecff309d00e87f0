package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/shardgate/internal/api"
	"github.com/rickgao/shardgate/internal/config"
	"github.com/rickgao/shardgate/internal/scheduler"
)

func TestShardIDs(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.GatewayConfig
		want []int
	}{
		{"explicit", config.GatewayConfig{ShardCount: 8, ShardIDs: []int{4, 5}}, []int{4, 5}},
		{"count", config.GatewayConfig{ShardCount: 3}, []int{0, 1, 2}},
		{"zero count", config.GatewayConfig{}, []int{0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shardIDs(tt.cfg))
		})
	}
}

func TestApplyGatewayInfo(t *testing.T) {
	info := &api.GatewayInfo{
		Shards:            6,
		SessionStartLimit: api.SessionStartLimit{MaxConcurrency: 16},
	}

	cfg := &config.Config{}
	cfg.Scheduler.UseMaxConcurrency = true
	applyGatewayInfo(cfg, info)
	assert.Equal(t, 6, cfg.Gateway.ShardCount)
	assert.Equal(t, 16, cfg.Scheduler.MaxConcurrency)

	cfg = &config.Config{}
	cfg.Gateway.ShardCount = 2
	cfg.Scheduler.MaxConcurrency = 0
	applyGatewayInfo(cfg, info)
	assert.Equal(t, 2, cfg.Gateway.ShardCount, "configured count wins")
	assert.Zero(t, cfg.Scheduler.MaxConcurrency, "rate-limit mode ignores bucket size")
}

type limitRecorder struct {
	limits    []int
	remaining []int
}

func (r *limitRecorder) SetConcurrencyLimit(n int)    { r.limits = append(r.limits, n) }
func (r *limitRecorder) SessionStartsRemaining(n int) { r.remaining = append(r.remaining, n) }

func TestLimitRefresher(t *testing.T) {
	info := &api.GatewayInfo{SessionStartLimit: api.SessionStartLimit{Remaining: 40, MaxConcurrency: 8}}

	rec := &limitRecorder{}
	limitRefresher(true, rec, rec).HandleGatewayInfo(info)
	assert.Equal(t, []int{8}, rec.limits)
	assert.Equal(t, []int{40}, rec.remaining)

	rec = &limitRecorder{}
	limitRefresher(false, rec, rec).HandleGatewayInfo(info)
	assert.Empty(t, rec.limits, "configured bucket size is kept")
	assert.Equal(t, []int{40}, rec.remaining)

	rec = &limitRecorder{}
	limitRefresher(true, rec, rec).HandleGatewayInfo(&api.GatewayInfo{})
	assert.Empty(t, rec.limits, "zero bucket ignored")
}

func TestManagerConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Scheduler = config.SchedulerConfig{
		UseMaxConcurrency: true,
		MaxConcurrency:    4,
		MinSpacing:        time.Second,
		Reservation:       2 * time.Second,
		RateLimitPoll:     time.Second,
		BucketPoll:        100 * time.Millisecond,
	}
	cfg.Cache = config.CacheConfig{Capacity: 10, Policy: "recency", Pinned: []string{"a"}}
	off := false
	cfg.Gateway.AutoReconnect = &off

	mc, err := managerConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, scheduler.ModeConcurrencyBucket, mc.Scheduler.Mode)
	assert.Equal(t, 4, mc.Scheduler.ConcurrencyLimit)
	assert.Equal(t, 2*time.Second, mc.Scheduler.Reservation)
	assert.False(t, mc.AutoReconnect)
	assert.Equal(t, 10, mc.CacheCapacity)
	assert.Equal(t, []string{"a"}, mc.CachePinned)

	cfg.Cache.Policy = "lfu"
	_, err = managerConfig(cfg)
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "shard_id", 3)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"shard_id":3`)

	_, err = newLogger(config.LoggingConfig{Level: "loud"}, &buf)
	assert.Error(t, err)
}
