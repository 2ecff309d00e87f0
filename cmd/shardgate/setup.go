package main

import (
	"io"
	"log/slog"

	"github.com/rickgao/shardgate/internal/api"
	"github.com/rickgao/shardgate/internal/config"
	"github.com/rickgao/shardgate/internal/poller"
	"github.com/rickgao/shardgate/internal/readiness"
)

// limitTarget receives refreshed session-start limits.
type limitTarget interface {
	SetConcurrencyLimit(n int)
}

type remainingGauge interface {
	SessionStartsRemaining(n int)
}

// followsServiceBucket reports whether the bucket size tracks the
// service: bucket mode with no configured size.
func followsServiceBucket(cfg config.SchedulerConfig) bool {
	return cfg.UseMaxConcurrency && cfg.MaxConcurrency == 0
}

// limitRefresher applies polled gateway info to the gauge and, when
// follow is set, to the scheduler's bucket.
func limitRefresher(follow bool, target limitTarget, gauge remainingGauge) poller.Handler {
	return poller.HandlerFunc(func(info *api.GatewayInfo) {
		gauge.SessionStartsRemaining(info.SessionStartLimit.Remaining)
		if follow && info.SessionStartLimit.MaxConcurrency > 0 {
			target.SetConcurrencyLimit(info.SessionStartLimit.MaxConcurrency)
		}
	})
}

func newLogger(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// applyGatewayInfo fills the settings the config left to the remote
// service: shard count and, in bucket mode, the concurrency limit.
func applyGatewayInfo(cfg *config.Config, info *api.GatewayInfo) {
	if cfg.Gateway.ShardCount == 0 && len(cfg.Gateway.ShardIDs) == 0 {
		cfg.Gateway.ShardCount = info.Shards
	}
	if followsServiceBucket(cfg.Scheduler) {
		cfg.Scheduler.MaxConcurrency = info.SessionStartLimit.MaxConcurrency
	}
}

// shardIDs returns the explicit shard list, or 0..shard_count-1.
func shardIDs(g config.GatewayConfig) []int {
	if len(g.ShardIDs) > 0 {
		return g.ShardIDs
	}
	n := max(g.ShardCount, 1)
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i
	}
	return ids
}

func logEvent(logger *slog.Logger, e readiness.Event) {
	switch e.Kind {
	case readiness.EventReady:
		logger.Info("fleet ready", "at", e.At)
	case readiness.EventDisconnect:
		logger.Warn("fleet disconnected", "at", e.At)
	case readiness.EventShardDisconnect:
		logger.Info("shard event", "kind", e.Kind.String(), "shard_id", e.ShardID, "error", e.Err)
	default:
		logger.Debug("shard event", "kind", e.Kind.String(), "shard_id", e.ShardID)
	}
}
