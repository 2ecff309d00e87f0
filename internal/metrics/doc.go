// Package metrics provides Prometheus implementations of the scheduler,
// readiness and cache metrics hooks.
//
// Key metrics:
//   - Connection dispatches by admission path and retry polls
//   - Scheduler queue depth
//   - Shard lifecycle signals and the global ready flag
//   - Object cache size and evictions
package metrics
