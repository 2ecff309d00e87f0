// Package readiness derives the fleet-wide ready/disconnected signal from
// per-shard lifecycle events.
//
// The global transitions are edge-triggered and asymmetric: the fleet
// becomes ready when every shard is ready, and disconnected only when no
// shard is ready. Partial outages produce per-shard notifications only.
package readiness
