// Package scheduler implements connection admission for a shard fleet.
//
// Two modes, fixed per scheduler:
//   - Global rate limit: dispatches are spaced at least MinSpacing apart
//     (5s). Each dispatch reserves Reservation (7.5s) so the next window
//     opens after the expected handshake. Shards holding a session ID skip
//     the queue since resuming does not consume a session start.
//   - Concurrency bucket: at most ConcurrencyLimit shards may be connecting
//     at once. Every request is queued.
//
// Work that cannot be admitted yet is retried by polling (1s / 250ms) with
// at most one retry timer outstanding.
package scheduler
