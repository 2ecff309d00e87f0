// Package manager owns the shard fleet and wires it to the admission
// scheduler, the readiness aggregator, the session store and the object
// cache.
//
// Shards report lifecycle signals to the Manager (it is their shard.Sink).
// The Manager routes them: ready and resumed signals go to the aggregator,
// session-start acknowledgements reopen the scheduler window, disconnects
// go to the aggregator and, unless the shard was closed, arm a backoff
// timer that re-spawns the shard through the scheduler.
//
// Lock order: the scheduler may call ConnectingCount while holding its own
// lock, so the Manager never calls into the scheduler while holding mu.
package manager
