// Package shard defines the contract between the admission scheduler, the
// readiness aggregator and whatever owns a shard's transport.
//
// A shard is one independent long-lived connection in a horizontally
// partitioned fleet. Its lifecycle:
//   - disconnected: idle, eligible for (re-)admission
//   - connecting:   admitted, transport dialing
//   - handshaking:  transport open, waiting for ready/resumed
//   - ready:        session established
//
// Shards report lifecycle changes to a Sink supplied at construction.
package shard
