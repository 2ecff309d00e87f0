// Package events provides an unbounded FIFO queue used to hand lifecycle
// notifications from shard goroutines to a single consumer without ever
// blocking the producer.
package events
