// Package httpapi serves health, diagnostics and Prometheus metrics over
// HTTP.
//
// Routes:
//
//	GET /health             200 when every shard is ready, 503 otherwise
//	GET /version            build information
//	GET /debug/shards       per-shard status
//	GET /debug/shards/{id}  one shard
//	GET /debug/scheduler    admission queue and window
//	GET /debug/cache        object cache occupancy
//	GET /metrics            Prometheus exposition
package httpapi
